// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package ingest

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/metrics"
	"github.com/campuswatch/campuswatch/internal/models"
	"github.com/campuswatch/campuswatch/internal/normalize"
)

// AlertGroup is the WebSocket group receiving live alert notifications.
const AlertGroup = "alert_updates"

// Broadcaster pushes a payload to every client of a named group.
type Broadcaster interface {
	BroadcastGroup(group string, payload any)
}

// Bridge forwards high and critical alerts from the bus to live dashboard
// clients. It consumes the alert topic on its own durable group so the
// storage pipeline and the fan-out never compete for messages.
type Bridge struct {
	sub     message.Subscriber
	hub     Broadcaster
	started atomic.Bool
}

// NewBridge creates the alert fan-out bridge.
func NewBridge(sub message.Subscriber, hub Broadcaster) *Bridge {
	return &Bridge{sub: sub, hub: hub}
}

// Started reports whether the bridge loop has been started.
func (b *Bridge) Started() bool {
	return b.started.Load()
}

// Start runs the fan-out loop until the context is canceled. A second call
// while running returns ErrBridgeAlreadyStarted. An unrecoverable bus
// failure terminates the loop with an error wrapping ErrBridgeFatal.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrBridgeAlreadyStarted
	}
	defer b.started.Store(false)

	msgs, err := b.sub.Subscribe(ctx, normalize.TopicAlerts)
	if err != nil {
		return fmt.Errorf("%w: subscribe %s: %v", ErrBridgeFatal, normalize.TopicAlerts, err)
	}

	logging.Info().Str("group", AlertGroup).Msg("Alert bridge started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Alert bridge stopped")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: alert subscription closed", ErrBridgeFatal)
			}
			b.handle(msg)
		}
	}
}

// handle forwards one alert message. All failures here are per-message:
// the bridge never stops over a bad payload.
func (b *Bridge) handle(msg *message.Message) {
	defer msg.Ack()

	alert, err := normalize.AlertFromJSON(msg.Payload)
	if err != nil {
		metrics.EventsMalformed.WithLabelValues(normalize.TopicAlerts).Inc()
		logging.Warn().
			Err(err).
			Str("message_uuid", msg.UUID).
			Msg("Bridge skipping malformed alert")
		return
	}

	// Only high and critical alerts reach live clients.
	if alert.Severity.Rank() > models.SeverityHigh.Rank() {
		metrics.BridgeFiltered.Inc()
		return
	}

	b.hub.BroadcastGroup(AlertGroup, &models.AlertNotification{
		Event:         "new_alert",
		Severity:      alert.Severity,
		Title:         alert.Title,
		Category:      alert.AlertType,
		SourceIP:      alert.SourceIP,
		DestinationIP: alert.DestinationIP,
		Timestamp:     alert.Timestamp,
	})
	metrics.BridgeNotifications.WithLabelValues(string(alert.Severity)).Inc()
}
