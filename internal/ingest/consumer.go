// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/metrics"
	"github.com/campuswatch/campuswatch/internal/normalize"
)

// Consumer drains the security event stream: each message is normalized
// and written to both sinks. Errors are contained per message; a malformed
// payload is counted, logged, and skipped without stopping the loop.
type Consumer struct {
	sub     message.Subscriber
	writer  *Writer
	running atomic.Bool
}

// NewConsumer creates the pipeline consumer.
func NewConsumer(sub message.Subscriber, writer *Writer) *Consumer {
	return &Consumer{sub: sub, writer: writer}
}

// Running reports whether the consume loops are active. Used for bus
// health in the dashboard snapshot.
func (c *Consumer) Running() bool {
	return c.running.Load()
}

// Run consumes both topics until the context is canceled. It returns nil
// on cooperative shutdown and an error when a subscription fails or its
// channel closes unexpectedly.
func (c *Consumer) Run(ctx context.Context) error {
	flowMsgs, err := c.sub.Subscribe(ctx, normalize.TopicFlows)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", normalize.TopicFlows, err)
	}
	alertMsgs, err := c.sub.Subscribe(ctx, normalize.TopicAlerts)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", normalize.TopicAlerts, err)
	}

	c.running.Store(true)
	defer c.running.Store(false)

	logging.Info().
		Str("flows_topic", normalize.TopicFlows).
		Str("alerts_topic", normalize.TopicAlerts).
		Msg("Consumer started")

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- c.drain(ctx, normalize.TopicFlows, flowMsgs, c.handleFlow)
	}()
	go func() {
		defer wg.Done()
		errs <- c.drain(ctx, normalize.TopicAlerts, alertMsgs, c.handleAlert)
	}()

	wg.Wait()
	close(errs)

	var combined error
	for err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			combined = errors.Join(combined, err)
		}
	}
	return combined
}

func (c *Consumer) drain(ctx context.Context, topic string, msgs <-chan *message.Message, handle func(context.Context, *message.Message) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("%w: %s", ErrConsumerClosed, topic)
			}

			metrics.EventsConsumed.WithLabelValues(topic).Inc()
			if err := handle(ctx, msg); err != nil {
				// Sink-side failure: leave the message for redelivery.
				msg.Nack()
				logging.Error().
					Err(err).
					Str("topic", topic).
					Str("message_uuid", msg.UUID).
					Msg("Message processing failed")
				continue
			}
			msg.Ack()
		}
	}
}

func (c *Consumer) handleFlow(ctx context.Context, msg *message.Message) error {
	flow, err := normalize.FlowFromJSON(msg.Payload)
	if err != nil {
		if errors.Is(err, normalize.ErrMalformedEvent) {
			c.skipMalformed(normalize.TopicFlows, msg, err)
			return nil
		}
		return err
	}
	metrics.EventsNormalized.Inc()
	return c.writer.WriteFlow(ctx, flow)
}

func (c *Consumer) handleAlert(ctx context.Context, msg *message.Message) error {
	alert, err := normalize.AlertFromJSON(msg.Payload)
	if err != nil {
		if errors.Is(err, normalize.ErrMalformedEvent) {
			c.skipMalformed(normalize.TopicAlerts, msg, err)
			return nil
		}
		return err
	}
	metrics.EventsNormalized.Inc()
	return c.writer.WriteAlert(ctx, alert)
}

func (c *Consumer) skipMalformed(topic string, msg *message.Message, err error) {
	metrics.EventsMalformed.WithLabelValues(topic).Inc()
	logging.Warn().
		Err(err).
		Str("topic", topic).
		Str("message_uuid", msg.UUID).
		Msg("Skipping malformed event")
}
