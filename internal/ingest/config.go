// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package ingest

import "time"

// Consumer group names. The pipeline consumer and the alert bridge use
// separate durable groups so each receives its own copy of the alert stream
// while instances within a group share the load.
const (
	ConsumerGroup = "campus-security-consumer"
	BridgeGroup   = "campus-security-bridge"
)

// StreamConfig defines the security event stream.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// DefaultStreamConfig returns production stream settings: seven days of
// retention over both event subjects.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:            "SECURITY_EVENTS",
		Subjects:        []string{"network_flows", "security_alerts"},
		MaxAge:          7 * 24 * time.Hour,
		MaxBytes:        10 * 1024 * 1024 * 1024, // 10GB
		MaxMsgs:         -1,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// SubscriberConfig holds durable JetStream subscription settings.
type SubscriberConfig struct {
	URL              string
	DurableName      string
	QueueGroup       string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	MaxDeliver       int
	MaxAckPending    int
	CloseTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration
	// StreamName binds the subscription to the pre-provisioned stream.
	StreamName string
}

// DefaultSubscriberConfig returns production defaults for the pipeline
// consumer group.
func DefaultSubscriberConfig(url string) SubscriberConfig {
	return SubscriberConfig{
		URL:              url,
		DurableName:      ConsumerGroup,
		QueueGroup:       ConsumerGroup,
		SubscribersCount: 4,
		AckWaitTimeout:   30 * time.Second,
		MaxDeliver:       5,
		MaxAckPending:    1000,
		CloseTimeout:     30 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		StreamName:       "SECURITY_EVENTS",
	}
}

// BridgeSubscriberConfig returns subscription defaults for the alert
// fan-out bridge. A single in-order subscriber is enough: the bridge only
// forwards notifications.
func BridgeSubscriberConfig(url string) SubscriberConfig {
	cfg := DefaultSubscriberConfig(url)
	cfg.DurableName = BridgeGroup
	cfg.QueueGroup = BridgeGroup
	cfg.SubscribersCount = 1
	return cfg
}

// PublisherConfig holds publisher settings.
type PublisherConfig struct {
	URL             string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectBuffer int
	// TrackMsgID enables JetStream deduplication keyed on message UUID.
	TrackMsgID bool
}

// DefaultPublisherConfig returns production defaults for publishers.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:             url,
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		ReconnectBuffer: 8 * 1024 * 1024,
		TrackMsgID:      true,
	}
}

// ServerConfig holds embedded NATS server settings for single-instance
// deployments without an external broker.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// DefaultServerConfig returns production defaults for the embedded server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          "/data/nats/jetstream",
		JetStreamMaxMem:   1 << 30,
		JetStreamMaxStore: 10 << 30,
	}
}

// SpoolConfig holds failure spool settings.
type SpoolConfig struct {
	Path       string
	SyncWrites bool
}
