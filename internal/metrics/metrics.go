// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

// Package metrics holds the Prometheus instrumentation for the pipeline:
// ingestion throughput, sink write failures, aggregation fallbacks, cache
// efficiency, WebSocket fan-out, and API latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion Metrics
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Total number of bus messages consumed",
		},
		[]string{"topic"}, // "network_flows", "security_alerts"
	)

	EventsNormalized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_normalized_total",
			Help: "Total number of messages normalized into records",
		},
	)

	EventsMalformed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_malformed_total",
			Help: "Total number of messages skipped as malformed",
		},
		[]string{"topic"},
	)

	// Dual-Sink Write Metrics
	SinkWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_writes_total",
			Help: "Total number of record writes per sink",
		},
		[]string{"sink", "result"}, // sink: "analytical", "relational"; result: "success", "failure"
	)

	SpoolEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spool_entries",
			Help: "Current number of records spooled after dual-sink failure",
		},
	)

	SpoolWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spool_writes_total",
			Help: "Total number of records written to the failure spool",
		},
	)

	// Aggregation Engine Metrics
	AggregationQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregation_queries_total",
			Help: "Total number of aggregation queries by serving source",
		},
		[]string{"query", "source"}, // source: "analytical", "relational", "none"
	)

	AggregationFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregation_fallbacks_total",
			Help: "Total number of queries served by the relational fallback",
		},
		[]string{"query"},
	)

	AggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregation_query_duration_seconds",
			Help:    "Duration of aggregation queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query", "source"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of snapshot cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of snapshot cache misses",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached snapshots",
		},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of connected WebSocket clients per group",
		},
		[]string{"group"},
	)

	WSBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_broadcasts_total",
			Help: "Total number of messages broadcast per group",
		},
		[]string{"group"},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Bridge Metrics
	BridgeNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_notifications_total",
			Help: "Total number of alert notifications pushed to live clients",
		},
		[]string{"severity"},
	)

	BridgeFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_filtered_total",
			Help: "Total number of alerts below the notification threshold",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordAggregation records one served aggregation query: which source
// answered it, how long it took, and whether it was a fallback.
func RecordAggregation(query, source string, duration time.Duration, fallback bool) {
	AggregationQueries.WithLabelValues(query, source).Inc()
	AggregationDuration.WithLabelValues(query, source).Observe(duration.Seconds())
	if fallback {
		AggregationFallbacks.WithLabelValues(query).Inc()
	}
}

// RecordSinkWrite records the outcome of one sink write.
func RecordSinkWrite(sink string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	SinkWrites.WithLabelValues(sink, result).Inc()
}

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
