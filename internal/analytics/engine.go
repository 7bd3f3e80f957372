// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

// Package analytics implements the aggregation query engine. Every
// aggregation prefers the analytical store and falls back to the relational
// store when the analytical store errors or its circuit breaker is open.
// Results are normalized engine-side (zero-filled timelines, deterministic
// orderings) so both sources produce value-equal answers over the same data.
package analytics

import (
	"context"
	"errors"
	"sort"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/campuswatch/campuswatch/internal/cache"
	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/metrics"
	"github.com/campuswatch/campuswatch/internal/models"
)

// ErrAllSourcesFailed reports that neither store could answer a query.
var ErrAllSourcesFailed = errors.New("all aggregation sources failed")

// Source is the aggregation surface both stores implement.
type Source interface {
	Name() string
	TotalBytes(ctx context.Context, start, end time.Time) (uint64, error)
	Timeline(ctx context.Context, start, end time.Time, bucketSize time.Duration) ([]models.TimelineBucket, error)
	TopSourceIPs(ctx context.Context, start, end time.Time, n int) ([]models.TalkerStat, error)
	ProtocolDistribution(ctx context.Context, start, end time.Time) ([]models.ProtocolStat, error)
	AlertsBySeverity(ctx context.Context, start, end time.Time) (map[models.Severity]uint64, error)
	RecentAlerts(ctx context.Context, start, end time.Time, limit int) ([]models.AlertSummary, error)
}

// RelationalSource extends Source with the queries only the relational
// store can answer. Connection liveness depends on row-level recency, which
// the append-only analytical partitions are not indexed for.
type RelationalSource interface {
	Source
	ActiveConnections(ctx context.Context) (uint64, error)
}

// Pinger is implemented by stores that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the engine's query window and result sizes.
type Options struct {
	// Window is the trailing period aggregations cover. Zero means 24h.
	Window time.Duration
	// BucketSize is the timeline resolution. Zero means 1h.
	BucketSize time.Duration
	// TopN caps the top-source-IPs ranking. Zero means 5.
	TopN int
	// RecentAlerts caps the recent-alerts list. Zero means 10.
	RecentAlerts int
	// BreakerTimeout is how long an open breaker waits before probing the
	// analytical store again. Zero means 30s.
	BreakerTimeout time.Duration
	// BusStatus reports message bus health for the dashboard header.
	// Nil reports "unknown".
	BusStatus func() string
}

// Engine answers dashboard aggregation queries with analytical-first,
// relational-fallback semantics.
type Engine struct {
	analytical Source
	relational RelationalSource
	breaker    *gobreaker.CircuitBreaker[any]
	cache      *cache.Cache
	opts       Options
}

// NewEngine creates the query engine over the two stores. The cache may be
// nil to disable snapshot caching.
func NewEngine(analytical Source, relational RelationalSource, c *cache.Cache, opts Options) *Engine {
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	if opts.BucketSize <= 0 {
		opts.BucketSize = time.Hour
	}
	if opts.TopN <= 0 {
		opts.TopN = 5
	}
	if opts.RecentAlerts <= 0 {
		opts.RecentAlerts = 10
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "analytical-store",
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	return &Engine{
		analytical: analytical,
		relational: relational,
		breaker:    gobreaker.NewCircuitBreaker[any](settings),
		cache:      c,
		opts:       opts,
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Window returns the engine's trailing query window. The end is aligned up
// to the bucket grid so a zero-filled timeline over the window holds exactly
// Window/BucketSize buckets, the last one covering now.
func (e *Engine) Window() (start, end time.Time) {
	end = time.Now().UTC().Truncate(e.opts.BucketSize).Add(e.opts.BucketSize)
	return end.Add(-e.opts.Window), end
}

// BucketSize returns the engine's configured timeline resolution.
func (e *Engine) BucketSize() time.Duration {
	return e.opts.BucketSize
}

// query runs one aggregation with fallback. The source decision is made
// once per call: an analytical failure is logged once, counted once, and
// answered by the relational store within the same call.
func query[T any](ctx context.Context, e *Engine, name string, fn func(context.Context, Source) (T, error)) (T, error) {
	began := time.Now()

	result, err := e.breaker.Execute(func() (any, error) {
		return fn(ctx, e.analytical)
	})
	if err == nil {
		metrics.RecordAggregation(name, e.analytical.Name(), time.Since(began), false)
		return result.(T), nil
	}

	logging.Warn().
		Err(err).
		Str("query", name).
		Str("fallback", e.relational.Name()).
		Msg("Analytical store unavailable, serving from fallback")

	fallback, ferr := fn(ctx, e.relational)
	if ferr != nil {
		metrics.RecordAggregation(name, "none", time.Since(began), true)
		logging.Error().
			Err(ferr).
			Str("query", name).
			Msg("Fallback store failed")
		var zero T
		return zero, errors.Join(ErrAllSourcesFailed, err, ferr)
	}

	metrics.RecordAggregation(name, e.relational.Name(), time.Since(began), true)
	return fallback, nil
}

// TotalBytes returns the byte total over [start, end).
func (e *Engine) TotalBytes(ctx context.Context, start, end time.Time) (uint64, error) {
	return query(ctx, e, "total_bytes", func(ctx context.Context, s Source) (uint64, error) {
		return s.TotalBytes(ctx, start, end)
	})
}

// Timeline returns the zero-filled traffic timeline over [start, end).
// Every bucket of the window is present, aligned to bucketSize multiples
// since the Unix epoch, in ascending order.
func (e *Engine) Timeline(ctx context.Context, start, end time.Time, bucketSize time.Duration) ([]models.TimelineBucket, error) {
	sparse, err := query(ctx, e, "timeline", func(ctx context.Context, s Source) ([]models.TimelineBucket, error) {
		return s.Timeline(ctx, start, end, bucketSize)
	})
	if err != nil {
		return nil, err
	}
	return zeroFill(sparse, start, end, bucketSize), nil
}

// TopSourceIPs returns the n busiest sources over [start, end) in
// deterministic order: count descending, bytes descending, address
// ascending.
func (e *Engine) TopSourceIPs(ctx context.Context, start, end time.Time, n int) ([]models.TalkerStat, error) {
	talkers, err := query(ctx, e, "top_source_ips", func(ctx context.Context, s Source) ([]models.TalkerStat, error) {
		return s.TopSourceIPs(ctx, start, end, n)
	})
	if err != nil {
		return nil, err
	}
	sortTalkers(talkers)
	return talkers, nil
}

// ProtocolDistribution returns per-protocol totals over [start, end) in
// deterministic order: total bytes descending, protocol ascending.
func (e *Engine) ProtocolDistribution(ctx context.Context, start, end time.Time) ([]models.ProtocolStat, error) {
	protos, err := query(ctx, e, "protocol_distribution", func(ctx context.Context, s Source) ([]models.ProtocolStat, error) {
		return s.ProtocolDistribution(ctx, start, end)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(protos, func(i, j int) bool {
		if protos[i].TotalBytes != protos[j].TotalBytes {
			return protos[i].TotalBytes > protos[j].TotalBytes
		}
		return protos[i].Protocol < protos[j].Protocol
	})
	return protos, nil
}

// AlertsBySeverity returns one count per severity level over [start, end),
// most severe first, zero-filled for severities with no alerts.
func (e *Engine) AlertsBySeverity(ctx context.Context, start, end time.Time) ([]models.SeverityCount, error) {
	counts, err := query(ctx, e, "alerts_by_severity", func(ctx context.Context, s Source) (map[models.Severity]uint64, error) {
		return s.AlertsBySeverity(ctx, start, end)
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.SeverityCount, 0, len(models.Severities))
	for _, sev := range models.Severities {
		out = append(out, models.SeverityCount{Severity: sev, Count: counts[sev]})
	}
	return out, nil
}

// RecentAlerts returns the newest alerts over [start, end), newest first.
func (e *Engine) RecentAlerts(ctx context.Context, start, end time.Time, limit int) ([]models.AlertSummary, error) {
	return query(ctx, e, "recent_alerts", func(ctx context.Context, s Source) ([]models.AlertSummary, error) {
		return s.RecentAlerts(ctx, start, end, limit)
	})
}

// ActiveConnections is always answered by the relational store.
func (e *Engine) ActiveConnections(ctx context.Context) (uint64, error) {
	began := time.Now()
	count, err := e.relational.ActiveConnections(ctx)
	if err != nil {
		metrics.RecordAggregation("active_connections", "none", time.Since(began), false)
		return 0, err
	}
	metrics.RecordAggregation("active_connections", e.relational.Name(), time.Since(began), false)
	return count, nil
}

// zeroFill expands a sparse ascending bucket list to the full window:
// exactly one bucket per bucketSize interval overlapping [start, end).
func zeroFill(sparse []models.TimelineBucket, start, end time.Time, bucketSize time.Duration) []models.TimelineBucket {
	bucketSec := int64(bucketSize / time.Second)
	if bucketSec <= 0 {
		return sparse
	}

	byStart := make(map[int64]models.TimelineBucket, len(sparse))
	for _, b := range sparse {
		byStart[b.BucketStart.Unix()] = b
	}

	first := (start.Unix() / bucketSec) * bucketSec
	var out []models.TimelineBucket
	for sec := first; sec < end.Unix(); sec += bucketSec {
		if b, ok := byStart[sec]; ok {
			out = append(out, b)
			continue
		}
		out = append(out, models.TimelineBucket{BucketStart: time.Unix(sec, 0).UTC()})
	}
	return out
}

func sortTalkers(talkers []models.TalkerStat) {
	sort.SliceStable(talkers, func(i, j int) bool {
		if talkers[i].Count != talkers[j].Count {
			return talkers[i].Count > talkers[j].Count
		}
		if talkers[i].TotalBytes != talkers[j].TotalBytes {
			return talkers[i].TotalBytes > talkers[j].TotalBytes
		}
		return talkers[i].IP < talkers[j].IP
	})
}
