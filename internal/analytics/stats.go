// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package analytics

import (
	"context"
	"strings"
	"time"

	"github.com/campuswatch/campuswatch/internal/cache"
	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/metrics"
	"github.com/campuswatch/campuswatch/internal/models"
)

// snapshotQuery is the query-name segment of dashboard snapshot cache keys.
const snapshotQuery = "dashboard"

// Dashboard assembles the full dashboard snapshot over the engine's trailing
// window. Snapshots are cached for cache.SnapshotTTL, keyed by the caller
// identity and window parameters; a degraded component contributes a zero
// value rather than failing the whole snapshot, so the dashboard stays up
// while the stores are down.
func (e *Engine) Dashboard(ctx context.Context, caller string) (*models.DashboardStats, error) {
	if caller == "" {
		caller = "anonymous"
	}
	key := cache.GenerateKey(caller, snapshotQuery, e.opts.Window.String(), e.opts.BucketSize.String())
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			metrics.CacheHits.Inc()
			return cached.(*models.DashboardStats), nil
		}
		metrics.CacheMisses.Inc()
	}

	start, end := e.Window()
	stats := &models.DashboardStats{}

	total, err := e.TotalBytes(ctx, start, end)
	if err == nil {
		stats.Metrics.TotalTraffic = total
	}

	if active, err := e.ActiveConnections(ctx); err == nil {
		stats.Metrics.ActiveConnections = active
	} else {
		logging.Warn().Err(err).Msg("Active connections unavailable for snapshot")
	}

	if timeline, err := e.Timeline(ctx, start, end, e.opts.BucketSize); err == nil {
		stats.TrafficTimeline = timeline
	} else {
		stats.TrafficTimeline = zeroFill(nil, start, end, e.opts.BucketSize)
	}

	if talkers, err := e.TopSourceIPs(ctx, start, end, e.opts.TopN); err == nil {
		stats.TopSourceIPs = talkers
	}

	severities, err := e.AlertsBySeverity(ctx, start, end)
	if err != nil {
		severities = make([]models.SeverityCount, 0, len(models.Severities))
		for _, sev := range models.Severities {
			severities = append(severities, models.SeverityCount{Severity: sev})
		}
	}
	stats.AlertsBySeverity = severities
	for _, sc := range severities {
		stats.Metrics.AlertsCount += sc.Count
	}

	if recent, err := e.RecentAlerts(ctx, start, end, e.opts.RecentAlerts); err == nil {
		stats.RecentAlerts = recent
	}

	stats.Metrics.SystemHealth = e.Health(ctx)

	if e.cache != nil {
		e.cache.SetWithTTL(key, stats, cache.SnapshotTTL)
	}
	return stats, nil
}

// Health pings both stores and reports coarse component status.
func (e *Engine) Health(ctx context.Context) models.SystemHealth {
	h := models.SystemHealth{
		Status:          "ok",
		AnalyticalStore: pingStatus(ctx, e.analytical),
		RelationalStore: pingStatus(ctx, e.relational),
		Bus:             "unknown",
	}
	if e.opts.BusStatus != nil {
		h.Bus = e.opts.BusStatus()
	}
	if h.AnalyticalStore != "up" || h.RelationalStore != "up" || h.Bus == "down" {
		h.Status = "degraded"
	}
	return h
}

func pingStatus(ctx context.Context, s Source) string {
	p, ok := s.(Pinger)
	if !ok {
		return "unknown"
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		return "down"
	}
	return "up"
}

// InvalidateSnapshot drops the cached dashboard snapshots for every caller
// so the next read reflects just-written data. Called by alert workflow
// mutations.
func (e *Engine) InvalidateSnapshot() {
	if e.cache == nil {
		return
	}
	e.cache.DeleteWhere(func(key string) bool {
		return strings.Contains(key, ":"+snapshotQuery+":")
	})
}
