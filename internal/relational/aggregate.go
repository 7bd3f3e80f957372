// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package relational

import (
	"context"
	"fmt"
	"time"

	"github.com/campuswatch/campuswatch/internal/models"
)

// The aggregation methods below implement the fallback side of the
// analytics.AggregationSource contract. Shapes and sort orders are
// finalized by the engine so both sources stay value-equal; these queries
// only need to return correct raw numbers.

// Name identifies this source in fallback logs.
func (s *Store) Name() string { return "relational" }

// TotalBytes sums bytes_sent + bytes_received over the window.
func (s *Store) TotalBytes(ctx context.Context, start, end time.Time) (uint64, error) {
	var total uint64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(bytes_sent + bytes_received), 0)
		FROM network_traffic
		WHERE timestamp >= ? AND timestamp < ?`,
		start.Unix(), end.Unix(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total bytes: %w", err)
	}
	return total, nil
}

// Timeline returns the non-empty buckets of the window; the engine
// zero-fills the gaps. Bucket starts are aligned to multiples of
// bucketSize since the epoch, matching the analytical store's fixed
// intervals.
func (s *Store) Timeline(ctx context.Context, start, end time.Time, bucketSize time.Duration) ([]models.TimelineBucket, error) {
	bucketSec := int64(bucketSize / time.Second)
	if bucketSec <= 0 {
		return nil, fmt.Errorf("bucket size %v too small", bucketSize)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT (timestamp / ?) * ? AS bucket,
		       COALESCE(SUM(bytes_sent + bytes_received), 0),
		       COUNT(*)
		FROM network_traffic
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY bucket
		ORDER BY bucket`,
		bucketSec, bucketSec, start.Unix(), end.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	defer rows.Close()

	var buckets []models.TimelineBucket
	for rows.Next() {
		var bucket int64
		var b models.TimelineBucket
		if err := rows.Scan(&bucket, &b.Bytes, &b.Count); err != nil {
			return nil, fmt.Errorf("scan timeline bucket: %w", err)
		}
		b.BucketStart = time.Unix(bucket, 0).UTC()
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// TopSourceIPs returns per-source-IP event counts and byte totals. The
// engine applies the deterministic sort and the top-N cut, but the query
// pre-sorts and over-fetches to keep result sets small.
func (s *Store) TopSourceIPs(ctx context.Context, start, end time.Time, n int) ([]models.TalkerStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_ip,
		       COALESCE(SUM(bytes_sent + bytes_received), 0),
		       COUNT(*)
		FROM network_traffic
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY source_ip
		ORDER BY COUNT(*) DESC, SUM(bytes_sent + bytes_received) DESC, source_ip ASC
		LIMIT ?`,
		start.Unix(), end.Unix(), n,
	)
	if err != nil {
		return nil, fmt.Errorf("top source ips: %w", err)
	}
	defer rows.Close()

	var talkers []models.TalkerStat
	for rows.Next() {
		var t models.TalkerStat
		if err := rows.Scan(&t.IP, &t.TotalBytes, &t.Count); err != nil {
			return nil, fmt.Errorf("scan talker: %w", err)
		}
		talkers = append(talkers, t)
	}
	return talkers, rows.Err()
}

// ProtocolDistribution returns per-protocol counts and byte totals.
func (s *Store) ProtocolDistribution(ctx context.Context, start, end time.Time) ([]models.ProtocolStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT protocol,
		       COUNT(*),
		       COALESCE(SUM(bytes_sent + bytes_received), 0)
		FROM network_traffic
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY protocol
		ORDER BY SUM(bytes_sent + bytes_received) DESC, protocol ASC`,
		start.Unix(), end.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("protocol distribution: %w", err)
	}
	defer rows.Close()

	var stats []models.ProtocolStat
	for rows.Next() {
		var p models.ProtocolStat
		if err := rows.Scan(&p.Protocol, &p.Count, &p.TotalBytes); err != nil {
			return nil, fmt.Errorf("scan protocol stat: %w", err)
		}
		stats = append(stats, p)
	}
	return stats, rows.Err()
}

// AlertsBySeverity returns alert counts keyed by severity for the window.
// Absent levels are zero-filled by the engine.
func (s *Store) AlertsBySeverity(ctx context.Context, start, end time.Time) (map[models.Severity]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT severity, COUNT(*)
		FROM security_alerts
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY severity`,
		start.Unix(), end.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("alerts by severity: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Severity]uint64)
	for rows.Next() {
		var sev string
		var count uint64
		if err := rows.Scan(&sev, &count); err != nil {
			return nil, fmt.Errorf("scan severity count: %w", err)
		}
		counts[models.Severity(sev)] = count
	}
	return counts, rows.Err()
}

// RecentAlerts returns the newest alerts in the window, newest first.
func (s *Store) RecentAlerts(ctx context.Context, start, end time.Time, limit int) ([]models.AlertSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, severity, timestamp, source_ip
		FROM security_alerts
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		start.Unix(), end.Unix(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertSummary
	for rows.Next() {
		var a models.AlertSummary
		var sev string
		var ts int64
		if err := rows.Scan(&a.ID, &a.Title, &sev, &ts, &a.SourceIP); err != nil {
			return nil, fmt.Errorf("scan alert summary: %w", err)
		}
		a.Severity = models.Severity(sev)
		a.Timestamp = time.Unix(ts, 0).UTC()
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ActiveConnections counts flows in ESTABLISHED state observed within the
// last five minutes. This is always computed here, never in the
// analytical store: connection-state freshness must survive analytical
// outages.
func (s *Store) ActiveConnections(ctx context.Context) (uint64, error) {
	cutoff := time.Now().Add(-activeConnectionWindow).Unix()

	var count uint64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM network_traffic
		WHERE timestamp >= ? AND connection_state = ?`,
		cutoff, string(models.StateEstablished),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("active connections: %w", err)
	}
	return count, nil
}

// RecentFlows returns the newest flow records for the network activity
// view, newest first.
func (s *Store) RecentFlows(ctx context.Context, limit int) ([]models.FlowRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, source_ip, destination_ip, source_port, destination_port,
		       protocol, bytes_sent, bytes_received, packets_sent, packets_received,
		       connection_state, duration, COALESCE(application, ''), COALESCE(country_code, '')
		FROM network_traffic
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent flows: %w", err)
	}
	defer rows.Close()

	var flows []models.FlowRecord
	for rows.Next() {
		var f models.FlowRecord
		var ts int64
		var proto, state string
		if err := rows.Scan(&ts, &f.SourceIP, &f.DestinationIP, &f.SourcePort, &f.DestinationPort,
			&proto, &f.BytesSent, &f.BytesReceived, &f.PacketsSent, &f.PacketsReceived,
			&state, &f.DurationSeconds, &f.Application, &f.CountryCode); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		f.Timestamp = time.Unix(ts, 0).UTC()
		f.Protocol = models.Protocol(proto)
		f.ConnectionState = models.ConnectionState(state)
		flows = append(flows, f)
	}
	return flows, rows.Err()
}
