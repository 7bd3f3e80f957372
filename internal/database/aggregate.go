// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/models"
)

// totalBytesExpr resolves the flow byte count regardless of which convention
// the record was loaded with.
const totalBytesExpr = "COALESCE(bytes, orig_bytes + resp_bytes)"

// unionSource assembles the FROM source covering [start, end]: the single
// partition table, or a UNION ALL over the overlapping partitions. ok is
// false when no partition in the range exists.
func (db *DB) unionSource(prefix string, start, end time.Time) (string, bool) {
	parts := db.partitionsInRange(prefix, start, end)
	switch len(parts) {
	case 0:
		return "", false
	case 1:
		return parts[0], true
	}
	sel := make([]string, len(parts))
	for i, p := range parts {
		sel[i] = "SELECT * FROM " + p
	}
	return "(" + strings.Join(sel, " UNION ALL ") + ")", true
}

// TotalBytes sums flow bytes over [start, end).
func (db *DB) TotalBytes(ctx context.Context, start, end time.Time) (uint64, error) {
	source, ok := db.unionSource(flowPrefix, start, end)
	if !ok {
		return 0, nil
	}

	// DuckDB widens SUM(BIGINT) to HUGEINT; cast back for scanning.
	query := fmt.Sprintf(
		`SELECT CAST(COALESCE(SUM(%s), 0) AS BIGINT) FROM %s WHERE ts >= ? AND ts < ?`,
		totalBytesExpr, source)

	var total int64
	if err := db.conn.QueryRowContext(ctx, query, start.UTC(), end.UTC()).Scan(&total); err != nil {
		return 0, fmt.Errorf("total bytes query failed: %w", err)
	}
	return uint64(total), nil
}

// Timeline returns the non-empty traffic buckets in [start, end). Buckets
// align to multiples of bucketSize since the Unix epoch; the query engine
// zero-fills the gaps.
func (db *DB) Timeline(ctx context.Context, start, end time.Time, bucketSize time.Duration) ([]models.TimelineBucket, error) {
	source, ok := db.unionSource(flowPrefix, start, end)
	if !ok {
		return nil, nil
	}

	bucketSec := int64(bucketSize / time.Second)
	if bucketSec <= 0 {
		return nil, fmt.Errorf("bucket size %v is below one second", bucketSize)
	}

	query := fmt.Sprintf(`
		SELECT (CAST(epoch(ts) AS BIGINT) / ?) * ? AS bucket,
		       CAST(COALESCE(SUM(%s), 0) AS BIGINT) AS bytes,
		       COUNT(*) AS cnt
		FROM %s
		WHERE ts >= ? AND ts < ?
		GROUP BY bucket
		ORDER BY bucket ASC`, totalBytesExpr, source)

	rows, err := db.conn.QueryContext(ctx, query, bucketSec, bucketSec, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("timeline query failed: %w", err)
	}
	defer closeRows(rows, "timeline")

	var buckets []models.TimelineBucket
	for rows.Next() {
		var bucket, bytes, count int64
		if err := rows.Scan(&bucket, &bytes, &count); err != nil {
			return nil, fmt.Errorf("timeline scan failed: %w", err)
		}
		buckets = append(buckets, models.TimelineBucket{
			BucketStart: time.Unix(bucket, 0).UTC(),
			Bytes:       uint64(bytes),
			Count:       uint64(count),
		})
	}
	return buckets, rows.Err()
}

// TopSourceIPs returns the n busiest source addresses in [start, end),
// ranked by event count, then bytes, then address.
func (db *DB) TopSourceIPs(ctx context.Context, start, end time.Time, n int) ([]models.TalkerStat, error) {
	source, ok := db.unionSource(flowPrefix, start, end)
	if !ok {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT source_ip,
		       CAST(COALESCE(SUM(%s), 0) AS BIGINT) AS bytes,
		       COUNT(*) AS cnt
		FROM %s
		WHERE ts >= ? AND ts < ?
		GROUP BY source_ip
		ORDER BY cnt DESC, bytes DESC, source_ip ASC
		LIMIT ?`, totalBytesExpr, source)

	rows, err := db.conn.QueryContext(ctx, query, start.UTC(), end.UTC(), n)
	if err != nil {
		return nil, fmt.Errorf("top source IPs query failed: %w", err)
	}
	defer closeRows(rows, "top source IPs")

	var talkers []models.TalkerStat
	for rows.Next() {
		var t models.TalkerStat
		var bytes, count int64
		if err := rows.Scan(&t.IP, &bytes, &count); err != nil {
			return nil, fmt.Errorf("top source IPs scan failed: %w", err)
		}
		t.TotalBytes = uint64(bytes)
		t.Count = uint64(count)
		talkers = append(talkers, t)
	}
	return talkers, rows.Err()
}

// ProtocolDistribution returns per-protocol event counts and byte totals in
// [start, end).
func (db *DB) ProtocolDistribution(ctx context.Context, start, end time.Time) ([]models.ProtocolStat, error) {
	source, ok := db.unionSource(flowPrefix, start, end)
	if !ok {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT protocol,
		       COUNT(*) AS cnt,
		       CAST(COALESCE(SUM(%s), 0) AS BIGINT) AS bytes
		FROM %s
		WHERE ts >= ? AND ts < ?
		GROUP BY protocol
		ORDER BY bytes DESC, protocol ASC`, totalBytesExpr, source)

	rows, err := db.conn.QueryContext(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("protocol distribution query failed: %w", err)
	}
	defer closeRows(rows, "protocol distribution")

	var protos []models.ProtocolStat
	for rows.Next() {
		var p models.ProtocolStat
		var count, bytes int64
		if err := rows.Scan(&p.Protocol, &count, &bytes); err != nil {
			return nil, fmt.Errorf("protocol distribution scan failed: %w", err)
		}
		p.Count = uint64(count)
		p.TotalBytes = uint64(bytes)
		protos = append(protos, p)
	}
	return protos, rows.Err()
}

// AlertsBySeverity returns the alert count per severity in [start, end).
// Severities with no alerts are absent; the query engine zero-fills them.
func (db *DB) AlertsBySeverity(ctx context.Context, start, end time.Time) (map[models.Severity]uint64, error) {
	source, ok := db.unionSource(alertPrefix, start, end)
	if !ok {
		return map[models.Severity]uint64{}, nil
	}

	query := fmt.Sprintf(`
		SELECT severity, COUNT(*) FROM %s
		WHERE ts >= ? AND ts < ?
		GROUP BY severity`, source)

	rows, err := db.conn.QueryContext(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("alerts by severity query failed: %w", err)
	}
	defer closeRows(rows, "alerts by severity")

	counts := make(map[models.Severity]uint64)
	for rows.Next() {
		var sev string
		var count int64
		if err := rows.Scan(&sev, &count); err != nil {
			return nil, fmt.Errorf("alerts by severity scan failed: %w", err)
		}
		counts[models.Severity(sev)] = uint64(count)
	}
	return counts, rows.Err()
}

// RecentAlerts returns the newest alerts in [start, end), newest first.
func (db *DB) RecentAlerts(ctx context.Context, start, end time.Time, limit int) ([]models.AlertSummary, error) {
	source, ok := db.unionSource(alertPrefix, start, end)
	if !ok {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, title, severity, ts, source_ip FROM %s
		WHERE ts >= ? AND ts < ?
		ORDER BY ts DESC, id DESC
		LIMIT ?`, source)

	rows, err := db.conn.QueryContext(ctx, query, start.UTC(), end.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("recent alerts query failed: %w", err)
	}
	defer closeRows(rows, "recent alerts")

	var alerts []models.AlertSummary
	for rows.Next() {
		var a models.AlertSummary
		var sev string
		var ts time.Time
		if err := rows.Scan(&a.ID, &a.Title, &sev, &ts, &a.SourceIP); err != nil {
			return nil, fmt.Errorf("recent alerts scan failed: %w", err)
		}
		a.Severity = models.Severity(sev)
		a.Timestamp = ts.UTC()
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func closeRows(rows interface{ Close() error }, what string) {
	if err := rows.Close(); err != nil {
		logging.Warn().Err(err).Str("query", what).Msg("Failed to close result rows")
	}
}
