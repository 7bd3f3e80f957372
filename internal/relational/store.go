// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

// Package relational implements the durable row-oriented backstop store on
// SQLite.
//
// It is the system of record for alert status transitions and the fallback
// aggregation source when the analytical store is unreachable. The write
// path is append-only for flow and alert records; the only mutations are
// the explicit acknowledge/resolve/false-positive alert transitions.
//
// Timestamps are stored as unix epoch seconds so range filters and time
// bucketing stay cheap integer arithmetic.
package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/models"
)

// ErrInvalidTransition is returned when an alert status change violates
// the monotonic workflow (new -> acknowledged -> resolved, with the
// false_positive correction allowed from any non-resolved state).
var ErrInvalidTransition = errors.New("invalid alert status transition")

// ErrAlertNotFound is returned for transitions on unknown alert ids.
var ErrAlertNotFound = errors.New("alert not found")

// activeConnectionWindow is how far back a flow in ESTABLISHED state
// counts as an active connection.
const activeConnectionWindow = 5 * time.Minute

// Store wraps the SQLite connection pool. It is safe for concurrent use;
// query-engine reads may run alongside ingestion writes.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}

	// modernc sqlite serializes writes internally; a single connection
	// avoids SQLITE_BUSY churn under concurrent ingest + query load.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.Info().Str("path", path).Msg("relational store ready")
	return s, nil
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS network_traffic (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			source_ip TEXT NOT NULL,
			destination_ip TEXT NOT NULL DEFAULT '',
			source_port INTEGER NOT NULL DEFAULT 0,
			destination_port INTEGER NOT NULL DEFAULT 0,
			protocol TEXT NOT NULL DEFAULT 'TCP',
			bytes_sent INTEGER NOT NULL DEFAULT 0,
			bytes_received INTEGER NOT NULL DEFAULT 0,
			packets_sent INTEGER NOT NULL DEFAULT 0,
			packets_received INTEGER NOT NULL DEFAULT 0,
			connection_state TEXT NOT NULL DEFAULT 'ESTABLISHED',
			duration REAL NOT NULL DEFAULT 0,
			application TEXT,
			country_code TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traffic_timestamp ON network_traffic(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_traffic_source ON network_traffic(source_ip, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_traffic_protocol ON network_traffic(protocol, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_traffic_state ON network_traffic(connection_state, timestamp)`,
		`CREATE TABLE IF NOT EXISTS security_alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT 'medium',
			alert_type TEXT NOT NULL DEFAULT 'intrusion',
			status TEXT NOT NULL DEFAULT 'new',
			source_ip TEXT NOT NULL DEFAULT '',
			destination_ip TEXT,
			source_port INTEGER,
			destination_port INTEGER,
			protocol TEXT,
			signature TEXT,
			signature_id INTEGER,
			rule_id TEXT,
			country_code TEXT,
			timestamp INTEGER NOT NULL,
			acknowledged_by TEXT,
			acknowledged_at INTEGER,
			resolved_by TEXT,
			resolved_at INTEGER,
			notes TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_severity ON security_alerts(severity, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status ON security_alerts(status, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_source ON security_alerts(source_ip, timestamp)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports store reachability for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertFlow appends one flow record. Records are immutable after insert.
func (s *Store) InsertFlow(ctx context.Context, f *models.FlowRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO network_traffic (
			timestamp, source_ip, destination_ip, source_port, destination_port,
			protocol, bytes_sent, bytes_received, packets_sent, packets_received,
			connection_state, duration, application, country_code, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Timestamp.Unix(), f.SourceIP, f.DestinationIP, f.SourcePort, f.DestinationPort,
		string(f.Protocol), f.BytesSent, f.BytesReceived, f.PacketsSent, f.PacketsReceived,
		string(f.ConnectionState), f.DurationSeconds, nullable(f.Application), nullable(f.CountryCode),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert flow: %w", err)
	}
	return nil
}

// InsertAlert appends one alert record with status "new" and returns its id.
func (s *Store) InsertAlert(ctx context.Context, a *models.AlertRecord) (int64, error) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO security_alerts (
			title, description, severity, alert_type, status,
			source_ip, destination_ip, source_port, destination_port, protocol,
			signature, signature_id, rule_id, country_code, timestamp,
			notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Title, a.Description, string(a.Severity), a.AlertType, string(models.StatusNew),
		a.SourceIP, nullable(a.DestinationIP), a.SourcePort, a.DestinationPort, nullable(string(a.Protocol)),
		nullable(a.Signature), a.SignatureID, nullable(a.RuleID), nullable(a.CountryCode), a.Timestamp.Unix(),
		nullable(a.Notes), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert alert: %w", err)
	}
	return res.LastInsertId()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
