// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

// Package database provides the analytical store: a DuckDB database holding
// raw network flows and security alerts in per-day partition tables. It is
// the preferred source for dashboard aggregations; the relational store
// (package relational) serves as its fallback.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/campuswatch/campuswatch/internal/logging"
)

// Partition table prefixes. Each UTC day of data lives in its own table,
// e.g. network_flows_2026_08_29.
const (
	flowPrefix  = "network_flows"
	alertPrefix = "security_alerts"
)

// Options tunes the DuckDB connection.
type Options struct {
	// Path is the database file, or ":memory:" for an ephemeral store.
	Path string
	// Threads caps DuckDB's worker threads. Zero means NumCPU.
	Threads int
	// MaxMemory is DuckDB's memory limit, e.g. "512MB". Empty uses "1GB".
	MaxMemory string
}

// DB wraps the DuckDB connection and tracks which day partitions exist.
type DB struct {
	conn *sql.DB

	// partitions caches the set of known partition table names so the hot
	// write path can skip CREATE TABLE IF NOT EXISTS round trips.
	partitions   map[string]struct{}
	partitionsMu sync.RWMutex
}

// New opens (or creates) the analytical store and loads the set of existing
// partition tables.
func New(opts Options) (*DB, error) {
	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := opts.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	// Ensure the parent directory exists for file-backed databases.
	if opts.Path != ":memory:" && opts.Path != "" {
		dbDir := filepath.Dir(opts.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	// Disable auto-install/auto-load of extensions to prevent hangs in
	// restricted network environments. Nothing here needs an extension.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		opts.Path, threads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open analytical store: %w", err)
	}

	// DuckDB is an in-process engine; a single connection avoids write
	// contention between concurrent inserts and long aggregation scans.
	conn.SetMaxOpenConns(1)

	db := &DB{
		conn:       conn,
		partitions: make(map[string]struct{}),
	}

	if err := db.loadPartitions(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to enumerate partitions: %w", err)
	}

	logging.Info().
		Str("path", opts.Path).
		Int("threads", threads).
		Int("partitions", len(db.partitions)).
		Msg("Analytical store opened")

	return db, nil
}

// Name identifies this store in fallback logs and health reports.
func (db *DB) Name() string { return "analytical" }

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// loadPartitions populates the partition cache from the catalog. Partition
// tables are only ever created by this process afterwards, so the cache
// stays authoritative for the lifetime of the DB.
func (db *DB) loadPartitions() error {
	rows, err := db.conn.Query(
		`SELECT table_name FROM information_schema.tables WHERE table_schema = 'main'`)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Failed to close partition listing")
		}
	}()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		db.partitions[name] = struct{}{}
	}
	return rows.Err()
}

// partitionName returns the table name holding records for the UTC day of t.
func partitionName(prefix string, t time.Time) string {
	return prefix + "_" + t.UTC().Format("2006_01_02")
}

// ensurePartition creates the partition table for the given day if it does
// not exist yet, and records it in the cache.
func (db *DB) ensurePartition(ctx context.Context, prefix string, day time.Time) (string, error) {
	name := partitionName(prefix, day)

	db.partitionsMu.RLock()
	_, ok := db.partitions[name]
	db.partitionsMu.RUnlock()
	if ok {
		return name, nil
	}

	db.partitionsMu.Lock()
	defer db.partitionsMu.Unlock()
	if _, ok := db.partitions[name]; ok {
		return name, nil
	}

	var schema string
	switch prefix {
	case flowPrefix:
		schema = flowPartitionSchema
	case alertPrefix:
		schema = alertPartitionSchema
	default:
		return "", fmt.Errorf("unknown partition prefix %q", prefix)
	}

	if _, err := db.conn.ExecContext(ctx, fmt.Sprintf(schema, name)); err != nil {
		return "", fmt.Errorf("failed to create partition %s: %w", name, err)
	}
	db.partitions[name] = struct{}{}

	logging.Debug().Str("partition", name).Msg("Created partition table")
	return name, nil
}

// partitionsInRange returns the existing partition tables whose day overlaps
// [start, end], ordered oldest first. Days without a table are skipped; the
// caller treats an empty result as "no data".
func (db *DB) partitionsInRange(prefix string, start, end time.Time) []string {
	db.partitionsMu.RLock()
	defer db.partitionsMu.RUnlock()

	startDay := start.UTC().Truncate(24 * time.Hour)
	endDay := end.UTC().Truncate(24 * time.Hour)

	var names []string
	for day := startDay; !day.After(endDay); day = day.Add(24 * time.Hour) {
		name := partitionName(prefix, day)
		if _, ok := db.partitions[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// flowPartitionSchema carries both byte conventions found in sensor exports:
// a precomputed total (bytes) and the Zeek-style originator/responder pair.
// Aggregations read COALESCE(bytes, orig_bytes + resp_bytes).
const flowPartitionSchema = `
CREATE TABLE IF NOT EXISTS %s (
	ts               TIMESTAMP NOT NULL,
	source_ip        VARCHAR NOT NULL,
	destination_ip   VARCHAR,
	source_port      INTEGER,
	destination_port INTEGER,
	protocol         VARCHAR,
	bytes            BIGINT,
	orig_bytes       BIGINT,
	resp_bytes       BIGINT,
	packets_sent     BIGINT,
	packets_received BIGINT,
	connection_state VARCHAR,
	duration         DOUBLE,
	application      VARCHAR,
	country_code     VARCHAR
)`

// alertPartitionSchema mirrors the record the normalizer emits. Workflow
// state (acknowledged/resolved) lives only in the relational store; the id
// column carries the relational row id when that insert succeeded, so the
// two stores' recent-alert listings line up.
const alertPartitionSchema = `
CREATE TABLE IF NOT EXISTS %s (
	id               BIGINT,
	ts               TIMESTAMP NOT NULL,
	title            VARCHAR NOT NULL,
	description      VARCHAR,
	severity         VARCHAR NOT NULL,
	alert_type       VARCHAR,
	source_ip        VARCHAR,
	destination_ip   VARCHAR,
	source_port      INTEGER,
	destination_port INTEGER,
	protocol         VARCHAR,
	signature        VARCHAR,
	signature_id     BIGINT,
	country_code     VARCHAR
)`

func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close analytical store connection")
	}
}
