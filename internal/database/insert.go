// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package database

import (
	"context"
	"fmt"

	"github.com/campuswatch/campuswatch/internal/models"
)

// InsertFlow appends a flow record to its UTC-day partition, creating the
// partition on first write of the day.
func (db *DB) InsertFlow(ctx context.Context, f *models.FlowRecord) error {
	table, err := db.ensurePartition(ctx, flowPrefix, f.Timestamp)
	if err != nil {
		return err
	}

	// bytes stays NULL for normalizer-produced records; the orig/resp pair
	// is authoritative and COALESCE sums it at read time.
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, source_ip, destination_ip, source_port, destination_port,
		protocol, bytes, orig_bytes, resp_bytes, packets_sent,
		packets_received, connection_state, duration, application, country_code
	) VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?)`, table)

	_, err = db.conn.ExecContext(ctx, query,
		f.Timestamp.UTC(), f.SourceIP, f.DestinationIP,
		f.SourcePort, f.DestinationPort, string(f.Protocol),
		int64(f.BytesSent), int64(f.BytesReceived),
		int64(f.PacketsSent), int64(f.PacketsReceived),
		string(f.ConnectionState), f.DurationSeconds,
		f.Application, f.CountryCode,
	)
	if err != nil {
		return fmt.Errorf("failed to insert flow into %s: %w", table, err)
	}
	return nil
}

// InsertAlert appends an alert record to its UTC-day partition. The record's
// ID is whatever the relational insert assigned, or zero when that sink was
// unavailable.
func (db *DB) InsertAlert(ctx context.Context, a *models.AlertRecord) error {
	table, err := db.ensurePartition(ctx, alertPrefix, a.Timestamp)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (
		id, ts, title, description, severity, alert_type, source_ip,
		destination_ip, source_port, destination_port, protocol,
		signature, signature_id, country_code
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table)

	_, err = db.conn.ExecContext(ctx, query,
		a.ID, a.Timestamp.UTC(), a.Title, a.Description, string(a.Severity),
		a.AlertType, a.SourceIP, a.DestinationIP, a.SourcePort,
		a.DestinationPort, string(a.Protocol), a.Signature, a.SignatureID,
		a.CountryCode,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert into %s: %w", table, err)
	}
	return nil
}
