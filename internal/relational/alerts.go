// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campuswatch/campuswatch/internal/models"
)

// AlertFilter narrows ListAlerts results. Zero values mean "no filter".
type AlertFilter struct {
	Severity models.Severity
	Status   models.AlertStatus
	SourceIP string
	Limit    int
}

// ListAlerts returns alerts matching the filter, newest first.
func (s *Store) ListAlerts(ctx context.Context, filter AlertFilter) ([]models.AlertRecord, error) {
	var conds []string
	var args []any

	if filter.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.SourceIP != "" {
		conds = append(conds, "source_ip = ?")
		args = append(args, filter.SourceIP)
	}

	query := `SELECT id, title, description, severity, alert_type, status,
		source_ip, COALESCE(destination_ip, ''), COALESCE(source_port, 0), COALESCE(destination_port, 0),
		COALESCE(protocol, ''), COALESCE(signature, ''), COALESCE(signature_id, 0), COALESCE(rule_id, ''),
		COALESCE(country_code, ''), timestamp,
		COALESCE(acknowledged_by, ''), acknowledged_at,
		COALESCE(resolved_by, ''), resolved_at, COALESCE(notes, '')
		FROM security_alerts`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertRecord
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// GetAlert returns one alert by id.
func (s *Store) GetAlert(ctx context.Context, id int64) (*models.AlertRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, severity, alert_type, status,
		source_ip, COALESCE(destination_ip, ''), COALESCE(source_port, 0), COALESCE(destination_port, 0),
		COALESCE(protocol, ''), COALESCE(signature, ''), COALESCE(signature_id, 0), COALESCE(rule_id, ''),
		COALESCE(country_code, ''), timestamp,
		COALESCE(acknowledged_by, ''), acknowledged_at,
		COALESCE(resolved_by, ''), resolved_at, COALESCE(notes, '')
		FROM security_alerts WHERE id = ?`, id)

	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	return a, err
}

// Acknowledge transitions an alert from new to acknowledged, recording the
// acting user and the transition time. Acknowledging an already
// acknowledged or closed alert is an invalid transition.
func (s *Store) Acknowledge(ctx context.Context, id int64, user string) (*models.AlertRecord, error) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE security_alerts
		SET status = ?, acknowledged_by = ?, acknowledged_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(models.StatusAcknowledged), user, now, now,
		id, string(models.StatusNew),
	)
	if err != nil {
		return nil, fmt.Errorf("acknowledge alert %d: %w", id, err)
	}
	return s.afterTransition(ctx, id, res)
}

// Resolve transitions an alert from new or acknowledged to resolved,
// recording the acting user, the transition time, and optional notes.
func (s *Store) Resolve(ctx context.Context, id int64, user, notes string) (*models.AlertRecord, error) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE security_alerts
		SET status = ?, resolved_by = ?, resolved_at = ?,
		    notes = CASE WHEN ? != '' THEN ? ELSE notes END,
		    updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(models.StatusResolved), user, now,
		notes, notes, now,
		id, string(models.StatusNew), string(models.StatusAcknowledged),
	)
	if err != nil {
		return nil, fmt.Errorf("resolve alert %d: %w", id, err)
	}
	return s.afterTransition(ctx, id, res)
}

// MarkFalsePositive applies the correction path: any alert that is not
// yet resolved may be reclassified as a false positive.
func (s *Store) MarkFalsePositive(ctx context.Context, id int64, user string) (*models.AlertRecord, error) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE security_alerts
		SET status = ?, resolved_by = ?, resolved_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(models.StatusFalsePositive), user, now, now,
		id, string(models.StatusNew), string(models.StatusAcknowledged),
	)
	if err != nil {
		return nil, fmt.Errorf("mark alert %d false positive: %w", id, err)
	}
	return s.afterTransition(ctx, id, res)
}

// afterTransition distinguishes "no such alert" from "transition not
// allowed from the current status", then returns the updated row.
func (s *Store) afterTransition(ctx context.Context, id int64, res sql.Result) (*models.AlertRecord, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetAlert(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrInvalidTransition
	}
	return s.GetAlert(ctx, id)
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*models.AlertRecord, error) {
	var a models.AlertRecord
	var sev, status, proto string
	var ts int64
	var ackAt, resAt sql.NullInt64

	err := row.Scan(&a.ID, &a.Title, &a.Description, &sev, &a.AlertType, &status,
		&a.SourceIP, &a.DestinationIP, &a.SourcePort, &a.DestinationPort,
		&proto, &a.Signature, &a.SignatureID, &a.RuleID,
		&a.CountryCode, &ts,
		&a.AcknowledgedBy, &ackAt,
		&a.ResolvedBy, &resAt, &a.Notes)
	if err != nil {
		return nil, err
	}

	a.Severity = models.Severity(sev)
	a.Status = models.AlertStatus(status)
	a.Protocol = models.Protocol(proto)
	a.Timestamp = time.Unix(ts, 0).UTC()
	if ackAt.Valid {
		t := time.Unix(ackAt.Int64, 0).UTC()
		a.AcknowledgedAt = &t
	}
	if resAt.Valid {
		t := time.Unix(resAt.Int64, 0).UTC()
		a.ResolvedAt = &t
	}
	return &a, nil
}
