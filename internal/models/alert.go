// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package models

import "time"

// Severity is the ordered alert severity: critical > high > medium > low.
type Severity string

// Severity levels.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists all levels from most to least severe. Aggregations over
// severity must cover every level, zero-filled for absent ones.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Rank returns the sort rank of a severity, lower is more severe.
// Unknown severities rank last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// AlertStatus is the workflow state of an alert.
type AlertStatus string

// Alert workflow states. Transitions are monotonic
// (new -> acknowledged -> resolved) except for correction to false_positive.
const (
	StatusNew           AlertStatus = "new"
	StatusAcknowledged  AlertStatus = "acknowledged"
	StatusResolved      AlertStatus = "resolved"
	StatusFalsePositive AlertStatus = "false_positive"
)

// AlertRecord is one security detection produced by the sensor layer.
//
// Created with status "new" by the pipeline; mutated only through explicit
// acknowledge/resolve actions by an analyst or admin; never deleted by the
// pipeline.
type AlertRecord struct {
	ID              int64       `json:"id,omitempty"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Severity        Severity    `json:"severity"`
	AlertType       string      `json:"alert_type"`
	Status          AlertStatus `json:"status"`
	SourceIP        string      `json:"source_ip"`
	DestinationIP   string      `json:"destination_ip,omitempty"`
	SourcePort      int         `json:"source_port,omitempty"`
	DestinationPort int         `json:"destination_port,omitempty"`
	Protocol        Protocol    `json:"protocol,omitempty"`
	Signature       string      `json:"signature,omitempty"`
	SignatureID     int64       `json:"signature_id,omitempty"`
	RuleID          string      `json:"rule_id,omitempty"`
	CountryCode     string      `json:"country_code,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
	AcknowledgedBy  string      `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time  `json:"acknowledged_at,omitempty"`
	ResolvedBy      string      `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
	Notes           string      `json:"notes,omitempty"`
}

// AlertNotification is the payload pushed to live clients for a
// high/critical alert.
type AlertNotification struct {
	Event         string    `json:"event"` // always "new_alert"
	Severity      Severity  `json:"severity"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	SourceIP      string    `json:"source_ip"`
	DestinationIP string    `json:"destination_ip,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
