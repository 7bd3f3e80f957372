// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package normalize

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func TestFlowDefaults(t *testing.T) {
	// Only the required fields: everything optional must default.
	raw := map[string]any{
		"@timestamp": "2026-08-29T10:00:00Z",
		"source_ip":  "192.168.1.10",
	}

	f, err := Flow(raw)
	if err != nil {
		t.Fatalf("Flow returned error for minimal valid record: %v", err)
	}

	if f.Protocol != models.ProtocolTCP {
		t.Errorf("protocol default = %q, want TCP", f.Protocol)
	}
	if f.ConnectionState != models.StateEstablished {
		t.Errorf("connection_state default = %q, want ESTABLISHED", f.ConnectionState)
	}
	if f.SourcePort != 0 || f.DestinationPort != 0 {
		t.Errorf("ports default = %d/%d, want 0/0", f.SourcePort, f.DestinationPort)
	}
	if f.BytesSent != 0 || f.BytesReceived != 0 {
		t.Errorf("byte counters default = %d/%d, want 0/0", f.BytesSent, f.BytesReceived)
	}
}

func TestFlowAliasResolution(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want func(*models.FlowRecord) bool
	}{
		{
			name: "zeek literal dotted keys",
			raw: map[string]any{
				"ts":       float64(1756461600),
				"id.orig_h": "10.0.0.5",
				"id.resp_h": "8.8.8.8",
				"id.orig_p": float64(51515),
				"id.resp_p": float64(53),
				"proto":    "udp",
			},
			want: func(f *models.FlowRecord) bool {
				return f.SourceIP == "10.0.0.5" && f.DestinationIP == "8.8.8.8" &&
					f.SourcePort == 51515 && f.DestinationPort == 53 &&
					f.Protocol == models.ProtocolUDP
			},
		},
		{
			name: "logstash nested geoip",
			raw: map[string]any{
				"@timestamp": "2026-08-29T10:00:00Z",
				"source_ip":  "10.0.0.5",
				"geoip":      map[string]any{"country_code2": "DE"},
				"service":    "SSH",
			},
			want: func(f *models.FlowRecord) bool {
				return f.CountryCode == "DE" && f.Application == "SSH"
			},
		},
		{
			name: "byte counter garbage coerces to zero",
			raw: map[string]any{
				"@timestamp": "2026-08-29T10:00:00Z",
				"source_ip":  "10.0.0.5",
				"orig_bytes": "not-a-number",
				"resp_bytes": float64(-12),
			},
			want: func(f *models.FlowRecord) bool {
				return f.BytesSent == 0 && f.BytesReceived == 0
			},
		},
		{
			name: "split byte fields",
			raw: map[string]any{
				"@timestamp": "2026-08-29T10:00:00Z",
				"source_ip":  "10.0.0.5",
				"orig_bytes": float64(1000),
				"resp_bytes": float64(2500),
			},
			want: func(f *models.FlowRecord) bool {
				return f.BytesSent == 1000 && f.BytesReceived == 2500 && f.TotalBytes() == 3500
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Flow(tt.raw)
			if err != nil {
				t.Fatalf("Flow() error = %v", err)
			}
			if !tt.want(f) {
				t.Errorf("Flow() = %+v, predicate failed", f)
			}
		})
	}
}

func TestFlowMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"missing timestamp", map[string]any{"source_ip": "10.0.0.5"}},
		{"untypeable timestamp", map[string]any{"@timestamp": "yesterday", "source_ip": "10.0.0.5"}},
		{"missing source_ip", map[string]any{"@timestamp": "2026-08-29T10:00:00Z"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Flow(tt.raw); !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("Flow() error = %v, want ErrMalformedEvent", err)
			}
		})
	}
}

func TestAlertNormalization(t *testing.T) {
	raw := map[string]any{
		"@timestamp":     "2026-08-29T09:30:00Z",
		"source_ip":      "45.33.32.156",
		"destination_ip": "192.168.1.20",
		"src_port":       float64(4444),
		"dest_port":      float64(22),
		"proto":          "tcp",
		"geoip":          map[string]any{"country_code2": "RU"},
		"alert": map[string]any{
			"signature":    "ET SCAN Potential SSH Brute Force",
			"signature_id": float64(2001219),
			"severity":     float64(1),
			"category":     "Attempted Administrator Privilege Gain",
		},
	}

	a, err := Alert(raw)
	if err != nil {
		t.Fatalf("Alert() error = %v", err)
	}

	if a.Title != "ET SCAN Potential SSH Brute Force" {
		t.Errorf("title = %q", a.Title)
	}
	if a.Severity != models.SeverityCritical {
		t.Errorf("severity = %q, want critical", a.Severity)
	}
	if a.Status != models.StatusNew {
		t.Errorf("status = %q, want new", a.Status)
	}
	if a.SignatureID != 2001219 || a.RuleID != "2001219" {
		t.Errorf("signature_id = %d, rule_id = %q", a.SignatureID, a.RuleID)
	}
	if a.AlertType != "Attempted Administrator Privilege Gain" {
		t.Errorf("alert_type = %q", a.AlertType)
	}
	if a.CountryCode != "RU" {
		t.Errorf("country_code = %q, want RU", a.CountryCode)
	}
	if a.Timestamp != time.Date(2026, 8, 29, 9, 30, 0, 0, time.UTC) {
		t.Errorf("timestamp = %v", a.Timestamp)
	}
}

func TestAlertMissingTimestampDefaultsToNow(t *testing.T) {
	before := time.Now().UTC()
	a, err := Alert(map[string]any{
		"alert": map[string]any{"signature": "sig", "severity": float64(2)},
	})
	if err != nil {
		t.Fatalf("Alert() error = %v", err)
	}
	if a.Timestamp.Before(before.Add(-time.Second)) || a.Timestamp.After(time.Now().UTC().Add(time.Second)) {
		t.Errorf("timestamp %v not near now", a.Timestamp)
	}
}

func TestAlertMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"missing signature", map[string]any{"alert": map[string]any{"severity": float64(1)}}},
		{"missing severity", map[string]any{"alert": map[string]any{"signature": "sig"}}},
		{"empty message", map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Alert(tt.raw); !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("Alert() error = %v, want ErrMalformedEvent", err)
			}
		})
	}
}

func TestSeverityLabel(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  models.Severity
	}{
		{"one is critical", float64(1), models.SeverityCritical},
		{"two is high", float64(2), models.SeverityHigh},
		{"three is medium", float64(3), models.SeverityMedium},
		{"four is low", float64(4), models.SeverityLow},
		{"zero is low", float64(0), models.SeverityLow},
		{"negative is low", float64(-1), models.SeverityLow},
		{"int one", 1, models.SeverityCritical},
		{"string two", "2", models.SeverityHigh},
		{"nil is low", nil, models.SeverityLow},
		{"non-numeric string is low", "high", models.SeverityLow},
		{"fractional is low", float64(1.5), models.SeverityLow},
		{"bool is low", true, models.SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SeverityLabel(tt.input); got != tt.want {
				t.Errorf("SeverityLabel(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFlowFromJSON(t *testing.T) {
	payload := []byte(`{"@timestamp":"2026-08-29T10:00:00Z","source_ip":"192.168.1.10","orig_bytes":512,"resp_bytes":2048,"proto":"HTTPS"}`)

	f, err := FlowFromJSON(payload)
	if err != nil {
		t.Fatalf("FlowFromJSON() error = %v", err)
	}
	if f.TotalBytes() != 2560 {
		t.Errorf("TotalBytes() = %d, want 2560", f.TotalBytes())
	}

	if _, err := FlowFromJSON([]byte("{not json")); !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("invalid JSON should be ErrMalformedEvent, got %v", err)
	}
}
