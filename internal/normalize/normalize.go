// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

// Package normalize maps raw bus messages into canonical flow and alert
// records.
//
// Upstream sensor formats vary (Zeek, Suricata, and Logstash-massaged
// variants of both), so every canonical field is resolved through an
// explicit alias table: an ordered list of candidate keys with type
// coercion and a default. The tables are package-level data, which keeps
// the tolerance rules auditable and testable in isolation.
//
// Policy: required fields that are absent or untypeable fail the record
// with ErrMalformedEvent. Optional fields default rather than fail, and
// byte/packet counters coerce garbage to zero - a partial record is
// preferable to silently dropping an ingestion batch.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/campuswatch/campuswatch/internal/models"
)

// ErrMalformedEvent marks a bus message that cannot be normalized because
// a required field is absent or untypeable. The record is dropped and the
// consumer loop continues.
var ErrMalformedEvent = errors.New("malformed event")

// Topic names consumed from the bus.
const (
	TopicFlows  = "network_flows"
	TopicAlerts = "security_alerts"
)

// flowAliases maps each canonical flow field to its candidate keys in
// priority order. Dotted candidates are tried both as literal keys and as
// nested-object paths (Zeek writes literal "id.orig_h" keys, Logstash
// rewrites them into nested objects).
var flowAliases = map[string][]string{
	"timestamp":        {"@timestamp", "timestamp", "ts"},
	"source_ip":        {"source_ip", "src_ip", "id.orig_h"},
	"destination_ip":   {"destination_ip", "dest_ip", "dst_ip", "id.resp_h"},
	"source_port":      {"source_port", "src_port", "id.orig_p"},
	"destination_port": {"destination_port", "dest_port", "dst_port", "id.resp_p"},
	"protocol":         {"proto", "protocol"},
	"bytes_sent":       {"orig_bytes", "bytes_sent"},
	"bytes_received":   {"resp_bytes", "bytes_received"},
	"packets_sent":     {"packets_sent", "orig_pkts"},
	"packets_received": {"packets_received", "resp_pkts"},
	"connection_state": {"conn_state", "connection_state"},
	"duration":         {"duration", "duration_seconds"},
	"application":      {"service", "application"},
	"country_code":     {"geoip.country_code2", "country_code"},
}

// alertAliases maps canonical alert fields to candidate keys. Suricata
// nests detection metadata under "alert"; flattened variants are accepted
// as fallbacks.
var alertAliases = map[string][]string{
	"timestamp":        {"@timestamp", "timestamp", "ts"},
	"signature":        {"alert.signature", "signature"},
	"signature_id":     {"alert.signature_id", "signature_id"},
	"severity":         {"alert.severity", "severity"},
	"category":         {"alert.category", "category"},
	"source_ip":        {"source_ip", "src_ip"},
	"destination_ip":   {"destination_ip", "dest_ip", "dst_ip"},
	"source_port":      {"source_port", "src_port"},
	"destination_port": {"destination_port", "dest_port", "dst_port"},
	"protocol":         {"proto", "protocol"},
	"country_code":     {"geoip.country_code2", "country_code"},
}

// Flow applies the flow alias table to a decoded bus message.
//
// Required: timestamp and source_ip. Everything else defaults: protocol
// "TCP", connection_state "ESTABLISHED", ports 0, counters 0.
func Flow(raw map[string]any) (*models.FlowRecord, error) {
	ts, ok := timeField(raw, flowAliases["timestamp"])
	if !ok {
		return nil, fmt.Errorf("%w: flow missing timestamp", ErrMalformedEvent)
	}
	srcIP, ok := stringField(raw, flowAliases["source_ip"])
	if !ok || srcIP == "" {
		return nil, fmt.Errorf("%w: flow missing source_ip", ErrMalformedEvent)
	}

	f := &models.FlowRecord{
		Timestamp:       ts,
		SourceIP:        srcIP,
		Protocol:        models.ProtocolTCP,
		ConnectionState: models.StateEstablished,
	}

	if v, ok := stringField(raw, flowAliases["destination_ip"]); ok {
		f.DestinationIP = v
	}
	f.SourcePort = intOrZero(raw, flowAliases["source_port"])
	f.DestinationPort = intOrZero(raw, flowAliases["destination_port"])
	if v, ok := stringField(raw, flowAliases["protocol"]); ok && v != "" {
		f.Protocol = models.Protocol(strings.ToUpper(v))
	}
	f.BytesSent = uintOrZero(raw, flowAliases["bytes_sent"])
	f.BytesReceived = uintOrZero(raw, flowAliases["bytes_received"])
	f.PacketsSent = uintOrZero(raw, flowAliases["packets_sent"])
	f.PacketsReceived = uintOrZero(raw, flowAliases["packets_received"])
	if v, ok := stringField(raw, flowAliases["connection_state"]); ok && v != "" {
		f.ConnectionState = models.ConnectionState(strings.ToUpper(v))
	}
	if v, ok := floatField(raw, flowAliases["duration"]); ok {
		f.DurationSeconds = v
	}
	if v, ok := stringField(raw, flowAliases["application"]); ok {
		f.Application = v
	}
	if v, ok := stringField(raw, flowAliases["country_code"]); ok {
		f.CountryCode = v
	}

	return f, nil
}

// Alert applies the alert alias table to a decoded bus message.
//
// Required: a signature and a severity key (the severity value itself may
// be anything; SeverityLabel is total). A missing timestamp defaults to
// the current time, matching the upstream consumer behavior.
func Alert(raw map[string]any) (*models.AlertRecord, error) {
	sig, ok := stringField(raw, alertAliases["signature"])
	if !ok || sig == "" {
		return nil, fmt.Errorf("%w: alert missing signature", ErrMalformedEvent)
	}
	sevRaw, ok := lookup(raw, alertAliases["severity"])
	if !ok {
		return nil, fmt.Errorf("%w: alert missing severity", ErrMalformedEvent)
	}

	ts, ok := timeField(raw, alertAliases["timestamp"])
	if !ok {
		ts = time.Now().UTC()
	}

	category, _ := stringField(raw, alertAliases["category"])
	if category == "" {
		category = "intrusion"
	}

	a := &models.AlertRecord{
		Title:       sig,
		Description: category,
		Severity:    SeverityLabel(sevRaw),
		AlertType:   category,
		Status:      models.StatusNew,
		Signature:   sig,
		Timestamp:   ts,
	}

	if v, ok := stringField(raw, alertAliases["source_ip"]); ok {
		a.SourceIP = v
	}
	if v, ok := stringField(raw, alertAliases["destination_ip"]); ok {
		a.DestinationIP = v
	}
	a.SourcePort = intOrZero(raw, alertAliases["source_port"])
	a.DestinationPort = intOrZero(raw, alertAliases["destination_port"])
	if v, ok := stringField(raw, alertAliases["protocol"]); ok && v != "" {
		a.Protocol = models.Protocol(strings.ToUpper(v))
	}
	if v, ok := intField(raw, alertAliases["signature_id"]); ok {
		a.SignatureID = int64(v)
		a.RuleID = strconv.FormatInt(int64(v), 10)
	}
	if v, ok := stringField(raw, alertAliases["country_code"]); ok {
		a.CountryCode = v
	}

	return a, nil
}

// FlowFromJSON decodes payload and normalizes it as a flow.
func FlowFromJSON(payload []byte) (*models.FlowRecord, error) {
	raw, err := decode(payload)
	if err != nil {
		return nil, err
	}
	return Flow(raw)
}

// AlertFromJSON decodes payload and normalizes it as an alert.
func AlertFromJSON(payload []byte) (*models.AlertRecord, error) {
	raw, err := decode(payload)
	if err != nil {
		return nil, err
	}
	return Alert(raw)
}

func decode(payload []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return raw, nil
}

// lookup resolves the first candidate key present in raw. Dotted
// candidates are tried as a literal key first, then as a nested path.
func lookup(raw map[string]any, candidates []string) (any, bool) {
	for _, key := range candidates {
		if v, ok := raw[key]; ok {
			return v, true
		}
		if !strings.Contains(key, ".") {
			continue
		}
		if v, ok := nested(raw, strings.Split(key, ".")); ok {
			return v, true
		}
	}
	return nil, false
}

func nested(raw map[string]any, path []string) (any, bool) {
	cur := any(raw)
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func stringField(raw map[string]any, candidates []string) (string, bool) {
	v, ok := lookup(raw, candidates)
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}

func floatField(raw map[string]any, candidates []string) (float64, bool) {
	v, ok := lookup(raw, candidates)
	if !ok {
		return 0, false
	}
	return coerceFloat(v)
}

func intField(raw map[string]any, candidates []string) (int, bool) {
	f, ok := floatField(raw, candidates)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// intOrZero is the lenient variant used for ports: absent or garbage
// values become zero.
func intOrZero(raw map[string]any, candidates []string) int {
	v, _ := intField(raw, candidates)
	return v
}

// uintOrZero is the lenient variant used for byte/packet counters:
// non-numeric or negative input coerces to zero rather than failing the
// record.
func uintOrZero(raw map[string]any, candidates []string) uint64 {
	f, ok := floatField(raw, candidates)
	if !ok || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return uint64(f)
}

func timeField(raw map[string]any, candidates []string) (time.Time, bool) {
	v, ok := lookup(raw, candidates)
	if !ok || v == nil {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC(), true
			}
		}
		// Zeek writes epoch seconds as strings in some log variants.
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return epochToTime(f), true
		}
		return time.Time{}, false
	case float64:
		return epochToTime(t), true
	default:
		return time.Time{}, false
	}
}

func epochToTime(sec float64) time.Time {
	s, frac := math.Modf(sec)
	return time.Unix(int64(s), int64(frac*1e9)).UTC()
}

func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
