// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package models

import "time"

// TimelineBucket is one fixed-interval slot of the traffic timeline.
// The timeline is zero-filled: every bucket in the queried window is
// present even when no records fall into it.
type TimelineBucket struct {
	BucketStart time.Time `json:"time"`
	Bytes       uint64    `json:"bytes"`
	Count       uint64    `json:"count"`
}

// TalkerStat is one entry of the top-source-IPs ranking.
type TalkerStat struct {
	IP         string `json:"ip"`
	TotalBytes uint64 `json:"total_bytes"`
	Count      uint64 `json:"count"`
}

// ProtocolStat is one entry of the protocol distribution.
type ProtocolStat struct {
	Protocol   string `json:"protocol"`
	Count      uint64 `json:"count"`
	TotalBytes uint64 `json:"total_bytes"`
}

// SeverityCount is the alert count for one severity level.
type SeverityCount struct {
	Severity Severity `json:"severity"`
	Count    uint64   `json:"count"`
}

// AlertSummary is the reduced alert shape shown in the dashboard's
// recent-alerts list.
type AlertSummary struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	SourceIP  string    `json:"source_ip"`
}

// SystemHealth reports coarse process health for the dashboard header.
type SystemHealth struct {
	Status          string `json:"status"`
	AnalyticalStore string `json:"analytical_store"`
	RelationalStore string `json:"relational_store"`
	Bus             string `json:"bus"`
}

// DashboardMetrics is the headline metric block of the snapshot.
type DashboardMetrics struct {
	TotalTraffic      uint64       `json:"total_traffic"`
	ActiveConnections uint64       `json:"active_connections"`
	AlertsCount       uint64       `json:"alerts_count"`
	SystemHealth      SystemHealth `json:"system_health"`
}

// DashboardStats is the full caller-facing dashboard snapshot. It is
// ephemeral: owned transiently by the query engine and the cache layer,
// discarded after its TTL.
type DashboardStats struct {
	Metrics          DashboardMetrics `json:"metrics"`
	TrafficTimeline  []TimelineBucket `json:"traffic_timeline"`
	TopSourceIPs     []TalkerStat     `json:"top_source_ips"`
	AlertsBySeverity []SeverityCount  `json:"alerts_by_severity"`
	RecentAlerts     []AlertSummary   `json:"recent_alerts"`
}
