// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package models

import "time"

// Protocol identifies the transport or application protocol of a flow.
type Protocol string

// Known protocols. Anything else is stored verbatim; the dashboard buckets
// unknown values under their raw name.
const (
	ProtocolTCP   Protocol = "TCP"
	ProtocolUDP   Protocol = "UDP"
	ProtocolICMP  Protocol = "ICMP"
	ProtocolHTTP  Protocol = "HTTP"
	ProtocolHTTPS Protocol = "HTTPS"
	ProtocolFTP   Protocol = "FTP"
	ProtocolSSH   Protocol = "SSH"
	ProtocolDNS   Protocol = "DNS"
	ProtocolDHCP  Protocol = "DHCP"
)

// ConnectionState is the observed TCP-style state of a flow.
type ConnectionState string

// Connection states as reported by Zeek-style sensors.
const (
	StateEstablished ConnectionState = "ESTABLISHED"
	StateSynSent     ConnectionState = "SYN_SENT"
	StateSynRecv     ConnectionState = "SYN_RECV"
	StateFinWait     ConnectionState = "FIN_WAIT"
	StateTimeWait    ConnectionState = "TIME_WAIT"
	StateClose       ConnectionState = "CLOSE"
	StateListen      ConnectionState = "LISTEN"
)

// FlowRecord is one observed network connection/transfer summary.
//
// Records are created by the normalizer from a bus message, written once to
// each sink, and immutable thereafter. TotalBytes is derived at read time
// and never stored redundantly.
type FlowRecord struct {
	Timestamp       time.Time       `json:"timestamp"`
	SourceIP        string          `json:"source_ip"`
	DestinationIP   string          `json:"destination_ip"`
	SourcePort      int             `json:"source_port"`
	DestinationPort int             `json:"destination_port"`
	Protocol        Protocol        `json:"protocol"`
	BytesSent       uint64          `json:"bytes_sent"`
	BytesReceived   uint64          `json:"bytes_received"`
	PacketsSent     uint64          `json:"packets_sent"`
	PacketsReceived uint64          `json:"packets_received"`
	ConnectionState ConnectionState `json:"connection_state"`
	DurationSeconds float64         `json:"duration_seconds"`
	Application     string          `json:"application,omitempty"`
	CountryCode     string          `json:"country_code,omitempty"`
}

// TotalBytes returns bytes sent plus bytes received.
func (f *FlowRecord) TotalBytes() uint64 {
	return f.BytesSent + f.BytesReceived
}

// TotalPackets returns packets sent plus packets received.
func (f *FlowRecord) TotalPackets() uint64 {
	return f.PacketsSent + f.PacketsReceived
}
