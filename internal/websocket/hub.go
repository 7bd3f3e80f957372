// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

// Package websocket fans live updates out to dashboard clients. Clients
// subscribe to one named group; broadcasts address a group and reach every
// client in it, in deterministic client order.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/metrics"
)

// Subscription groups.
const (
	GroupDashboard = "dashboard_updates"
	GroupAlerts    = "alert_updates"
	GroupNetwork   = "network_updates"
)

// groupMessageTypes maps a group to its wire message type.
var groupMessageTypes = map[string]string{
	GroupDashboard: "stats_update",
	GroupAlerts:    "new_alert",
	GroupNetwork:   "network_update",
}

// ValidGroup reports whether name is a known subscription group.
func ValidGroup(name string) bool {
	_, ok := groupMessageTypes[name]
	return ok
}

// Message is the wire envelope sent to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// groupMessage routes an envelope to one group's clients.
type groupMessage struct {
	group string
	msg   Message
}

// Hub maintains the set of active clients and routes group broadcasts.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan groupMessage
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan groupMessage, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// RunWithContext runs the hub until the context is canceled, then closes
// every client and returns ctx.Err(). Designed for suture supervision.
//
// Selection is priority ordered (shutdown, then lifecycle, then
// broadcasts) so client state is always settled before a message fans out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case gm := <-h.broadcast:
			h.broadcastToGroup(gm)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.WithLabelValues(client.group).Inc()
	logging.Info().
		Str("group", client.group).
		Int("total_clients", total).
		Msg("WebSocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	removed := false
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		removed = true
	}
	total := len(h.clients)
	h.mu.Unlock()

	if removed {
		metrics.WSConnections.WithLabelValues(client.group).Dec()
		logging.Info().
			Str("group", client.group).
			Int("total_clients", total).
			Msg("WebSocket client disconnected")
	}
}

// BroadcastGroup queues a payload for every client of the named group.
// Non-blocking: when the hub is saturated the message is dropped with a
// warning rather than stalling the publisher.
func (h *Hub) BroadcastGroup(group string, payload any) {
	msgType, ok := groupMessageTypes[group]
	if !ok {
		logging.Warn().Str("group", group).Msg("Broadcast to unknown group dropped")
		return
	}

	select {
	case h.broadcast <- groupMessage{group: group, msg: Message{Type: msgType, Data: payload}}:
	default:
		metrics.WSErrors.WithLabelValues("broadcast_full").Inc()
		logging.Warn().Str("group", group).Msg("Broadcast channel full, dropping message")
	}
}

// broadcastToGroup sends one envelope to the group's clients in client-ID
// order. Clients with a full send buffer are dropped; a slow reader never
// stalls the rest of the group.
func (h *Hub) broadcastToGroup(gm groupMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.group == gm.group {
			clients = append(clients, client)
		}
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- gm.msg:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnections.WithLabelValues(client.group).Dec()
		metrics.WSErrors.WithLabelValues("slow_client").Inc()
	}

	metrics.WSBroadcasts.WithLabelValues(gm.group).Inc()
}

// shutdown closes all clients in ID order and logs the reason.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnections.WithLabelValues(client.group).Dec()
	}
	h.mu.Unlock()

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", len(clients)).
		Msg("WebSocket hub stopped")
}

// ClientCount returns the number of connected clients across all groups.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GroupClientCount returns the number of clients in one group.
func (h *Hub) GroupClientCount(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for client := range h.clients {
		if client.group == group {
			count++
		}
	}
	return count
}
