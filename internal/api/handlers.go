// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

// Package api provides the HTTP surface of the dashboard: login,
// aggregated statistics, alert workflow, and websocket upgrades.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/campuswatch/campuswatch/internal/analytics"
	"github.com/campuswatch/campuswatch/internal/auth"
	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/models"
	"github.com/campuswatch/campuswatch/internal/relational"
	ws "github.com/campuswatch/campuswatch/internal/websocket"
)

// Handler bundles the dependencies of the API endpoints.
type Handler struct {
	engine *analytics.Engine
	store  *relational.Store
	users  *auth.UserStore
	jwt    *auth.JWTManager
	hub    *ws.Hub
}

// NewHandler creates the API handler set.
func NewHandler(engine *analytics.Engine, store *relational.Store, users *auth.UserStore, jwt *auth.JWTManager, hub *ws.Hub) *Handler {
	return &Handler{
		engine: engine,
		store:  store,
		users:  users,
		jwt:    jwt,
		hub:    hub,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Login verifies credentials and issues a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	role, err := h.users.Authenticate(req.Username, req.Password)
	if err != nil {
		logging.Warn().Str("username", req.Username).Msg("Login failed")
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
		return
	}

	token, err := h.jwt.GenerateToken(req.Username, role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TOKEN_ERROR", "Failed to issue token", err)
		return
	}

	logging.Info().Str("username", req.Username).Str("role", role).Msg("Login succeeded")
	respondData(w, loginResponse{Token: token, Username: req.Username, Role: role}, time.Now())
}

// DashboardStats returns the dashboard snapshot, cached per caller.
func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	caller := ""
	if sub := auth.GetSubject(r.Context()); sub != nil {
		caller = sub.Username
	}
	stats, err := h.engine.Dashboard(r.Context(), caller)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_ERROR", "Failed to assemble dashboard", err)
		return
	}
	respondData(w, stats, start)
}

// StatsTraffic returns the traffic timeline for an optional window and
// bucket size ("window" and "bucket" duration query parameters).
func (h *Handler) StatsTraffic(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	winStart, winEnd, bucket := h.window(r)

	timeline, err := h.engine.Timeline(r.Context(), winStart, winEnd, bucket)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_ERROR", "Failed to query traffic timeline", err)
		return
	}
	respondData(w, timeline, start)
}

// StatsProtocols returns the protocol distribution for the window.
func (h *Handler) StatsProtocols(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	winStart, winEnd, _ := h.window(r)

	protocols, err := h.engine.ProtocolDistribution(r.Context(), winStart, winEnd)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_ERROR", "Failed to query protocol distribution", err)
		return
	}
	respondData(w, protocols, start)
}

// StatsTalkers returns the top source IPs by flow count.
func (h *Handler) StatsTalkers(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	winStart, winEnd, _ := h.window(r)
	limit := getIntParam(r, "limit", 5)
	if limit < 1 || limit > 100 {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be between 1 and 100", nil)
		return
	}

	talkers, err := h.engine.TopSourceIPs(r.Context(), winStart, winEnd, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_ERROR", "Failed to query top talkers", err)
		return
	}
	respondData(w, talkers, start)
}

type alertStats struct {
	BySeverity []models.SeverityCount `json:"by_severity"`
	Recent     []models.AlertSummary  `json:"recent"`
}

// StatsAlerts returns alert counts by severity plus the newest alerts.
func (h *Handler) StatsAlerts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	winStart, winEnd, _ := h.window(r)
	limit := getIntParam(r, "limit", 10)
	if limit < 1 || limit > 100 {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be between 1 and 100", nil)
		return
	}

	bySeverity, err := h.engine.AlertsBySeverity(r.Context(), winStart, winEnd)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_ERROR", "Failed to query alert counts", err)
		return
	}
	recent, err := h.engine.RecentAlerts(r.Context(), winStart, winEnd, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_ERROR", "Failed to query recent alerts", err)
		return
	}
	respondData(w, alertStats{BySeverity: bySeverity, Recent: recent}, start)
}

// FlowsRecent returns the newest raw flow records from the relational
// store, for the live network table.
func (h *Handler) FlowsRecent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit := getIntParam(r, "limit", 50)
	if limit < 1 || limit > 500 {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be between 1 and 500", nil)
		return
	}

	flows, err := h.store.RecentFlows(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_ERROR", "Failed to query recent flows", err)
		return
	}
	respondData(w, flows, start)
}

// Health reports the health of both stores and the event bus. A
// degraded system still answers 200 so load balancers keep routing;
// only a fully down system reports 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.engine.Health(r.Context())

	status := http.StatusOK
	if health.Status == "down" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "success",
		Data:     health,
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}

// WebSocket upgrades the connection and joins the requested group.
func (h *Handler) WebSocket(group string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(h.hub, group, w, r)
	}
}

// window resolves the query window from request parameters, falling
// back to the engine's configured defaults.
func (h *Handler) window(r *http.Request) (start, end time.Time, bucket time.Duration) {
	start, end = h.engine.Window()
	bucket = getDurationParam(r, "bucket", h.engine.BucketSize())

	if window := getDurationParam(r, "window", 0); window > 0 {
		end = time.Now().UTC().Truncate(bucket).Add(bucket)
		start = end.Add(-window)
	}
	return start, end, bucket
}

// statusNotFound maps store errors onto HTTP responses shared by the
// alert workflow handlers.
func respondAlertError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, relational.ErrAlertNotFound):
		respondError(w, http.StatusNotFound, "ALERT_NOT_FOUND", "Alert does not exist", nil)
	case errors.Is(err, relational.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "INVALID_TRANSITION", "Alert status transition not allowed", nil)
	default:
		respondError(w, http.StatusInternalServerError, "QUERY_ERROR", "Alert operation failed", err)
	}
}
