// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campuswatch/campuswatch/internal/auth"
	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/models"
	"github.com/campuswatch/campuswatch/internal/relational"
	ws "github.com/campuswatch/campuswatch/internal/websocket"
)

// AlertsList returns alerts filtered by severity, status, and source IP.
func (h *Handler) AlertsList(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	filter := relational.AlertFilter{
		Severity: models.Severity(r.URL.Query().Get("severity")),
		Status:   models.AlertStatus(r.URL.Query().Get("status")),
		SourceIP: r.URL.Query().Get("source_ip"),
		Limit:    getIntParam(r, "limit", 50),
	}
	if filter.Severity != "" && filter.Severity.Rank() > models.SeverityLow.Rank() {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "Unknown severity", nil)
		return
	}
	if filter.Status != "" && !validStatus(filter.Status) {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "Unknown alert status", nil)
		return
	}
	if filter.Limit < 1 || filter.Limit > 500 {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be between 1 and 500", nil)
		return
	}

	alerts, err := h.store.ListAlerts(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_ERROR", "Failed to list alerts", err)
		return
	}
	respondData(w, alerts, start)
}

// AlertAcknowledge moves an alert from new to acknowledged.
func (h *Handler) AlertAcknowledge(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int64, user string) (*models.AlertRecord, error) {
		return h.store.Acknowledge(r.Context(), id, user)
	})
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

// AlertResolve moves an acknowledged alert to resolved, with optional
// analyst notes in the request body.
func (h *Handler) AlertResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}
	h.transition(w, r, func(id int64, user string) (*models.AlertRecord, error) {
		return h.store.Resolve(r.Context(), id, user, req.Notes)
	})
}

// AlertFalsePositive marks an alert as a false positive.
func (h *Handler) AlertFalsePositive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int64, user string) (*models.AlertRecord, error) {
		return h.store.MarkFalsePositive(r.Context(), id, user)
	})
}

// transition runs a single alert status change: the workflow endpoints
// share identical parameter handling, cache invalidation, and fan-out.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(id int64, user string) (*models.AlertRecord, error)) {
	start := time.Now()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "Invalid alert id", nil)
		return
	}

	subject := auth.GetSubject(r.Context())
	if subject == nil {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "No authentication context", nil)
		return
	}

	alert, err := fn(id, subject.Username)
	if err != nil {
		respondAlertError(w, err)
		return
	}

	// The dashboard snapshot counts alerts by status, so a transition
	// must drop it before its TTL runs out.
	h.engine.InvalidateSnapshot()
	if h.hub != nil {
		h.hub.BroadcastGroup(ws.GroupAlerts, alert)
	}

	logging.Info().
		Int64("alert_id", id).
		Str("status", string(alert.Status)).
		Str("user", subject.Username).
		Msg("Alert status changed")
	respondData(w, alert, start)
}

func validStatus(s models.AlertStatus) bool {
	switch s {
	case models.StatusNew, models.StatusAcknowledged, models.StatusResolved, models.StatusFalsePositive:
		return true
	}
	return false
}
