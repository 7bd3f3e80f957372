// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campuswatch/campuswatch/internal/auth"
	"github.com/campuswatch/campuswatch/internal/authz"
	ws "github.com/campuswatch/campuswatch/internal/websocket"
)

// RouterConfig holds the HTTP-surface settings of the router.
type RouterConfig struct {
	CORSOrigins     []string
	RateLimitReqs   int
	RateLimitWindow time.Duration
}

// Router assembles the chi route tree with its middleware stack.
type Router struct {
	handler *Handler
	authMW  *auth.Middleware
	authzMW *authz.Middleware
	config  RouterConfig
}

// NewRouter creates the API router.
func NewRouter(handler *Handler, authMW *auth.Middleware, authzMW *authz.Middleware, config RouterConfig) *Router {
	if config.RateLimitReqs <= 0 {
		config.RateLimitReqs = 100
	}
	if config.RateLimitWindow <= 0 {
		config.RateLimitWindow = time.Minute
	}
	return &Router{
		handler: handler,
		authMW:  authMW,
		authzMW: authzMW,
		config:  config,
	}
}

// Setup builds the full route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(prometheusMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health and metrics stay unauthenticated for probes and scrapers,
	// with a permissive limit so monitoring never trips it.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/", router.handler.Health)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Login gets the strictest limit to slow brute force attempts.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(httprate.LimitByIP(5, 5*time.Minute))
		r.Post("/login", router.handler.Login)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(router.config.RateLimitReqs, router.config.RateLimitWindow))
		r.Use(router.authMW.RequireAuth)

		r.With(router.authzMW.Require("dashboard", "read")).
			Get("/dashboard/stats", router.handler.DashboardStats)

		r.Route("/stats", func(r chi.Router) {
			r.Use(router.authzMW.Require("stats", "read"))
			r.Get("/traffic", router.handler.StatsTraffic)
			r.Get("/protocols", router.handler.StatsProtocols)
			r.Get("/talkers", router.handler.StatsTalkers)
			r.Get("/alerts", router.handler.StatsAlerts)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.With(router.authzMW.Require("alerts", "read")).
				Get("/", router.handler.AlertsList)

			r.Group(func(r chi.Router) {
				r.Use(router.authzMW.Require("alerts", "write"))
				r.Post("/{id}/acknowledge", router.handler.AlertAcknowledge)
				r.Post("/{id}/resolve", router.handler.AlertResolve)
				r.Post("/{id}/false-positive", router.handler.AlertFalsePositive)
			})
		})

		r.With(router.authzMW.Require("flows", "read")).
			Get("/network/flows", router.handler.FlowsRecent)

		r.With(router.authzMW.Require("stream", "read")).
			Get("/ws/{group}", func(w http.ResponseWriter, req *http.Request) {
				group := chi.URLParam(req, "group")
				if !ws.ValidGroup(group) {
					respondError(w, http.StatusNotFound, "UNKNOWN_GROUP", "Unknown stream group", nil)
					return
				}
				router.handler.WebSocket(group)(w, req)
			})
	})

	return r
}
