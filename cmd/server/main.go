// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

// Package main is the entry point for the Campuswatch server.
//
// The server initializes components in the following order:
//
//  1. Configuration: layered Koanf sources (defaults, YAML file, CW_ env vars)
//  2. Event bus: embedded NATS JetStream (or an external broker) plus the
//     SECURITY_EVENTS stream
//  3. Stores: the columnar analytical store and the relational alert store
//  4. Pipeline: dual-sink writer, durable spool, consumer group, alert bridge
//  5. Query engine: analytical-first aggregations with relational fallback
//  6. HTTP API: authentication, RBAC, statistics, alert workflow, websockets
//  7. Supervision: a Suture tree restarts crashed components in isolation
//
// Graceful shutdown runs on SIGINT and SIGTERM: the HTTP server drains
// in-flight requests, the consumer stops pulling from the stream, and both
// stores are closed.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/campuswatch/campuswatch/internal/analytics"
	"github.com/campuswatch/campuswatch/internal/api"
	"github.com/campuswatch/campuswatch/internal/auth"
	"github.com/campuswatch/campuswatch/internal/authz"
	"github.com/campuswatch/campuswatch/internal/cache"
	"github.com/campuswatch/campuswatch/internal/config"
	"github.com/campuswatch/campuswatch/internal/database"
	"github.com/campuswatch/campuswatch/internal/ingest"
	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/relational"
	"github.com/campuswatch/campuswatch/internal/supervisor"
	ws "github.com/campuswatch/campuswatch/internal/websocket"
)

//nolint:gocyclo // sequential setup steps
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("analytical_path", cfg.Analytical.Path).
		Str("relational_path", cfg.Relational.Path).
		Bool("embedded_nats", cfg.NATS.Embedded).
		Msg("Starting Campuswatch")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event bus. The embedded server keeps single-box deployments free
	// of an external broker dependency.
	busURL := cfg.NATS.URL
	if cfg.NATS.Embedded {
		serverCfg := ingest.DefaultServerConfig()
		serverCfg.StoreDir = cfg.NATS.StoreDir
		embedded, err := ingest.NewEmbeddedServer(serverCfg)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := embedded.Shutdown(shutdownCtx); err != nil {
				logging.Error().Err(err).Msg("Embedded NATS shutdown failed")
			}
		}()
		busURL = embedded.ClientURL()
		logging.Info().Str("url", busURL).Msg("Embedded NATS server running")
	}

	streamCfg := ingest.DefaultStreamConfig()
	streamCfg.MaxAge = time.Duration(cfg.NATS.StreamRetentionDays) * 24 * time.Hour
	if err := ingest.EnsureStream(ctx, busURL, streamCfg); err != nil {
		logging.Fatal().Err(err).Msg("Failed to provision event stream")
	}

	// Stores.
	analyticalDB, err := database.New(database.Options{
		Path:      cfg.Analytical.Path,
		Threads:   cfg.Analytical.Threads,
		MaxMemory: cfg.Analytical.MaxMemory,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open analytical store")
	}
	defer func() {
		if err := analyticalDB.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing analytical store")
		}
	}()

	relationalDB, err := relational.Open(cfg.Relational.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open relational store")
	}
	defer func() {
		if err := relationalDB.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing relational store")
		}
	}()

	// Pipeline.
	var spool *ingest.Spool
	if cfg.Spool.Enabled {
		spool, err = ingest.OpenSpool(ingest.SpoolConfig{
			Path:       cfg.Spool.Path,
			SyncWrites: cfg.Spool.SyncWrites,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open failure spool")
		}
		defer func() {
			if err := spool.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing spool")
			}
		}()
	} else {
		logging.Warn().Msg("Failure spool disabled: records rejected by both stores are dropped")
	}

	writer := ingest.NewWriter(analyticalDB, relationalDB, spool)
	busLogger := ingest.NewBusLogger()

	subCfg := ingest.DefaultSubscriberConfig(busURL)
	subCfg.SubscribersCount = cfg.NATS.SubscribersCount
	subCfg.AckWaitTimeout = cfg.NATS.AckWait
	subscriber, err := ingest.NewSubscriber(subCfg, busLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create pipeline subscriber")
	}
	defer subscriber.Close()

	bridgeSub, err := ingest.NewSubscriber(ingest.BridgeSubscriberConfig(busURL), busLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create bridge subscriber")
	}
	defer bridgeSub.Close()

	hub := ws.NewHub()
	consumer := ingest.NewConsumer(subscriber, writer)
	bridge := ingest.NewBridge(bridgeSub, hub)

	// Query engine.
	snapshotCache := cache.New(cfg.Cache.TTL)
	defer snapshotCache.Close()

	engine := analytics.NewEngine(analyticalDB, relationalDB, snapshotCache, analytics.Options{
		Window:         cfg.Analytics.Window,
		BucketSize:     cfg.Analytics.BucketSize,
		TopN:           cfg.Analytics.TopN,
		RecentAlerts:   cfg.Analytics.RecentAlerts,
		BreakerTimeout: cfg.Analytics.BreakerTimeout,
		BusStatus: func() string {
			if consumer.Running() {
				return "up"
			}
			return "down"
		},
	})

	// Authentication and authorization.
	users, err := buildUserStore(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build user store")
	}
	jwtManager, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTimeout)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}
	enforcer, err := authz.NewEnforcer(authz.DefaultEnforcerConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization enforcer")
	}

	// HTTP API.
	handler := api.NewHandler(engine, relationalDB, users, jwtManager, hub)
	router := api.NewRouter(handler, auth.NewMiddleware(jwtManager), authz.NewMiddleware(enforcer), api.RouterConfig{
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimitReqs:   cfg.Server.RateLimitReqs,
		RateLimitWindow: cfg.Server.RateLimitWindow,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	// Supervision.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddMessagingService(supervisor.NewRunnerService("websocket-hub", hub.RunWithContext))
	tree.AddPipelineService(supervisor.NewRunnerService("event-consumer", consumer.Run))
	tree.AddPipelineService(supervisor.NewRunnerService("alert-bridge", bridge.Start))
	if spool != nil {
		drainer := ingest.NewDrainer(spool, writer, ingest.DefaultDrainInterval)
		tree.AddPipelineService(supervisor.NewRunnerService("spool-drainer", drainer.Run))
	}
	tree.AddAPIService(supervisor.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", httpServer.Addr).Msg("Campuswatch ready")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("Supervisor tree terminated")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	logging.Info().Msg("Campuswatch stopped")
}

// buildUserStore loads accounts from configuration: hashed entries from
// the users list, plus the env-bootstrapped admin account.
func buildUserStore(cfg *config.Config) (*auth.UserStore, error) {
	users, err := auth.NewUserStore()
	if err != nil {
		return nil, err
	}

	for _, u := range cfg.Auth.Users {
		if err := users.AddUserHash(u.Username, u.PasswordHash, u.Role); err != nil {
			return nil, fmt.Errorf("user %q: %w", u.Username, err)
		}
	}
	if cfg.Auth.AdminUsername != "" {
		if err := users.AddUser(cfg.Auth.AdminUsername, cfg.Auth.AdminPassword, "admin"); err != nil {
			return nil, fmt.Errorf("admin user: %w", err)
		}
	}

	if users.Count() == 0 {
		logging.Warn().Msg("No accounts configured: the API is reachable but nobody can log in")
	} else {
		logging.Info().Int("accounts", users.Count()).Msg("User store loaded")
	}
	return users, nil
}
