// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

// Package config loads layered configuration: built-in defaults, an
// optional YAML file, then CW_-prefixed environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the dashboard server.
type Config struct {
	Server     ServerConfig     `koanf:"server" validate:"required"`
	Logging    LoggingConfig    `koanf:"logging"`
	NATS       NATSConfig       `koanf:"nats"`
	Analytical AnalyticalConfig `koanf:"analytical"`
	Relational RelationalConfig `koanf:"relational"`
	Analytics  AnalyticsConfig  `koanf:"analytics"`
	Cache      CacheConfig      `koanf:"cache"`
	Spool      SpoolConfig      `koanf:"spool"`
	Auth       AuthConfig       `koanf:"auth"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=1s"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig controls the zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// NATSConfig holds the event bus settings. When Embedded is true the
// server runs its own JetStream-enabled NATS instance.
type NATSConfig struct {
	URL                 string        `koanf:"url" validate:"required"`
	Embedded            bool          `koanf:"embedded"`
	StoreDir            string        `koanf:"store_dir"`
	StreamRetentionDays int           `koanf:"stream_retention_days" validate:"min=1"`
	SubscribersCount    int           `koanf:"subscribers_count" validate:"min=1,max=64"`
	AckWait             time.Duration `koanf:"ack_wait" validate:"min=1s"`
}

// AnalyticalConfig holds settings for the columnar flow store.
type AnalyticalConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"min=0"`
}

// RelationalConfig holds settings for the transactional alert store.
type RelationalConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// AnalyticsConfig tunes the aggregation query engine.
type AnalyticsConfig struct {
	Window         time.Duration `koanf:"window" validate:"min=1m"`
	BucketSize     time.Duration `koanf:"bucket_size" validate:"min=1m"`
	TopN           int           `koanf:"top_n" validate:"min=1,max=1000"`
	RecentAlerts   int           `koanf:"recent_alerts" validate:"min=1,max=1000"`
	BreakerTimeout time.Duration `koanf:"breaker_timeout" validate:"min=1s"`
}

// CacheConfig tunes the in-memory snapshot cache.
type CacheConfig struct {
	TTL time.Duration `koanf:"ttl" validate:"min=1s"`
}

// SpoolConfig holds settings for the on-disk overflow spool used when
// both sinks are unavailable.
type SpoolConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path" validate:"required_if=Enabled true"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// UserConfig is a single dashboard account from the config file. The
// password is a bcrypt hash, never plaintext.
type UserConfig struct {
	Username     string `koanf:"username" validate:"required"`
	PasswordHash string `koanf:"password_hash" validate:"required"`
	Role         string `koanf:"role" validate:"oneof=admin analyst viewer"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	JWTSecret      string        `koanf:"jwt_secret" validate:"required,min=16"`
	SessionTimeout time.Duration `koanf:"session_timeout" validate:"min=1m"`
	// AdminUsername and AdminPassword bootstrap a single admin account
	// from the environment for first-run setups without a config file.
	AdminUsername string       `koanf:"admin_username"`
	AdminPassword string       `koanf:"admin_password" validate:"omitempty,min=8"`
	Users         []UserConfig `koanf:"users" validate:"dive"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8710,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		NATS: NATSConfig{
			URL:                 "nats://127.0.0.1:4222",
			Embedded:            true,
			StoreDir:            "/data/nats/jetstream",
			StreamRetentionDays: 7,
			SubscribersCount:    4,
			AckWait:             30 * time.Second,
		},
		Analytical: AnalyticalConfig{
			Path:      "/data/campuswatch.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		Relational: RelationalConfig{
			Path: "/data/campuswatch.sqlite",
		},
		Analytics: AnalyticsConfig{
			Window:         24 * time.Hour,
			BucketSize:     time.Hour,
			TopN:           5,
			RecentAlerts:   10,
			BreakerTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
		Spool: SpoolConfig{
			Enabled:    true,
			Path:       "/data/spool",
			SyncWrites: false,
		},
		Auth: AuthConfig{
			JWTSecret:      "",
			SessionTimeout: 12 * time.Hour,
		},
	}
}

// Validate checks the configuration against its struct tags plus the
// cross-field rules tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Analytics.BucketSize > c.Analytics.Window {
		return fmt.Errorf("analytics bucket_size (%s) must not exceed window (%s)",
			c.Analytics.BucketSize, c.Analytics.Window)
	}
	if c.Auth.AdminUsername != "" && c.Auth.AdminPassword == "" {
		return fmt.Errorf("auth admin_password is required when admin_username is set")
	}
	if c.NATS.Embedded && c.NATS.StoreDir == "" {
		return fmt.Errorf("nats store_dir is required when running the embedded server")
	}
	return nil
}
