// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithSecret(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CW_AUTH_JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8710 {
		t.Errorf("server port = %d, want 8710", cfg.Server.Port)
	}
	if cfg.Analytics.Window != 24*time.Hour {
		t.Errorf("analytics window = %s, want 24h", cfg.Analytics.Window)
	}
	if cfg.Analytics.BucketSize != time.Hour {
		t.Errorf("bucket size = %s, want 1h", cfg.Analytics.BucketSize)
	}
	if cfg.Analytics.TopN != 5 {
		t.Errorf("top n = %d, want 5", cfg.Analytics.TopN)
	}
	if !cfg.NATS.Embedded {
		t.Error("embedded NATS should default to true")
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("cache ttl = %s, want 5m", cfg.Cache.TTL)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected validation failure without jwt secret")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9000
  host: 127.0.0.1
analytics:
  window: 6h
  bucket_size: 15m
  top_n: 25
auth:
  jwt_secret: `+testSecret+`
  users:
    - username: alice
      password_hash: $2a$12$abcdefghijklmnopqrstuv
      role: analyst
`)
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("server port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Analytics.Window != 6*time.Hour {
		t.Errorf("window = %s, want 6h", cfg.Analytics.Window)
	}
	if cfg.Analytics.BucketSize != 15*time.Minute {
		t.Errorf("bucket size = %s, want 15m", cfg.Analytics.BucketSize)
	}
	if cfg.Analytics.TopN != 25 {
		t.Errorf("top n = %d, want 25", cfg.Analytics.TopN)
	}
	if len(cfg.Auth.Users) != 1 || cfg.Auth.Users[0].Role != "analyst" {
		t.Errorf("users = %+v, want one analyst", cfg.Auth.Users)
	}
	// file did not set logging, defaults survive
	if cfg.Logging.Level != "info" {
		t.Errorf("logging level = %q, want info", cfg.Logging.Level)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9000
auth:
  jwt_secret: `+testSecret+`
`)
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("CW_SERVER_PORT", "9100")
	t.Setenv("CW_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("server port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q, want debug", cfg.Logging.Level)
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CW_SERVER_PORT", "server.port"},
		{"CW_AUTH_JWT_SECRET", "auth.jwt_secret"},
		{"CW_NATS_STORE_DIR", "nats.store_dir"},
		{"CW_ANALYTICS_BUCKET_SIZE", "analytics.bucket_size"},
		{"CW_CACHE_TTL", "cache.ttl"},
	}
	for _, tt := range tests {
		if got := envTransform(tt.in); got != tt.want {
			t.Errorf("envTransform(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bucket larger than window", func(c *Config) {
			c.Analytics.Window = time.Hour
			c.Analytics.BucketSize = 2 * time.Hour
		}},
		{"invalid port", func(c *Config) { c.Server.Port = 0 }},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }},
		{"admin user without password", func(c *Config) { c.Auth.AdminUsername = "root" }},
		{"embedded nats without store dir", func(c *Config) { c.NATS.StoreDir = "" }},
		{"invalid user role", func(c *Config) {
			c.Auth.Users = []UserConfig{{Username: "x", PasswordHash: "$2a$12$h", Role: "superuser"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Auth.JWTSecret = testSecret
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
