// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSecret satisfies the 32-character minimum.
const testSecret = "0123456789abcdef0123456789abcdef"

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Heartbeat.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.Heartbeat.PongTimeout)
	assert.Equal(t, 15*time.Second, cfg.Push.SweepInterval)
	assert.Equal(t, 30*time.Minute, cfg.Push.MaxRetryAge)
	assert.True(t, cfg.Push.Enabled)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Auth.JWTSecret = testSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "jwt_secret is required"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "at least 32 characters"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no nats url", func(c *Config) { c.NATS.URL = "" }, "nats.url is required"},
		{"zero ping interval", func(c *Config) { c.Heartbeat.PingInterval = 0 }, "ping_interval"},
		{"pong shorter than ping", func(c *Config) {
			c.Heartbeat.PongTimeout = 10 * time.Second
		}, "pong_timeout"},
		{"zero sweep interval", func(c *Config) { c.Push.SweepInterval = 0 }, "sweep_interval"},
		{"zero max retry age", func(c *Config) { c.Push.MaxRetryAge = 0 }, "max_retry_age"},
		{"push enabled without provider", func(c *Config) { c.Push.ProviderURL = "" }, "provider_url"},
		{"push disabled without provider", func(c *Config) {
			c.Push.Enabled = false
			c.Push.ProviderURL = ""
		}, ""},
		{"missing chat service url", func(c *Config) { c.ChatService.BaseURL = "" }, "chat_service.base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CHIRP_SERVER_PORT", "server.port"},
		{"CHIRP_SERVER_RATE_LIMIT_REQS", "server.rate_limit_reqs"},
		{"CHIRP_AUTH_JWT_SECRET", "auth.jwt_secret"},
		{"CHIRP_NATS_URL", "nats.url"},
		{"CHIRP_HEARTBEAT_PONG_TIMEOUT", "heartbeat.pong_timeout"},
		{"CHIRP_PUSH_MAX_RETRY_AGE", "push.max_retry_age"},
		{"CHIRP_LOGGING_LEVEL", "logging.level"},
		{"CHIRP_CHAT_SERVICE_BASE_URL", "chat_service.base_url"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, envTransform(tt.in), tt.in)
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
auth:
  jwt_secret: "` + testSecret + `"
heartbeat:
  ping_interval: 10s
  pong_timeout: 20s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv(ConfigPathEnvVar, path)
	// Env overrides the file.
	t.Setenv("CHIRP_SERVER_PORT", "9191")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Heartbeat.PingInterval)
	assert.Equal(t, 20*time.Second, cfg.Heartbeat.PongTimeout)
	// Untouched values keep defaults.
	assert.Equal(t, 15*time.Second, cfg.Push.SweepInterval)
}

func TestLoadCORSFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: \""+testSecret+"\"\n"), 0o600))
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("CHIRP_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: \"short\"\n"), 0o600))
	t.Setenv(ConfigPathEnvVar, path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}
