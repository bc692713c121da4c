// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

// Package config loads and validates gateway configuration.
//
// Configuration is layered with koanf v2: built-in defaults, then an optional
// YAML config file, then CHIRP_-prefixed environment variables (highest
// priority). Example: CHIRP_SERVER_PORT=8080 overrides server.port.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the gateway.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Auth        AuthConfig        `koanf:"auth"`
	NATS        NATSConfig        `koanf:"nats"`
	Heartbeat   HeartbeatConfig   `koanf:"heartbeat"`
	Push        PushConfig        `koanf:"push"`
	ChatService ChatServiceConfig `koanf:"chat_service"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	CORSOrigins []string      `koanf:"cors_origins"`

	// RateLimitReqs is the allowed requests per RateLimitWindow per client IP.
	// 0 disables rate limiting.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// AuthConfig holds WebSocket handshake authentication settings.
// Token issuance is owned by the user service; the gateway only verifies.
type AuthConfig struct {
	// JWTSecret is the shared HS256 secret. Minimum 32 characters.
	JWTSecret string `koanf:"jwt_secret"`
}

// NATSConfig holds the domain event bus settings.
type NATSConfig struct {
	URL string `koanf:"url"`

	// EmbeddedServer runs an in-process NATS JetStream server. Useful for
	// single-binary deployments and local development.
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`

	StreamName    string        `koanf:"stream_name"`
	DurableName   string        `koanf:"durable_name"`
	QueueGroup    string        `koanf:"queue_group"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
	AckWait       time.Duration `koanf:"ack_wait"`
	CloseTimeout  time.Duration `koanf:"close_timeout"`

	// Router middleware settings (Watermill message router).
	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
}

// HeartbeatConfig holds liveness sweep settings for WebSocket connections.
type HeartbeatConfig struct {
	// PingInterval is how often the monitor sweeps all connections.
	PingInterval time.Duration `koanf:"ping_interval"`

	// PongTimeout is how long a connection may go without a pong before it
	// is evicted on the next sweep.
	PongTimeout time.Duration `koanf:"pong_timeout"`
}

// PushConfig holds push delivery retry settings.
type PushConfig struct {
	Enabled bool `koanf:"enabled"`

	// SweepInterval is how often due retry entries are processed.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// MaxRetryAge is the maximum age of a retry entry before it is dropped.
	MaxRetryAge time.Duration `koanf:"max_retry_age"`

	// ProviderURL is the push relay endpoint notifications are dispatched to.
	ProviderURL string `koanf:"provider_url"`

	// ProviderKey authenticates the gateway against the push relay.
	ProviderKey string `koanf:"provider_key"`

	// ProviderTimeout bounds a single dispatch request.
	ProviderTimeout time.Duration `koanf:"provider_timeout"`
}

// ChatServiceConfig holds the upstream chat service API settings. The
// gateway resolves chat membership, persists sent messages, and manages
// device tokens through this service.
type ChatServiceConfig struct {
	BaseURL string `koanf:"base_url"`

	// ServiceToken authenticates gateway-to-service calls.
	ServiceToken string `koanf:"service_token"`

	Timeout time.Duration `koanf:"timeout"`
}

// Default returns a Config with all default values applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Auth: AuthConfig{
			JWTSecret: "",
		},
		NATS: NATSConfig{
			URL:                        "nats://127.0.0.1:4222",
			EmbeddedServer:             false,
			StoreDir:                   "/data/nats/jetstream",
			StreamName:                 "CHIRP_EVENTS",
			DurableName:                "chirp-gateway",
			QueueGroup:                 "gateways",
			MaxReconnects:              -1,
			ReconnectWait:              2 * time.Second,
			AckWait:                    30 * time.Second,
			CloseTimeout:               30 * time.Second,
			RouterRetryCount:           3,
			RouterRetryInitialInterval: 100 * time.Millisecond,
			RouterCloseTimeout:         30 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			PingInterval: 30 * time.Second,
			PongTimeout:  60 * time.Second,
		},
		Push: PushConfig{
			Enabled:         true,
			SweepInterval:   15 * time.Second,
			MaxRetryAge:     30 * time.Minute,
			ProviderURL:     "http://127.0.0.1:8083/v1/notifications:batch",
			ProviderTimeout: 10 * time.Second,
		},
		ChatService: ChatServiceConfig{
			BaseURL: "http://127.0.0.1:8081",
			Timeout: 10 * time.Second,
		},
	}
}

// Validate checks the configuration for invalid or unsafe values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters, got %d", len(c.Auth.JWTSecret))
	}
	if c.NATS.URL == "" && !c.NATS.EmbeddedServer {
		return fmt.Errorf("nats.url is required when nats.embedded_server is false")
	}
	if c.Heartbeat.PingInterval <= 0 {
		return fmt.Errorf("heartbeat.ping_interval must be positive, got %s", c.Heartbeat.PingInterval)
	}
	if c.Heartbeat.PongTimeout < c.Heartbeat.PingInterval {
		return fmt.Errorf("heartbeat.pong_timeout (%s) must not be shorter than heartbeat.ping_interval (%s)",
			c.Heartbeat.PongTimeout, c.Heartbeat.PingInterval)
	}
	if c.Push.SweepInterval <= 0 {
		return fmt.Errorf("push.sweep_interval must be positive, got %s", c.Push.SweepInterval)
	}
	if c.Push.MaxRetryAge <= 0 {
		return fmt.Errorf("push.max_retry_age must be positive, got %s", c.Push.MaxRetryAge)
	}
	if c.Push.Enabled && c.Push.ProviderURL == "" {
		return fmt.Errorf("push.provider_url is required when push is enabled")
	}
	if c.ChatService.BaseURL == "" {
		return fmt.Errorf("chat_service.base_url is required")
	}
	return nil
}
