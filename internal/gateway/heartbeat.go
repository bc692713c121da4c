// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package gateway

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chirpchat/chirp-gateway/internal/config"
	"github.com/chirpchat/chirp-gateway/internal/metrics"
	"github.com/chirpchat/chirp-gateway/internal/registry"
)

// Eviction close reasons.
const (
	reasonHeartbeatTimeout = "heartbeat timeout"
	reasonPingFailed       = "ping failed"
)

// Heartbeat periodically probes every tracked connection and evicts the
// ones that stopped answering. It bounds the lifetime of half-open
// connections whose clients died without a clean close.
//
// Implements suture.Service.
type Heartbeat struct {
	registry *registry.Registry
	hub      *Hub
	cfg      config.HeartbeatConfig
	logger   zerolog.Logger
	now      func() time.Time
}

// NewHeartbeat creates the heartbeat monitor.
func NewHeartbeat(reg *registry.Registry, hub *Hub, cfg config.HeartbeatConfig, logger zerolog.Logger) *Heartbeat {
	return &Heartbeat{
		registry: reg,
		hub:      hub,
		cfg:      cfg,
		logger:   logger.With().Str("component", "heartbeat").Logger(),
		now:      time.Now,
	}
}

// Serve runs the sweep loop until the context is canceled.
func (h *Heartbeat) Serve(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	h.logger.Info().Dur("interval", h.cfg.PingInterval).Dur("timeout", h.cfg.PongTimeout).
		Msg("heartbeat monitor started")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("heartbeat monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Sweep walks a snapshot of all connections. Connections past the pong
// timeout are marked; the rest get a ping, and a failed ping marks the
// connection too. All marked connections are evicted after the walk, each
// through the registry's idempotent removal.
func (h *Heartbeat) Sweep() {
	now := h.now()

	type eviction struct {
		connID string
		reason string
	}
	var evictions []eviction

	for _, sess := range h.registry.Snapshot() {
		if now.Sub(sess.LastAlive) > h.cfg.PongTimeout {
			evictions = append(evictions, eviction{sess.ID, reasonHeartbeatTimeout})
			continue
		}
		client, ok := h.hub.client(sess.ID)
		if !ok {
			continue
		}
		if err := client.Ping(); err != nil {
			evictions = append(evictions, eviction{sess.ID, reasonPingFailed})
		}
	}

	for _, ev := range evictions {
		label := "timeout"
		if ev.reason == reasonPingFailed {
			label = "ping_failed"
		}
		metrics.HeartbeatEvictions.WithLabelValues(label).Inc()
		h.logger.Info().Str("conn_id", ev.connID).Str("reason", ev.reason).Msg("evicting connection")
		h.hub.Evict(ev.connID, websocket.CloseGoingAway, ev.reason)
	}
}

func (h *Heartbeat) String() string { return "heartbeat-monitor" }
