// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chirpchat/chirp-gateway/internal/events"
	"github.com/chirpchat/chirp-gateway/internal/metrics"
	"github.com/chirpchat/chirp-gateway/internal/registry"
)

// Hub maps connection identifiers to their transport clients and performs
// chat-targeted fan-out. Membership targeting lives in the registry; the
// hub only resolves connection IDs to sockets.
type Hub struct {
	registry *registry.Registry
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client

	handler FrameHandler
}

// NewHub creates an empty hub over the given registry.
func NewHub(reg *registry.Registry, logger zerolog.Logger) *Hub {
	return &Hub{
		registry: reg,
		logger:   logger.With().Str("component", "hub").Logger(),
		clients:  make(map[string]*Client),
	}
}

// SetFrameHandler wires the inbound router. Must be called before Admit.
func (h *Hub) SetFrameHandler(handler FrameHandler) {
	h.handler = handler
}

// Admit registers an authenticated connection and starts its pumps. The
// registry resolves and caches the user's memberships; if that fails the
// connection never becomes visible to fan-out.
func (h *Hub) Admit(ctx context.Context, conn Conn, userID string) (*Client, error) {
	connID := uuid.New().String()

	if err := h.registry.Admit(ctx, connID, userID); err != nil {
		return nil, fmt.Errorf("admit connection: %w", err)
	}

	client := newClient(connID, userID, conn, h, h.logger)

	h.mu.Lock()
	h.clients[connID] = client
	h.mu.Unlock()
	metrics.WSConnections.Inc()

	go client.writePump()
	go client.readPump(h.handler, h.registry.Touch)

	return client, nil
}

// remove detaches a client from the hub and the registry. Idempotent;
// invoked from the read pump on close and from heartbeat eviction.
func (h *Hub) remove(connID string) {
	h.mu.Lock()
	client, ok := h.clients[connID]
	if ok {
		delete(h.clients, connID)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	client.shutdown()
	h.registry.Remove(connID)
	metrics.WSConnections.Dec()
}

// Evict closes a connection with the given close code and removes it.
func (h *Hub) Evict(connID string, closeCode int, reason string) {
	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()

	if ok {
		client.CloseWithReason(closeCode, reason)
	}
	h.remove(connID)
}

// client looks up a live client by connection ID.
func (h *Hub) client(connID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	return c, ok
}

// SendToConnection delivers a frame to a single connection, best-effort.
func (h *Hub) SendToConnection(connID string, frame events.Frame) {
	h.sendEncoded([]string{connID}, frame)
}

// BroadcastToChat fans a frame out to every connection of the chat's
// currently connected members.
func (h *Hub) BroadcastToChat(chatID string, frame events.Frame) {
	h.sendEncoded(h.registry.ConnectionsForChat(chatID), frame)
}

// BroadcastToConnections fans a frame out to an explicit connection set.
func (h *Hub) BroadcastToConnections(connIDs []string, frame events.Frame) {
	h.sendEncoded(connIDs, frame)
}

// sendEncoded encodes the frame once and queues it per connection. A
// failed or missing recipient is logged and skipped; the rest of the set
// still receives the frame.
func (h *Hub) sendEncoded(connIDs []string, frame events.Frame) {
	if len(connIDs) == 0 {
		return
	}
	raw, err := frame.Encode()
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(frame.Type)).Msg("encode frame")
		return
	}

	delivered := 0
	for _, connID := range connIDs {
		client, ok := h.client(connID)
		if !ok {
			continue
		}
		if !client.Send(raw) {
			metrics.BroadcastSendErrors.Inc()
			h.logger.Warn().Str("conn_id", connID).Str("type", string(frame.Type)).
				Msg("send queue full, frame dropped")
			continue
		}
		delivered++
	}
	metrics.BroadcastsTotal.WithLabelValues(string(frame.Type)).Add(float64(delivered))
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection with a going-away status.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.CloseWithReason(websocket.CloseGoingAway, "server shutting down")
		h.registry.Remove(c.ID())
		metrics.WSConnections.Dec()
	}
	h.logger.Info().Int("closed", len(clients)).Msg("hub shut down")
}
