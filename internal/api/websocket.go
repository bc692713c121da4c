// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chirpchat/chirp-gateway/internal/auth"
	"github.com/chirpchat/chirp-gateway/internal/gateway"
)

// Authenticator verifies the bearer credential presented at the
// handshake and returns the user it belongs to.
type Authenticator interface {
	UserIDFromToken(token string) (string, error)
}

// WebSocketHandler upgrades /ws requests and hands authenticated
// connections to the hub.
type WebSocketHandler struct {
	hub      *gateway.Hub
	verifier Authenticator
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewWebSocketHandler creates the /ws endpoint handler. allowedOrigins
// restricts browser connections; an empty list allows any origin.
func NewWebSocketHandler(hub *gateway.Hub, verifier Authenticator, allowedOrigins []string, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      originChecker(allowedOrigins),
		},
		logger: logger.With().Str("component", "ws-handler").Logger(),
	}
}

// Handle authenticates and upgrades one WebSocket request. The token
// rides in the Authorization header or, for browser clients that cannot
// set headers on WebSocket requests, a "token" query parameter. A failed
// authentication closes the socket before it reaches the registry.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}

	userID, err := h.verifier.UserIDFromToken(token)
	if err != nil {
		h.logger.Debug().Err(err).Msg("handshake authentication failed")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Debug().Err(err).Msg("upgrade failed")
		return
	}

	if _, err := h.hub.Admit(r.Context(), conn, userID); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("admission failed")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "admission failed"),
			time.Now().Add(5*time.Second))
		_ = conn.Close()
		return
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		const prefix = "Bearer "
		if len(header) > len(prefix) && header[:len(prefix)] == prefix {
			return header[len(prefix):]
		}
		return header
	}
	return r.URL.Query().Get("token")
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients send no Origin header.
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ensure the auth verifier satisfies the handler's interface
var _ Authenticator = (*auth.Verifier)(nil)
