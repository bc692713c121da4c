// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chirpchat/chirp-gateway/internal/config"
	"github.com/chirpchat/chirp-gateway/internal/gateway"
	"github.com/chirpchat/chirp-gateway/internal/registry"
)

type staticAuth struct {
	userID string
	err    error
}

func (a staticAuth) UserIDFromToken(string) (string, error) {
	return a.userID, a.err
}

type noMemberships struct{}

func (noMemberships) FindChatsForUser(context.Context, string) ([]string, error) {
	return nil, nil
}

func serverConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            8080,
		Timeout:         5 * time.Second,
		CORSOrigins:     []string{"*"},
		RateLimitReqs:   0,
		RateLimitWindow: time.Minute,
	}
}

func newTestServer(t *testing.T, verifier Authenticator, checks ...ReadinessCheck) (*httptest.Server, *gateway.Hub) {
	t.Helper()
	hub := gateway.NewHub(registry.New(noMemberships{}, zerolog.Nop()), zerolog.Nop())
	ws := NewWebSocketHandler(hub, verifier, nil, zerolog.Nop())
	srv := httptest.NewServer(NewRouter(serverConfig(), ws, NewHealthHandler(checks...)))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Shutdown)
	return srv, hub
}

func TestHealthLive(t *testing.T) {
	srv, _ := newTestServer(t, staticAuth{userID: "alice"})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHealthReadyFailingCheck(t *testing.T) {
	srv, _ := newTestServer(t, staticAuth{userID: "alice"}, ReadinessCheck{
		Name:  "event_router",
		Check: func() error { return errors.New("not running") },
	})

	resp, err := http.Get(srv.URL + "/healthz/ready")
	if err != nil {
		t.Fatalf("GET /healthz/ready: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, staticAuth{userID: "alice"})

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestWebSocketRejectsMissingCredentials(t *testing.T) {
	srv, _ := newTestServer(t, staticAuth{userID: "alice"})

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("GET /ws: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestWebSocketRejectsInvalidToken(t *testing.T) {
	srv, hub := newTestServer(t, staticAuth{err: errors.New("bad signature")})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial should fail for an invalid token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("handshake response = %v, want 401", resp)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("clients = %d, want 0 after rejected handshake", hub.ClientCount())
	}
}

func TestWebSocketAdmitsAuthenticatedClient(t *testing.T) {
	srv, hub := newTestServer(t, staticAuth{userID: "alice"})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"Authorization": {"Bearer token"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want 1", hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
