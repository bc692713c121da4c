// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/chirpchat/chirp-gateway/internal/config"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *HTTPProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPProvider(config.PushConfig{
		ProviderURL:     srv.URL,
		ProviderKey:     "relay-key",
		ProviderTimeout: 5 * time.Second,
	})
}

func TestHTTPProviderSend(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer relay-key" {
			t.Errorf("authorization = %q", got)
		}
		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Title != "New message from alice" || len(req.Recipients) != 2 {
			t.Errorf("request = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"token":"t1"},{"token":"t2","errorCode":"UNREGISTERED"}]}`))
	})

	results, err := p.Send(context.Background(), Notification{
		Title: "New message from alice",
		Body:  "hi",
		Data:  map[string]string{"chatId": "chat-1"},
		Recipients: []DeviceToken{
			token("u1", "t1"),
			token("u2", "t2"),
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].ErrorCode != "" || results[0].Token.UserID != "u1" {
		t.Errorf("first result = %+v", results[0])
	}
	if results[1].ErrorCode != CodeUnregistered {
		t.Errorf("second result = %+v", results[1])
	}
}

func TestHTTPProviderBatchFailure(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := p.Send(context.Background(), Notification{
		Recipients: []DeviceToken{token("u1", "t1")},
	})
	if err == nil {
		t.Error("expected batch error for 503 response")
	}
}
