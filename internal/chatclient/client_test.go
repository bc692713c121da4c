// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package chatclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chirpchat/chirp-gateway/internal/config"
	"github.com/chirpchat/chirp-gateway/internal/events"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.ChatServiceConfig{
		BaseURL:      srv.URL,
		ServiceToken: "svc-token",
		Timeout:      5 * time.Second,
	})
}

func TestFindChatsForUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/internal/users/alice/chats" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer svc-token" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"chatIds":["chat-1","chat-2"]}`))
	})

	chats, err := c.FindChatsForUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindChatsForUser: %v", err)
	}
	if len(chats) != 2 || chats[0] != "chat-1" || chats[1] != "chat-2" {
		t.Errorf("chats = %v", chats)
	}
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/internal/chats/chat-1/messages" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m-1","chatId":"chat-1","senderId":"alice","senderUsername":"alice","recipientIds":["alice","bob"],"content":"hi"}`))
	})

	msg, err := c.SendMessage(context.Background(), "chat-1", "alice", "hi", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ID != "m-1" || msg.ChatID != "chat-1" || len(msg.RecipientIDs) != 2 {
		t.Errorf("message = %+v", msg)
	}
}

func TestSendMessageMapsSentinels(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"CHAT_NOT_FOUND", events.ErrChatNotFound},
		{"SENDER_NOT_FOUND", events.ErrSenderNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"code":"` + tt.code + `","message":"nope"}`))
			})
			_, err := c.SendMessage(context.Background(), "chat-x", "alice", "hi", nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFindTokensByUserIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/internal/device-tokens/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tokens":[{"token":"tok-1","userId":"bob","platform":"android"}]}`))
	})

	tokens, err := c.FindTokensByUserIDs(context.Background(), []string{"bob"})
	if err != nil {
		t.Fatalf("FindTokensByUserIDs: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Token != "tok-1" || tokens[0].UserID != "bob" {
		t.Errorf("tokens = %v", tokens)
	}
}

func TestDeleteTokenTreatsMissingAsDeleted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	if err := c.DeleteToken(context.Background(), "tok-gone"); err != nil {
		t.Errorf("DeleteToken = %v, want nil for missing token", err)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	if _, err := c.FindChatsForUser(context.Background(), "alice"); err == nil {
		t.Error("expected error for 500 response")
	}
}
