// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package events

import (
	"strings"
	"testing"
	"time"
)

func TestFrameRoundTrip(t *testing.T) {
	msg := ChatMessage{
		ID:             "m-1",
		ChatID:         "chat-1",
		SenderID:       "user-1",
		SenderUsername: "alice",
		RecipientIDs:   []string{"user-2"},
		Content:        "hello",
		CreatedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	frame, err := NewFrame(FrameNewMessage, msg)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	raw, err := frame.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// The payload rides as a JSON string, not a nested object.
	if !strings.Contains(string(raw), `"payload":"{`) {
		t.Errorf("payload should be string-encoded, got %s", raw)
	}

	decoded, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if decoded.Type != FrameNewMessage {
		t.Errorf("type = %s, want %s", decoded.Type, FrameNewMessage)
	}

	var got ChatMessage
	if err := decoded.DecodePayload(&got); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got.ID != msg.ID || got.Content != msg.Content || !got.CreatedAt.Equal(msg.CreatedAt) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, msg)
	}
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	if _, err := DecodeFrame([]byte("{not json")); err == nil {
		t.Error("expected decode error")
	}
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	frame := Frame{Type: FrameNewMessage, Payload: "{broken"}
	var req SendMessageRequest
	if err := frame.DecodePayload(&req); err == nil {
		t.Error("expected payload decode error")
	}
}

func TestErrorFrame(t *testing.T) {
	frame := ErrorFrame(ErrCodeInvalidJSON, "bad frame")
	if frame.Type != FrameError {
		t.Fatalf("type = %s", frame.Type)
	}
	var body ErrorBody
	if err := frame.DecodePayload(&body); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if body.Code != ErrCodeInvalidJSON || body.Message != "bad frame" {
		t.Errorf("body = %+v", body)
	}
}

func TestKindForTopic(t *testing.T) {
	for _, topic := range Topics() {
		if _, ok := KindForTopic(topic); !ok {
			t.Errorf("no kind for topic %s", topic)
		}
	}
	if _, ok := KindForTopic("chat.unknown"); ok {
		t.Error("unknown topic must not resolve")
	}
}
