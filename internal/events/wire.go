// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package events

import (
	"fmt"

	"github.com/goccy/go-json"
)

// FrameType identifies a WebSocket wire frame.
type FrameType string

const (
	FrameNewMessage          FrameType = "NEW_MESSAGE"
	FrameMessageDeleted      FrameType = "MESSAGE_DELETED"
	FrameProfileImageUpdated FrameType = "PROFILE_IMAGE_UPDATED"
	FrameParticipantsChanged FrameType = "CHAT_PARTICIPANTS_CHANGED"
	FrameError               FrameType = "ERROR"
)

// Error codes carried in ERROR frames.
const (
	ErrCodeInvalidJSON = "INVALID_JSON"
)

// Frame is the wire envelope exchanged over WebSocket connections, in both
// directions. The payload is a JSON document encoded as a string, so the
// envelope decodes without knowledge of the body schema.
type Frame struct {
	Type    FrameType `json:"type"`
	Payload string    `json:"payload"`
}

// NewFrame builds a frame of the given type around an encoded body.
func NewFrame(frameType FrameType, body any) (Frame, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", frameType, err)
	}
	return Frame{Type: frameType, Payload: string(encoded)}, nil
}

// ErrorFrame builds an ERROR frame with the given code and message.
func ErrorFrame(code, message string) Frame {
	frame, err := NewFrame(FrameError, ErrorBody{Code: code, Message: message})
	if err != nil {
		// ErrorBody always encodes; keep the wire alive regardless.
		return Frame{Type: FrameError, Payload: `{"code":"` + code + `"}`}
	}
	return frame
}

// Encode serializes the frame for transmission.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFrame parses a raw inbound frame into its envelope.
func DecodeFrame(data []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return frame, nil
}

// DecodePayload parses the frame's string payload into v.
func (f Frame) DecodePayload(v any) error {
	if err := json.Unmarshal([]byte(f.Payload), v); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Type, err)
	}
	return nil
}

// ErrorBody is the payload of an ERROR frame.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// ParticipantsChangedBody is the payload of a CHAT_PARTICIPANTS_CHANGED
// frame. It carries only the chat identifier; clients refetch membership.
type ParticipantsChangedBody struct {
	ChatID string `json:"chatId"`
}

// SendMessageRequest is the body of an inbound NEW_MESSAGE frame.
type SendMessageRequest struct {
	ChatID    string  `json:"chatId" validate:"required"`
	Content   string  `json:"content" validate:"required,max=2000"`
	MessageID *string `json:"messageId,omitempty" validate:"omitempty,uuid4"`
}
