// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package gateway

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/chirpchat/chirp-gateway/internal/events"
	"github.com/chirpchat/chirp-gateway/internal/metrics"
	"github.com/chirpchat/chirp-gateway/internal/registry"
)

// sendTimeout bounds the domain call plus event publication for one
// inbound message.
const sendTimeout = 10 * time.Second

// MessageSender is the messaging domain collaborator. It validates,
// persists, and returns the stored message.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, senderID, content string, messageID *string) (*events.ChatMessage, error)
}

// EventPublisher publishes gateway-originated domain events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, payload any) error
}

// Inbound routes frames received from clients. Malformed frames get an
// ERROR reply to the sender only; sends to chats the sender is not a
// member of are dropped without a reply, so non-members cannot probe for
// a chat's existence.
type Inbound struct {
	registry  *registry.Registry
	hub       *Hub
	sender    MessageSender
	publisher EventPublisher
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewInbound creates the inbound frame router.
func NewInbound(reg *registry.Registry, hub *Hub, sender MessageSender, publisher EventPublisher, logger zerolog.Logger) *Inbound {
	return &Inbound{
		registry:  reg,
		hub:       hub,
		sender:    sender,
		publisher: publisher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With().Str("component", "inbound").Logger(),
	}
}

// HandleFrame processes one raw frame from a client. The connection stays
// open regardless of outcome.
func (r *Inbound) HandleFrame(client *Client, raw []byte) {
	frame, err := events.DecodeFrame(raw)
	if err != nil {
		r.rejectInvalid(client, "malformed frame")
		return
	}

	switch frame.Type {
	case events.FrameNewMessage:
		r.handleSendMessage(client, frame)
	default:
		r.rejectInvalid(client, "unrecognized frame type")
	}
}

func (r *Inbound) handleSendMessage(client *Client, frame events.Frame) {
	var req events.SendMessageRequest
	if err := frame.DecodePayload(&req); err != nil {
		r.rejectInvalid(client, "malformed payload")
		return
	}
	if err := r.validate.Struct(&req); err != nil {
		r.rejectInvalid(client, "invalid payload")
		return
	}

	if !r.registry.IsMember(client.UserID(), req.ChatID) {
		r.logger.Debug().Str("user_id", client.UserID()).Str("chat_id", req.ChatID).
			Msg("send to non-member chat dropped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	msg, err := r.sender.SendMessage(ctx, req.ChatID, client.UserID(), req.Content, req.MessageID)
	if err != nil {
		r.logger.Error().Err(err).Str("chat_id", req.ChatID).Str("user_id", client.UserID()).
			Msg("send message failed")
		return
	}

	if err := r.publisher.PublishEvent(ctx, events.TopicMessageSent, msg); err != nil {
		// The message is persisted; the dispatcher never sees it, so fan
		// out locally rather than lose the broadcast entirely.
		r.logger.Error().Err(err).Str("message_id", msg.ID).Msg("publish MessageSent failed, broadcasting locally")
		if frame, ferr := events.NewFrame(events.FrameNewMessage, msg); ferr == nil {
			r.hub.BroadcastToChat(msg.ChatID, frame)
		}
	}
}

// rejectInvalid answers the sender, and only the sender, with an ERROR
// frame carrying the INVALID_JSON code.
func (r *Inbound) rejectInvalid(client *Client, detail string) {
	metrics.WSProtocolErrors.Inc()
	r.logger.Debug().Str("conn_id", client.ID()).Str("detail", detail).Msg("invalid inbound frame")
	r.hub.SendToConnection(client.ID(), events.ErrorFrame(events.ErrCodeInvalidJSON, detail))
}
