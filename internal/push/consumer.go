// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package push

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/chirpchat/chirp-gateway/internal/events"
)

// bodyLimit caps the notification body; longer contents are truncated.
const bodyLimit = 240

// Consumer turns MessageSent events into push notifications for the
// message's recipients. It runs in its own consumer group so fan-out to
// sockets and push delivery progress independently.
type Consumer struct {
	scheduler *Scheduler
	tokens    TokenStore
	logger    zerolog.Logger
}

// NewConsumer creates the push notification consumer.
func NewConsumer(scheduler *Scheduler, tokens TokenStore, logger zerolog.Logger) *Consumer {
	return &Consumer{
		scheduler: scheduler,
		tokens:    tokens,
		logger:    logger.With().Str("component", "push-consumer").Logger(),
	}
}

// RegisterHandlers attaches the consumer to the Watermill router.
func (c *Consumer) RegisterHandlers(router *message.Router, sub message.Subscriber) {
	router.AddNoPublisherHandler(
		"push-message-sent",
		events.TopicMessageSent,
		sub,
		c.handleMessageSent,
	)
}

// handleMessageSent resolves recipient device tokens and hands the
// notification to the scheduler. Token resolution failures are returned
// for redelivery; everything past the scheduler boundary is best-effort.
func (c *Consumer) handleMessageSent(msg *message.Message) error {
	var ev events.ChatMessage
	if err := events.Unmarshal(msg.Payload, &ev); err != nil {
		c.logger.Error().Err(err).Str("message_uuid", msg.UUID).Msg("undecodable MessageSent dropped")
		return nil
	}

	recipients := make([]string, 0, len(ev.RecipientIDs))
	for _, userID := range ev.RecipientIDs {
		if userID != ev.SenderID {
			recipients = append(recipients, userID)
		}
	}
	if len(recipients) == 0 {
		c.logger.Debug().Str("chat_id", ev.ChatID).Msg("no recipients besides sender, nothing to push")
		return nil
	}

	ctx := msg.Context()
	tokens, err := c.tokens.FindTokensByUserIDs(ctx, recipients)
	if err != nil {
		return fmt.Errorf("resolve device tokens: %w", err)
	}

	targets := dedupe(tokens, ev.SenderID)
	if len(targets) == 0 {
		c.logger.Warn().Str("chat_id", ev.ChatID).Int("recipients", len(recipients)).
			Msg("no device tokens found for recipients")
		return nil
	}

	c.scheduler.Send(ctx, Notification{
		Title: "New message from " + ev.SenderUsername,
		Body:  truncate(ev.Content, bodyLimit),
		Data: map[string]string{
			"chatId": ev.ChatID,
			"type":   "new_message",
		},
		Recipients: targets,
	})
	return nil
}

// dedupe drops duplicate tokens and any token registered to the sender.
func dedupe(tokens []DeviceToken, senderID string) []DeviceToken {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]DeviceToken, 0, len(tokens))
	for _, t := range tokens {
		if t.UserID == senderID {
			continue
		}
		if _, dup := seen[t.Token]; dup {
			continue
		}
		seen[t.Token] = struct{}{}
		out = append(out, t)
	}
	return out
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
