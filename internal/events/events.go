// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

// Package events defines the domain events the gateway consumes from the
// event bus and the payloads they carry. Events are published by the chat
// and user services after their transactions commit; the gateway only
// consumes.
package events

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// Kind identifies a domain event type. The set is closed; the dispatcher
// switches exhaustively over it and drops anything else.
type Kind string

const (
	KindMessageSent         Kind = "MessageSent"
	KindMessageDeleted      Kind = "MessageDeleted"
	KindChatCreated         Kind = "ChatCreated"
	KindParticipantsJoined  Kind = "ParticipantsJoined"
	KindParticipantLeft     Kind = "ParticipantLeft"
	KindProfileImageUpdated Kind = "ProfileImageUpdated"
)

// NATS subjects, one per event kind.
const (
	TopicMessageSent         = "chat.message.sent"
	TopicMessageDeleted      = "chat.message.deleted"
	TopicChatCreated         = "chat.created"
	TopicParticipantsJoined  = "chat.participants.joined"
	TopicParticipantLeft     = "chat.participant.left"
	TopicProfileImageUpdated = "user.profile_image.updated"
)

// Topics returns every subject the dispatcher subscribes to.
func Topics() []string {
	return []string{
		TopicMessageSent,
		TopicMessageDeleted,
		TopicChatCreated,
		TopicParticipantsJoined,
		TopicParticipantLeft,
		TopicProfileImageUpdated,
	}
}

// KindForTopic maps a subject back to its event kind.
func KindForTopic(topic string) (Kind, bool) {
	switch topic {
	case TopicMessageSent:
		return KindMessageSent, true
	case TopicMessageDeleted:
		return KindMessageDeleted, true
	case TopicChatCreated:
		return KindChatCreated, true
	case TopicParticipantsJoined:
		return KindParticipantsJoined, true
	case TopicParticipantLeft:
		return KindParticipantLeft, true
	case TopicProfileImageUpdated:
		return KindProfileImageUpdated, true
	}
	return "", false
}

// Domain errors surfaced by the messaging collaborator.
var (
	ErrChatNotFound   = errors.New("chat not found")
	ErrSenderNotFound = errors.New("sender not found")
)

// ChatMessage is the persisted message carried by a MessageSent event and
// echoed verbatim in NEW_MESSAGE frames.
type ChatMessage struct {
	ID             string    `json:"id"`
	ChatID         string    `json:"chatId"`
	SenderID       string    `json:"senderId"`
	SenderUsername string    `json:"senderUsername"`
	RecipientIDs   []string  `json:"recipientIds"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// MessageDeleted announces that a message was removed from a chat.
type MessageDeleted struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

// ChatCreated announces a new chat and its initial participants.
type ChatCreated struct {
	ChatID  string   `json:"chatId"`
	UserIDs []string `json:"userIds"`
}

// ParticipantsJoined announces users added to an existing chat.
type ParticipantsJoined struct {
	ChatID  string   `json:"chatId"`
	UserIDs []string `json:"userIds"`
}

// ParticipantLeft announces a single user leaving a chat.
type ParticipantLeft struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// ProfileImageUpdated announces a changed profile image. NewImageURL is
// empty when the image was removed.
type ProfileImageUpdated struct {
	UserID      string `json:"userId"`
	NewImageURL string `json:"newImageUrl,omitempty"`
}

// Marshal encodes an event payload for publication.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes an event payload received from the bus.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
