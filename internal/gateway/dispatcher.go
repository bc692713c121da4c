// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package gateway

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/chirpchat/chirp-gateway/internal/events"
	"github.com/chirpchat/chirp-gateway/internal/metrics"
	"github.com/chirpchat/chirp-gateway/internal/registry"
)

// Dispatcher consumes domain events and resolves each to the connection
// set that must be notified. Registry updates happen synchronously before
// the broadcast in the same handler call, so a client that receives a
// membership-change frame and refetches sees consistent state.
type Dispatcher struct {
	registry *registry.Registry
	hub      *Hub
	logger   zerolog.Logger
}

// NewDispatcher creates the fan-out dispatcher.
func NewDispatcher(reg *registry.Registry, hub *Hub, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		hub:      hub,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// RegisterHandlers attaches one consumer handler per event subject to the
// Watermill router.
func (d *Dispatcher) RegisterHandlers(router *message.Router, sub message.Subscriber) {
	for _, topic := range events.Topics() {
		kind, _ := events.KindForTopic(topic)
		router.AddNoPublisherHandler(
			"dispatch-"+topic,
			topic,
			sub,
			d.handlerFor(kind),
		)
	}
}

// handlerFor builds the handler for one event kind. A payload that fails
// to decode is acked and dropped; redelivery cannot fix it.
func (d *Dispatcher) handlerFor(kind events.Kind) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		metrics.EventsConsumed.WithLabelValues(string(kind)).Inc()
		if err := d.Dispatch(kind, msg.Payload); err != nil {
			metrics.EventsFailed.WithLabelValues(string(kind)).Inc()
			d.logger.Error().Err(err).Str("kind", string(kind)).Str("message_uuid", msg.UUID).
				Msg("event dropped")
		}
		return nil
	}
}

// Dispatch resolves one decoded event to its broadcast action.
func (d *Dispatcher) Dispatch(kind events.Kind, payload []byte) error {
	switch kind {
	case events.KindMessageSent:
		return d.onMessageSent(payload)
	case events.KindMessageDeleted:
		return d.onMessageDeleted(payload)
	case events.KindChatCreated:
		return d.onChatCreated(payload)
	case events.KindParticipantsJoined:
		return d.onParticipantsJoined(payload)
	case events.KindParticipantLeft:
		return d.onParticipantLeft(payload)
	case events.KindProfileImageUpdated:
		return d.onProfileImageUpdated(payload)
	default:
		return fmt.Errorf("unknown event kind %q", kind)
	}
}

func (d *Dispatcher) onMessageSent(payload []byte) error {
	var msg events.ChatMessage
	if err := events.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode MessageSent: %w", err)
	}
	frame, err := events.NewFrame(events.FrameNewMessage, msg)
	if err != nil {
		return err
	}
	d.hub.BroadcastToChat(msg.ChatID, frame)
	return nil
}

func (d *Dispatcher) onMessageDeleted(payload []byte) error {
	var ev events.MessageDeleted
	if err := events.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode MessageDeleted: %w", err)
	}
	frame, err := events.NewFrame(events.FrameMessageDeleted, ev)
	if err != nil {
		return err
	}
	d.hub.BroadcastToChat(ev.ChatID, frame)
	return nil
}

// onChatCreated only updates membership. The creator already knows about
// the chat from the create response; nobody else is a member yet.
func (d *Dispatcher) onChatCreated(payload []byte) error {
	var ev events.ChatCreated
	if err := events.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode ChatCreated: %w", err)
	}
	d.registry.OnChatJoin(ev.ChatID, ev.UserIDs)
	return nil
}

func (d *Dispatcher) onParticipantsJoined(payload []byte) error {
	var ev events.ParticipantsJoined
	if err := events.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode ParticipantsJoined: %w", err)
	}
	d.registry.OnChatJoin(ev.ChatID, ev.UserIDs)

	frame, err := events.NewFrame(events.FrameParticipantsChanged, events.ParticipantsChangedBody{ChatID: ev.ChatID})
	if err != nil {
		return err
	}
	d.hub.BroadcastToChat(ev.ChatID, frame)
	return nil
}

// onParticipantLeft detaches the user before broadcasting, so the leaving
// user's connections are already out of the chat's set and never see the
// membership-change frame.
func (d *Dispatcher) onParticipantLeft(payload []byte) error {
	var ev events.ParticipantLeft
	if err := events.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode ParticipantLeft: %w", err)
	}
	d.registry.OnChatLeave(ev.ChatID, ev.UserID)

	frame, err := events.NewFrame(events.FrameParticipantsChanged, events.ParticipantsChangedBody{ChatID: ev.ChatID})
	if err != nil {
		return err
	}
	d.hub.BroadcastToChat(ev.ChatID, frame)
	return nil
}

func (d *Dispatcher) onProfileImageUpdated(payload []byte) error {
	var ev events.ProfileImageUpdated
	if err := events.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode ProfileImageUpdated: %w", err)
	}
	frame, err := events.NewFrame(events.FrameProfileImageUpdated, ev)
	if err != nil {
		return err
	}
	d.hub.BroadcastToConnections(d.registry.ConnectionsSharingChatsWith(ev.UserID), frame)
	return nil
}
