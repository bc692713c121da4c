// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

// Package gateway owns the WebSocket side of the system: per-connection
// read/write pumps, chat-targeted fan-out, the inbound frame router, the
// event dispatcher, and the heartbeat monitor.
package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chirpchat/chirp-gateway/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Conn is the subset of the gorilla connection the gateway uses. Tests
// substitute an in-memory implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// FrameHandler processes one raw inbound frame from a client.
type FrameHandler interface {
	HandleFrame(client *Client, raw []byte)
}

// Client pairs one WebSocket connection with its outbound send queue.
// All data writes go through the send channel and the write pump; control
// frames (ping, close) use WriteControl, which gorilla allows concurrently
// with a data writer.
type Client struct {
	id     string
	userID string
	conn   Conn
	hub    *Hub
	logger zerolog.Logger

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(id, userID string, conn Conn, hub *Hub, logger zerolog.Logger) *Client {
	return &Client{
		id:     id,
		userID: userID,
		conn:   conn,
		hub:    hub,
		logger: logger.With().Str("conn_id", id).Str("user_id", userID).Logger(),
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated owner of the connection.
func (c *Client) UserID() string { return c.userID }

// Send queues an outbound frame. Returns false when the client's queue is
// full or the client is closing; the caller treats that as a per-recipient
// delivery failure.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Ping sends a liveness probe control frame.
func (c *Client) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// CloseWithReason sends a close control frame and tears the client down.
func (c *Client) CloseWithReason(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	if err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		c.logger.Debug().Err(err).Msg("close frame not delivered")
	}
	c.shutdown()
}

// shutdown stops both pumps and closes the transport. Safe to call from
// any goroutine, repeatedly.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump consumes inbound frames until the connection errors or closes,
// then removes the client from the hub. Pongs refresh the registry's
// last-alive timestamp for the heartbeat monitor.
func (c *Client) readPump(handler FrameHandler, touch func(connID string)) {
	defer func() {
		c.shutdown()
		c.hub.remove(c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		touch(c.id)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleTransportError(err)
			return
		}
		metrics.WSMessagesReceived.Inc()
		handler.HandleFrame(c, raw)
	}
}

// handleTransportError answers an abnormal read failure with an
// internal-error close frame, best-effort. Clean closes and errors caused
// by our own shutdown pass through silently.
func (c *Client) handleTransportError(err error) {
	select {
	case <-c.done:
		return
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	c.logger.Debug().Err(err).Msg("transport error, closing connection")
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "transport error"),
		time.Now().Add(writeWait))
}

// writePump drains the send queue onto the wire.
func (c *Client) writePump() {
	defer c.shutdown()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				return
			}
		}
	}
}
