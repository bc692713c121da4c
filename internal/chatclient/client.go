// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

// Package chatclient is the HTTP client for the upstream chat service.
// The gateway delegates everything stateful to it: chat membership,
// message persistence, and the device-token registry.
package chatclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/chirpchat/chirp-gateway/internal/config"
	"github.com/chirpchat/chirp-gateway/internal/events"
	"github.com/chirpchat/chirp-gateway/internal/push"
)

// Error codes returned by the chat service on 4xx responses.
const (
	errCodeChatNotFound   = "CHAT_NOT_FOUND"
	errCodeSenderNotFound = "SENDER_NOT_FOUND"
)

// Client talks to the chat service's internal API. It satisfies
// registry.MembershipSource, gateway.MessageSender, and push.TokenStore.
type Client struct {
	baseURL      string
	serviceToken string
	http         *http.Client
}

// New creates a chat service client from configuration.
func New(cfg config.ChatServiceConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		serviceToken: cfg.ServiceToken,
		http:         &http.Client{Timeout: timeout},
	}
}

type chatListResponse struct {
	ChatIDs []string `json:"chatIds"`
}

// FindChatsForUser returns the IDs of every chat the user participates in.
func (c *Client) FindChatsForUser(ctx context.Context, userID string) ([]string, error) {
	var resp chatListResponse
	path := "/api/internal/users/" + url.PathEscape(userID) + "/chats"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("find chats for user %s: %w", userID, err)
	}
	return resp.ChatIDs, nil
}

type sendMessageRequest struct {
	SenderID  string  `json:"senderId"`
	Content   string  `json:"content"`
	MessageID *string `json:"messageId,omitempty"`
}

// SendMessage persists a chat message through the chat service and returns
// the stored message. The service only stores it; the gateway publishes
// the MessageSent event for gateway-originated sends.
func (c *Client) SendMessage(ctx context.Context, chatID, senderID, content string, messageID *string) (*events.ChatMessage, error) {
	body := sendMessageRequest{SenderID: senderID, Content: content, MessageID: messageID}
	var msg events.ChatMessage
	path := "/api/internal/chats/" + url.PathEscape(chatID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, body, &msg); err != nil {
		return nil, fmt.Errorf("send message to chat %s: %w", chatID, err)
	}
	return &msg, nil
}

type tokenQueryRequest struct {
	UserIDs []string `json:"userIds"`
}

type tokenQueryResponse struct {
	Tokens []push.DeviceToken `json:"tokens"`
}

// FindTokensByUserIDs returns all registered device tokens for the users.
func (c *Client) FindTokensByUserIDs(ctx context.Context, userIDs []string) ([]push.DeviceToken, error) {
	var resp tokenQueryResponse
	if err := c.do(ctx, http.MethodPost, "/api/internal/device-tokens/query", tokenQueryRequest{UserIDs: userIDs}, &resp); err != nil {
		return nil, fmt.Errorf("query device tokens: %w", err)
	}
	return resp.Tokens, nil
}

// DeleteToken deregisters a device token. A token the service no longer
// knows counts as deleted.
func (c *Client) DeleteToken(ctx context.Context, token string) error {
	err := c.do(ctx, http.MethodDelete, "/api/internal/device-tokens/"+url.PathEscape(token), nil, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete device token: %w", err)
	}
	return nil
}

// apiError carries the service's structured error body.
type apiError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("chat service: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("chat service: status %d", e.Status)
}

func isNotFound(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.serviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFrom(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorFrom maps a non-2xx response to a sentinel where one exists.
func (c *Client) errorFrom(resp *http.Response) error {
	ae := &apiError{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(body, ae)

	switch ae.Code {
	case errCodeChatNotFound:
		return fmt.Errorf("%w: %s", events.ErrChatNotFound, ae.Message)
	case errCodeSenderNotFound:
		return fmt.Errorf("%w: %s", events.ErrSenderNotFound, ae.Message)
	}
	return ae
}
