// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package push

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/chirpchat/chirp-gateway/internal/config"
)

// HTTPProvider dispatches notification batches to the push relay, which
// owns the FCM/APNs credentials and platform-specific delivery knobs.
type HTTPProvider struct {
	url  string
	key  string
	http *http.Client
}

// NewHTTPProvider creates a provider from push configuration.
func NewHTTPProvider(cfg config.PushConfig) *HTTPProvider {
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		url:  cfg.ProviderURL,
		key:  cfg.ProviderKey,
		http: &http.Client{Timeout: timeout},
	}
}

type batchRecipient struct {
	Token    string   `json:"token"`
	Platform Platform `json:"platform"`
}

type batchRequest struct {
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
	Recipients []batchRecipient  `json:"recipients"`
}

type batchResult struct {
	Token     string `json:"token"`
	ErrorCode string `json:"errorCode,omitempty"`
}

type batchResponse struct {
	Results []batchResult `json:"results"`
}

// Send implements Provider. A non-2xx relay response or transport error
// fails the whole batch; per-recipient codes come back in the response
// body.
func (p *HTTPProvider) Send(ctx context.Context, n Notification) ([]RecipientResult, error) {
	req := batchRequest{
		Title:      n.Title,
		Body:       n.Body,
		Data:       n.Data,
		Recipients: make([]batchRecipient, 0, len(n.Recipients)),
	}
	for _, t := range n.Recipients {
		req.Recipients = append(req.Recipients, batchRecipient{Token: t.Token, Platform: t.Platform})
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.key)
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatch batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("push relay status %d: %s", resp.StatusCode, body)
	}

	var decoded batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode batch response: %w", err)
	}

	// Results come back keyed by token; join them with the request's
	// DeviceToken so the scheduler can deregister permanent failures.
	byToken := make(map[string]string, len(decoded.Results))
	for _, r := range decoded.Results {
		byToken[r.Token] = r.ErrorCode
	}
	out := make([]RecipientResult, 0, len(n.Recipients))
	for _, t := range n.Recipients {
		out = append(out, RecipientResult{Token: t, ErrorCode: byToken[t.Token]})
	}
	return out, nil
}
