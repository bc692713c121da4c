// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

// Package push delivers best-effort push notifications for chat messages.
// Delivery failures never propagate to the triggering operation; temporary
// failures are retried on a fixed backoff schedule until a maximum age.
package push

import "context"

// Platform is the device platform a token belongs to.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// DeviceToken is a registered push target.
type DeviceToken struct {
	Token    string   `json:"token"`
	UserID   string   `json:"userId"`
	Platform Platform `json:"platform"`
}

// Notification is one push message addressed to a set of device tokens.
type Notification struct {
	Title      string
	Body       string
	Data       map[string]string
	Recipients []DeviceToken
}

// RecipientResult is the per-recipient outcome of a provider dispatch.
// An empty ErrorCode means the recipient was delivered.
type RecipientResult struct {
	Token     DeviceToken
	ErrorCode string
}

// Provider dispatches a notification to the external push service and
// reports per-recipient outcomes. A returned error means the whole batch
// failed (network, auth, service down).
type Provider interface {
	Send(ctx context.Context, n Notification) ([]RecipientResult, error)
}

// TokenStore resolves users' registered device tokens and deregisters
// tokens the provider reports as permanently invalid.
type TokenStore interface {
	FindTokensByUserIDs(ctx context.Context, userIDs []string) ([]DeviceToken, error)
	DeleteToken(ctx context.Context, token string) error
}

// Outcome classifies a per-recipient delivery result.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeTemporary
	OutcomePermanent
)

// Provider error codes, mirroring FCM's messaging error set.
const (
	CodeUnregistered        = "UNREGISTERED"
	CodeSenderIDMismatch    = "SENDER_ID_MISMATCH"
	CodeThirdPartyAuthError = "THIRD_PARTY_AUTH_ERROR"
	CodeInvalidArgument     = "INVALID_ARGUMENT"
	CodeInternal            = "INTERNAL"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeUnavailable         = "UNAVAILABLE"
)

// Classify maps a provider error code to an outcome. Invalid tokens,
// sender mismatches, bad third-party auth, and malformed requests are
// permanent; everything else, including codes this gateway has never seen,
// fails open toward retrying.
func Classify(code string) Outcome {
	switch code {
	case "":
		return OutcomeSucceeded
	case CodeUnregistered, CodeSenderIDMismatch, CodeThirdPartyAuthError, CodeInvalidArgument:
		return OutcomePermanent
	case CodeInternal, CodeQuotaExceeded, CodeUnavailable:
		return OutcomeTemporary
	default:
		return OutcomeTemporary
	}
}
