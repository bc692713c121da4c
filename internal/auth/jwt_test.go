// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims(userID string) *Claims {
	return &Claims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestUserIDFromToken(t *testing.T) {
	v, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	token := signToken(t, testSecret, validClaims("user-1"))
	userID, err := v.UserIDFromToken(token)
	if err != nil {
		t.Fatalf("UserIDFromToken: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("userID = %q, want %q", userID, "user-1")
	}
}

func TestUserIDFromTokenRejects(t *testing.T) {
	v, _ := NewVerifier(testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signToken(t, "another-secret-another-secret-32", validClaims("user-1"))},
		{"expired", signToken(t, testSecret, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		})},
		{"no subject", signToken(t, testSecret, validClaims(""))},
		{"garbage", "not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.UserIDFromToken(tt.token); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestUserIDFromTokenRejectsAlgNone(t *testing.T) {
	v, _ := NewVerifier(testSecret)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims("user-1"))
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := v.UserIDFromToken(signed); err == nil {
		t.Error("alg=none token must be rejected")
	}
}

func TestUserIDFromHeader(t *testing.T) {
	v, _ := NewVerifier(testSecret)
	token := signToken(t, testSecret, validClaims("user-2"))

	userID, err := v.UserIDFromHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("UserIDFromHeader: %v", err)
	}
	if userID != "user-2" {
		t.Errorf("userID = %q, want %q", userID, "user-2")
	}

	// A raw token without the Bearer prefix is accepted too.
	if _, err := v.UserIDFromHeader(token); err != nil {
		t.Errorf("raw token should be accepted: %v", err)
	}

	if _, err := v.UserIDFromHeader(""); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("empty header: got %v, want ErrMissingCredential", err)
	}
	if _, err := v.UserIDFromHeader("Bearer "); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("empty bearer: got %v, want ErrMissingCredential", err)
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(""); err == nil {
		t.Error("expected error for empty secret")
	}
}
