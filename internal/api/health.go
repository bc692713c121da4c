// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

package api

import (
	"net/http"

	"github.com/goccy/go-json"
)

// ReadinessCheck reports whether a named dependency is ready to serve.
type ReadinessCheck struct {
	Name  string
	Check func() error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checks []ReadinessCheck
}

// NewHealthHandler creates a health handler with the given readiness
// checks. Liveness never consults them.
func NewHealthHandler(checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live reports process liveness.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Ready reports whether the gateway's dependencies are usable. Any
// failing check flips the response to 503.
func (h *HealthHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	resp := healthResponse{Status: "ok"}
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}
	for _, c := range h.checks {
		if err := c.Check(); err != nil {
			resp.Checks[c.Name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
