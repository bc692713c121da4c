// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

// Package api provides HTTP routing for the gateway: the WebSocket
// endpoint, health probes, and Prometheus metrics.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chirpchat/chirp-gateway/internal/config"
)

// NewRouter builds the gateway's HTTP routing tree.
func NewRouter(cfg config.ServerConfig, ws *WebSocketHandler, health *HealthHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/healthz", func(r chi.Router) {
		r.Get("/", health.Live)
		r.Get("/ready", health.Ready)
	})

	r.Group(func(r chi.Router) {
		if cfg.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
		}
		r.Get("/ws", ws.Handle)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
