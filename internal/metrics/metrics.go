// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

// Package metrics provides Prometheus instrumentation for the gateway.
// Metrics are exposed at the /metrics endpoint in Prometheus text format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocket connection metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chirp_ws_connections_active",
			Help: "Current number of open WebSocket connections",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chirp_ws_messages_received_total",
			Help: "Total inbound WebSocket frames received",
		},
	)

	WSProtocolErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chirp_ws_protocol_errors_total",
			Help: "Total malformed inbound frames answered with an ERROR envelope",
		},
	)

	// Fan-out metrics
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chirp_broadcasts_total",
			Help: "Total outbound frames broadcast, by frame type",
		},
		[]string{"type"},
	)

	BroadcastSendErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chirp_broadcast_send_errors_total",
			Help: "Total per-connection send failures during fan-out",
		},
	)

	// Heartbeat metrics
	HeartbeatEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chirp_heartbeat_evictions_total",
			Help: "Total connections evicted by the heartbeat sweep, by reason",
		},
		[]string{"reason"}, // "timeout", "ping_failed"
	)

	// Registry metrics
	RegistryUsersOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chirp_registry_users_online",
			Help: "Current number of users with at least one open connection",
		},
	)

	// Push delivery metrics
	PushOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chirp_push_outcomes_total",
			Help: "Total per-recipient push delivery outcomes, by classification",
		},
		[]string{"outcome"}, // "succeeded", "temporary", "permanent"
	)

	PushRetryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chirp_push_retry_queue_depth",
			Help: "Current number of notifications waiting in the retry queue",
		},
	)

	PushRetriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chirp_push_retries_dropped_total",
			Help: "Total retry entries dropped for exceeding the maximum retry age",
		},
	)

	// Event dispatch metrics
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chirp_events_consumed_total",
			Help: "Total domain events consumed from the event bus, by kind",
		},
		[]string{"kind"},
	)

	EventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chirp_events_failed_total",
			Help: "Total domain events whose handler returned an error, by kind",
		},
		[]string{"kind"},
	)
)
