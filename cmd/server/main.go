// Chirp Gateway - Realtime Chat Fan-out and Push Delivery
// Copyright 2026 Chirp Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chirpchat/chirp-gateway

// Package main is the entry point for the Chirp gateway.
//
// The gateway terminates WebSocket connections for the Chirp chat backend,
// fans domain events out to connected clients, and schedules push delivery
// retries for offline recipients. State lives elsewhere: chat membership,
// message persistence, and device tokens belong to the chat service; the
// gateway only keeps the in-memory connection registry.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, optional YAML file, CHIRP_ env vars)
//  2. Logging (zerolog, JSON by default)
//  3. NATS JetStream (embedded server optional), stream provisioning
//  4. Connection registry, WebSocket hub, inbound router
//  5. Watermill router: fan-out dispatcher + push consumer handlers
//  6. Supervisor tree (suture): messaging layer and API layer
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP
// listener drains, every client receives a close frame, and the event
// router stops after in-flight handlers finish.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chirpchat/chirp-gateway/internal/api"
	"github.com/chirpchat/chirp-gateway/internal/auth"
	"github.com/chirpchat/chirp-gateway/internal/chatclient"
	"github.com/chirpchat/chirp-gateway/internal/config"
	"github.com/chirpchat/chirp-gateway/internal/eventbus"
	"github.com/chirpchat/chirp-gateway/internal/gateway"
	"github.com/chirpchat/chirp-gateway/internal/logging"
	"github.com/chirpchat/chirp-gateway/internal/push"
	"github.com/chirpchat/chirp-gateway/internal/registry"
	"github.com/chirpchat/chirp-gateway/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logging.Info().
		Str("chat_service", cfg.ChatService.BaseURL).
		Bool("push_enabled", cfg.Push.Enabled).
		Bool("embedded_nats", cfg.NATS.EmbeddedServer).
		Msg("Starting Chirp gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// NATS: embedded JetStream server for single-binary deployments,
	// external broker otherwise.
	natsCfg := cfg.NATS
	var embedded *eventbus.EmbeddedServer
	if cfg.NATS.EmbeddedServer {
		embedded, err = eventbus.NewEmbeddedServer(eventbus.EmbeddedServerConfig{
			Host:     "127.0.0.1",
			Port:     -1,
			StoreDir: cfg.NATS.StoreDir,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
		}
		natsCfg.URL = embedded.ClientURL()
		logging.Info().Str("url", natsCfg.URL).Msg("Embedded NATS server started")
	}

	if err := eventbus.EnsureStream(ctx, natsCfg.URL, natsCfg.StreamName); err != nil {
		logging.Fatal().Err(err).Msg("Failed to provision JetStream stream")
	}

	wmLogger := eventbus.NewLoggerAdapter(logger)

	publisher, err := eventbus.NewPublisher(natsCfg, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create event publisher")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event publisher")
		}
	}()

	// The chat service client backs membership resolution, message
	// persistence, and the device-token registry.
	chatSvc := chatclient.New(cfg.ChatService)

	reg := registry.New(chatSvc, logger)
	hub := gateway.NewHub(reg, logger)
	hub.SetFrameHandler(gateway.NewInbound(reg, hub, chatSvc, publisher, logger))

	// Watermill router: the fan-out dispatcher and the push consumer run
	// as separate durable consumer groups so each receives its own copy
	// of the message-sent topic.
	router, err := eventbus.NewRouter(natsCfg, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create event router")
	}

	dispatchSub, err := eventbus.NewSubscriber(natsCfg, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create dispatcher subscriber")
	}
	gateway.NewDispatcher(reg, hub, logger).RegisterHandlers(router, dispatchSub)

	var scheduler *push.Scheduler
	if cfg.Push.Enabled {
		pushNATS := natsCfg
		pushNATS.DurableName = natsCfg.DurableName + "-push"
		pushNATS.QueueGroup = natsCfg.QueueGroup + "-push"
		pushSub, err := eventbus.NewSubscriber(pushNATS, wmLogger)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create push subscriber")
		}

		provider := push.NewHTTPProvider(cfg.Push)
		scheduler = push.NewScheduler(provider, chatSvc, cfg.Push, logger)
		push.NewConsumer(scheduler, chatSvc, logger).RegisterHandlers(router, pushSub)
		logging.Info().Str("provider_url", cfg.Push.ProviderURL).Msg("Push delivery enabled")
	} else {
		logging.Info().Msg("Push delivery disabled")
	}

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT verifier")
	}

	health := api.NewHealthHandler(api.ReadinessCheck{
		Name: "event_router",
		Check: func() error {
			select {
			case <-router.Running():
				return nil
			default:
				return errors.New("event router not running")
			}
		},
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(cfg.Server, api.NewWebSocketHandler(hub, verifier, cfg.Server.CORSOrigins, logger), health),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(supervisor.NewRouterService(router))
	tree.AddMessagingService(gateway.NewHeartbeat(reg, hub, cfg.Heartbeat, logger))
	if scheduler != nil {
		tree.AddMessagingService(scheduler)
	}
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Clients get close frames after the listener stops accepting
	// upgrades.
	hub.Shutdown()

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	if embedded != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := embedded.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("Error shutting down embedded NATS server")
		}
		shutdownCancel()
	}

	logging.Info().Msg("Gateway stopped gracefully")
}
