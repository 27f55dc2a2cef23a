// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

// Package main is the entry point for the ChatRelay server.
//
// ChatRelay is the backend-for-frontend between chat clients and an
// agent orchestrator. It relays synchronous and streaming (SSE) chat,
// fans out realtime frames over WebSocket, persists conversations to
// SQLite, and keeps a bounded in-memory history so multi-turn context
// reaches the orchestrator.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered loading (defaults, config.yaml,
//     CHATRELAY_* environment variables)
//  2. Store: SQLite persistence for conversations and messages
//  3. Orchestrator gateway: HTTP client with circuit breaker
//  4. History: bounded LRU conversation cache and session-agent map
//  5. Streaming: SSE session, optionally fronted by the AI-routed
//     assistant when an API key is configured
//  6. WebSocket registry and heartbeat broadcaster
//  7. Authentication: dev, jwt, or introspect mode
//  8. HTTP server under a Suture supervisor tree
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server stops
// accepting connections, in-flight requests get the configured
// shutdown timeout, then the store is closed.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatrelay/chatrelay/internal/api"
	"github.com/chatrelay/chatrelay/internal/assistant"
	"github.com/chatrelay/chatrelay/internal/auth"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/history"
	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/orchestrator"
	"github.com/chatrelay/chatrelay/internal/store"
	"github.com/chatrelay/chatrelay/internal/streaming"
	"github.com/chatrelay/chatrelay/internal/supervisor"
	ws "github.com/chatrelay/chatrelay/internal/websocket"
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

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("orchestrator_url", cfg.Orchestrator.URL).
		Str("auth_mode", cfg.Auth.Mode).
		Str("db_path", cfg.Database.Path).
		Msg("Configuration loaded")

	if cfg.Auth.Mode == config.AuthModeDev {
		logging.Warn().Msg("Authentication is in dev mode; every request runs as the development user")
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open conversation store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing conversation store")
		}
	}()
	logging.Info().Str("path", cfg.Database.Path).Msg("Conversation store ready")

	gateway := orchestrator.New(cfg.Orchestrator)

	cache := history.NewCache(cfg.History.MaxMessagesPerConversation, cfg.History.MaxConversations)
	agents := history.NewSessionAgents(cfg.History.MaxSessionAgents)

	baseline := streaming.NewSession(gateway, cache, agents)

	// The assistant router falls back to the baseline session when no
	// API key is configured, so it is always safe to use as streamer.
	router := assistant.NewRouter(cfg.Assistant, baseline, gateway, cache)
	if cfg.Assistant.APIKey != "" {
		logging.Info().Str("model", cfg.Assistant.Model).Msg("AI-routed streaming enabled")
	}

	registry := ws.NewRegistry()

	handler := api.NewHandler(cfg, st, gateway, router, baseline, cache, agents, registry)
	authn := auth.New(cfg.Auth)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(handler, authn),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout, // zero: SSE must not be write-bounded
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(ws.NewHeartbeater(registry, cfg.WebSocket.HeartbeatInterval))
	tree.AddAPIService(supervisor.NewHTTPServerService(server, server.Addr, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added to supervisor tree")

	logging.Info().Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	logging.Info().Msg("ChatRelay stopped gracefully")
}
