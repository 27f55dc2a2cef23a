// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

// Package api exposes the relay's HTTP surface: synchronous chat, SSE
// streaming, conversation management, the agents catalog, health
// probes, the WebSocket upgrade endpoint, and Prometheus metrics.
package api

import (
	"context"
	"time"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/history"
	"github.com/chatrelay/chatrelay/internal/models"
	"github.com/chatrelay/chatrelay/internal/orchestrator"
	"github.com/chatrelay/chatrelay/internal/store"
	"github.com/chatrelay/chatrelay/internal/streaming"
	"github.com/chatrelay/chatrelay/internal/websocket"
)

// ChatStreamer runs one streaming chat turn against an emitter.
// Implemented by streaming.Session and assistant.Router.
type ChatStreamer interface {
	Stream(ctx context.Context, req models.StreamChatRequest, emit streaming.Emitter) error
}

// ChatClarifier resolves a pending clarification as a stream.
type ChatClarifier interface {
	Clarify(ctx context.Context, req models.ClarifyRequest, emit streaming.Emitter) error
}

// Upstream is the slice of the orchestrator gateway the handlers use
// directly (streaming goes through ChatStreamer instead).
type Upstream interface {
	SendMessage(ctx context.Context, req *models.OrchestratorRequest) (*models.OrchestratorResponse, time.Duration, error)
	CheckHealth(ctx context.Context) orchestrator.HealthStatus
	AgentStatuses(ctx context.Context) map[string]string
}

// Handler carries the dependencies for all HTTP handlers.
type Handler struct {
	cfg       *config.Config
	store     store.Store
	upstream  Upstream
	streamer  ChatStreamer
	clarifier ChatClarifier
	cache     *history.Cache
	agents    *history.SessionAgents
	registry  *websocket.Registry
}

// NewHandler wires the handler dependencies.
func NewHandler(
	cfg *config.Config,
	st store.Store,
	upstream Upstream,
	streamer ChatStreamer,
	clarifier ChatClarifier,
	cache *history.Cache,
	agents *history.SessionAgents,
	registry *websocket.Registry,
) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     st,
		upstream:  upstream,
		streamer:  streamer,
		clarifier: clarifier,
		cache:     cache,
		agents:    agents,
		registry:  registry,
	}
}
