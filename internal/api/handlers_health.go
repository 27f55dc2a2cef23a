// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package api

import (
	"net/http"
)

// handleHealth reports the relay's own status plus the orchestrator
// probe result. Always 200; the orchestrator being down does not make
// the relay unhealthy.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"environment":  h.cfg.Server.Environment,
		"orchestrator": h.upstream.CheckHealth(r.Context()),
		"websocket": map[string]interface{}{
			"active_connections": h.registry.ConnectionCount(),
		},
	})
}

// handleLive is the liveness probe: the process is up.
func (h *Handler) handleLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReady is the readiness probe: 503 until the orchestrator is
// reachable, so load balancers don't route chat traffic into errors.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	health := h.upstream.CheckHealth(r.Context())
	if !health.Available {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY",
			"Orchestrator is not reachable", map[string]interface{}{
				"orchestrator": health,
			})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ready",
		"orchestrator": health,
	})
}
