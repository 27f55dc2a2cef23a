// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	gorilla "github.com/gorilla/websocket"

	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/websocket"
)

// upgrader applies the configured CORS origins to websocket upgrades.
// An empty origin list allows same-origin only (gorilla's default).
func (h *Handler) upgrader() *gorilla.Upgrader {
	origins := h.cfg.Security.CORSOrigins
	up := &gorilla.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(origins) > 0 {
		up.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range origins {
				if allowed == "*" || strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		}
	}
	return up
}

// handleWebSocket upgrades the connection and runs the receive loop
// until the client goes away.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if clientID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "client ID is required", nil)
		return
	}

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its own error response.
		logging.Warn().Err(err).Str("client_id", clientID).Msg("websocket upgrade failed")
		return
	}

	websocket.NewSession(h.registry, clientID, conn, h.cfg.WebSocket).Run()
}
