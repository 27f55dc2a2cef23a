// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatrelay/chatrelay/internal/auth"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/middleware"
)

// Health probes get a generous separate bucket so aggressive monitoring
// never starves real traffic of rate-limit budget.
const healthRateLimit = 300

// NewRouter assembles the full HTTP surface.
//
// The websocket and health endpoints sit outside the bearer-auth group:
// browsers cannot attach Authorization headers to websocket upgrades,
// and load balancers probe health unauthenticated.
func NewRouter(h *Handler, authn *auth.Authenticator) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(h.cfg.Security.CORSOrigins))
	r.Use(middleware.Metrics)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(rateLimit(h.cfg, healthRateLimit, time.Minute))
			r.Get("/health", h.handleHealth)
			r.Get("/health/live", h.handleLive)
			r.Get("/health/ready", h.handleReady)
		})

		r.Get("/ws/{clientID}", h.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(h.cfg, h.cfg.Security.RateLimitReqs, h.cfg.Security.RateLimitWindow))
			r.Use(authn.Middleware)

			r.Post("/chat", h.handleChat)
			r.Post("/chat/stream", h.handleChatStream)
			r.Post("/chat/clarify", h.handleChatClarify)

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", h.handleCreateConversation)
				r.Get("/", h.handleListConversations)
				r.Get("/search", h.handleSearchConversations)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.handleGetConversation)
					r.Delete("/", h.handleDeleteConversation)
					r.Get("/messages", h.handleGetMessages)
					r.Post("/messages", h.handleSaveMessage)
					r.Get("/export", h.handleExportConversation)
					r.Get("/context", h.handleGetContext)
					r.Put("/context", h.handleSetContext)
				})
			})

			r.Get("/agents", h.handleListAgents)
			r.Get("/agents/{id}", h.handleGetAgent)
		})
	})

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

func rateLimit(cfg *config.Config, requests int, window time.Duration) func(http.Handler) http.Handler {
	if cfg.Security.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
	)
}
