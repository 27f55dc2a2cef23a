// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

// Package auth provides request authentication in three modes: dev
// (static user, no token required), jwt (HS256 bearer tokens), and
// introspect (token validation against the upstream platform instance,
// with a TTL cache).
package auth

import (
	"context"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/models"
)

type contextKey struct{}

var userContextKey = contextKey{}

// DevUser is the static identity injected in dev mode. It carries full
// admin/itil roles so every endpoint is reachable during local work.
var DevUser = models.CurrentUser{
	SysID:    "dev-000000000000000000000000000000",
	UserName: "dev.user",
	Name:     "Dev User",
	Email:    "dev@localhost",
	Title:    "Developer",
	Roles:    []string{"admin", "itil"},
}

// Authenticator validates requests and injects the current user into
// the request context.
type Authenticator struct {
	mode        string
	jwtVerifier *JWTVerifier
	introspect  *Introspector
}

// New builds an Authenticator for the configured mode.
func New(cfg config.AuthConfig) *Authenticator {
	a := &Authenticator{mode: cfg.Mode}
	switch cfg.Mode {
	case config.AuthModeJWT:
		a.jwtVerifier = NewJWTVerifier(cfg.JWTSecret)
	case config.AuthModeIntrospect:
		a.introspect = NewIntrospector(cfg.InstanceURL, cfg.CacheTTL, cfg.CacheCapacity)
	}
	return a
}

// Middleware authenticates each request. Unauthenticated requests get
// a 401 envelope; authenticated ones proceed with the user in context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.mode == config.AuthModeDev {
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), DevUser)))
			return
		}

		token := bearerToken(r)
		if token == "" {
			unauthorized(w, "Authentication required. Provide a Bearer token in the Authorization header.")
			return
		}

		var user *models.CurrentUser
		var err error
		switch a.mode {
		case config.AuthModeJWT:
			user, err = a.jwtVerifier.Verify(token)
		case config.AuthModeIntrospect:
			user, err = a.introspect.Validate(r.Context(), token)
		default:
			unauthorized(w, "Authentication service is not configured.")
			return
		}
		if err != nil || user == nil {
			logging.Debug().Err(err).Str("mode", a.mode).Msg("token validation failed")
			unauthorized(w, "Invalid or expired access token.")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), *user)))
	})
}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user models.CurrentUser) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (models.CurrentUser, bool) {
	user, ok := ctx.Value(userContextKey).(models.CurrentUser)
	return user, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	resp := models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: "UNAUTHORIZED", Message: message},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("failed to write unauthorized response")
	}
}
