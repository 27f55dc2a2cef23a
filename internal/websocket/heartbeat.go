// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package websocket

import (
	"context"
	"time"

	"github.com/chatrelay/chatrelay/internal/logging"
)

// Heartbeater broadcasts a heartbeat frame to all connected clients at
// a fixed interval. It implements suture.Service and runs under the
// supervision tree.
type Heartbeater struct {
	registry *Registry
	interval time.Duration
}

// NewHeartbeater creates a Heartbeater ticking every interval.
func NewHeartbeater(registry *Registry, interval time.Duration) *Heartbeater {
	return &Heartbeater{registry: registry, interval: interval}
}

// Serve ticks until the context is canceled.
func (h *Heartbeater) Serve(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logging.Info().Dur("interval", h.interval).Msg("websocket heartbeat broadcaster started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("websocket heartbeat broadcaster stopped")
			return ctx.Err()
		case <-ticker.C:
			sent := h.registry.SendHeartbeat()
			if sent > 0 {
				logging.Debug().Int("clients", sent).Msg("broadcast heartbeat")
			}
		}
	}
}

// String identifies the service in supervisor logs.
func (h *Heartbeater) String() string { return "websocket-heartbeat" }

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
