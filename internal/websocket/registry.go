// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

// Package websocket manages the real-time side channel: a registry of
// named client connections, a per-connection receive loop, and a
// periodic heartbeat broadcaster. Chat and status frames received from
// any client fan out to every connected client.
package websocket

import (
	"sort"
	"sync"
	"time"

	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/metrics"
	"github.com/chatrelay/chatrelay/internal/models"
)

// Conn is the write side of a client connection. *GorillaConn is the
// production implementation; tests substitute fakes.
type Conn interface {
	WriteMessage(data []byte) error
	Close() error
}

// Registry tracks active client connections by client ID. Client IDs
// are caller-chosen, and a reconnect under the same ID replaces the
// previous connection (last writer wins).
type Registry struct {
	mu    sync.Mutex
	conns map[string]Conn
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Connect registers a connection under clientID. If the ID is already
// taken the previous connection is closed best-effort and replaced.
func (r *Registry) Connect(clientID string, conn Conn) {
	r.mu.Lock()
	prev, replaced := r.conns[clientID]
	r.conns[clientID] = conn
	total := len(r.conns)
	r.mu.Unlock()

	if replaced {
		_ = prev.Close()
		logging.Warn().Str("client_id", clientID).Msg("replaced existing websocket connection")
	}
	metrics.WebSocketConnections.Set(float64(total))
	logging.Info().Str("client_id", clientID).Int("total_clients", total).Msg("websocket client connected")
}

// Disconnect removes clientID's connection if conn is still the one
// registered. Passing nil removes whatever is registered. Idempotent.
func (r *Registry) Disconnect(clientID string, conn Conn) {
	r.mu.Lock()
	current, ok := r.conns[clientID]
	if ok && (conn == nil || current == conn) {
		delete(r.conns, clientID)
	} else {
		ok = false
	}
	total := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return
	}
	_ = current.Close()
	metrics.WebSocketConnections.Set(float64(total))
	logging.Info().Str("client_id", clientID).Int("total_clients", total).Msg("websocket client disconnected")
}

// SendPersonal delivers one frame to a single client. On write failure
// the connection is dropped from the registry. Returns whether the
// frame was delivered.
func (r *Registry) SendPersonal(msg models.WSOutbound, clientID string) bool {
	data, err := marshalFrame(msg)
	if err != nil {
		return false
	}

	r.mu.Lock()
	conn, ok := r.conns[clientID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	if err := conn.WriteMessage(data); err != nil {
		metrics.WebSocketSendFailures.Inc()
		logging.Warn().Err(err).Str("client_id", clientID).Msg("websocket personal send failed")
		r.Disconnect(clientID, conn)
		return false
	}
	return true
}

// Broadcast delivers one frame to every connected client. Clients whose
// write fails are dropped. Returns the number of successful deliveries.
func (r *Registry) Broadcast(msg models.WSOutbound) int {
	data, err := marshalFrame(msg)
	if err != nil {
		logging.Error().Err(err).Str("type", msg.Type).Msg("failed to marshal broadcast frame")
		return 0
	}

	// Snapshot under lock, write outside it. A slow client must not
	// stall registration of new connections.
	type target struct {
		id   string
		conn Conn
	}
	r.mu.Lock()
	targets := make([]target, 0, len(r.conns))
	for id, conn := range r.conns {
		targets = append(targets, target{id: id, conn: conn})
	}
	r.mu.Unlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })

	sent := 0
	var failed []target
	for _, t := range targets {
		if err := t.conn.WriteMessage(data); err != nil {
			metrics.WebSocketSendFailures.Inc()
			logging.Warn().Err(err).Str("client_id", t.id).Msg("websocket broadcast send failed")
			failed = append(failed, t)
			continue
		}
		sent++
	}
	for _, t := range failed {
		r.Disconnect(t.id, t.conn)
	}

	metrics.WebSocketBroadcastsTotal.Inc()
	return sent
}

// SendHeartbeat broadcasts a heartbeat frame with the current UTC
// timestamp. Returns the number of clients reached.
func (r *Registry) SendHeartbeat() int {
	return r.Broadcast(models.NewWSHeartbeat(time.Now().UTC().Format(time.RFC3339)))
}

// ActiveConnectionIDs returns the sorted IDs of connected clients.
func (r *Registry) ActiveConnectionIDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// ConnectionCount returns the number of connected clients.
func (r *Registry) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
