// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package websocket

import (
	"golang.org/x/time/rate"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/metrics"
	"github.com/chatrelay/chatrelay/internal/models"
	"github.com/chatrelay/chatrelay/internal/validation"
)

// Session runs the receive loop for one client connection. Malformed
// frames produce inline error frames on the same connection; only
// transport failures end the session.
type Session struct {
	registry *Registry
	clientID string
	conn     *websocket.Conn
	wrapped  Conn
	limiter  *rate.Limiter
	maxSize  int64
}

// NewSession registers conn under clientID and prepares the receive
// loop. The previous connection under the same ID, if any, is replaced.
func NewSession(registry *Registry, clientID string, conn *websocket.Conn, cfg config.WebSocketConfig) *Session {
	wrapped := NewGorillaConn(conn, cfg.WriteWait)
	registry.Connect(clientID, wrapped)
	return &Session{
		registry: registry,
		clientID: clientID,
		conn:     conn,
		wrapped:  wrapped,
		limiter:  rate.NewLimiter(rate.Limit(cfg.FrameRateLimit), cfg.FrameRateBurst),
		maxSize:  cfg.MaxMessageSize,
	}
}

// Run reads frames until the connection drops, relaying chat and status
// frames to every connected client. Blocks; call from the upgrade
// handler's goroutine. The connection is always deregistered on return.
func (s *Session) Run() {
	defer s.registry.Disconnect(s.clientID, s.wrapped)

	// Immediate heartbeat so the client learns the connection is live
	// without waiting for the broadcast ticker.
	if !s.registry.SendPersonal(models.NewWSHeartbeat(nowRFC3339()), s.clientID) {
		return
	}

	if s.maxSize > 0 {
		s.conn.SetReadLimit(s.maxSize)
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("client_id", s.clientID).Msg("websocket closed unexpectedly")
			}
			return
		}

		// Frames over the rate limit are dropped silently; the
		// connection stays open.
		if !s.limiter.Allow() {
			logging.Warn().Str("client_id", s.clientID).Msg("websocket frame rate limit exceeded, dropping frame")
			continue
		}

		s.handleFrame(data)
	}
}

func (s *Session) handleFrame(data []byte) {
	var env models.WebSocketEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.registry.SendPersonal(models.NewWSError(models.WSErrInvalidJSON, "Frame is not valid JSON"), s.clientID)
		return
	}
	if verr := validation.ValidateStruct(&env); verr != nil {
		s.registry.SendPersonal(models.NewWSError(models.WSErrInvalidSchema, verr.Error()), s.clientID)
		return
	}

	metrics.WebSocketMessagesReceived.WithLabelValues(env.Type).Inc()

	switch env.Type {
	case models.WSTypeHeartbeat:
		s.registry.SendPersonal(models.NewWSHeartbeat(nowRFC3339()), s.clientID)

	case models.WSTypeChat:
		sent := s.registry.Broadcast(models.WSOutbound{
			Type:          models.WSTypeChat,
			Payload:       env.Payload,
			CorrelationID: env.CorrelationID,
		})
		logging.Debug().
			Str("client_id", s.clientID).
			Str("correlation_id", env.CorrelationID).
			Int("delivered", sent).
			Msg("relayed chat frame")

	case models.WSTypeStatus:
		s.registry.Broadcast(models.WSOutbound{
			Type:    models.WSTypeStatus,
			Payload: env.Payload,
		})

	default:
		// error frames from clients are accepted and ignored
		logging.Debug().Str("client_id", s.clientID).Str("type", env.Type).Msg("ignoring websocket frame")
	}
}
