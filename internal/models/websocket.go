// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package models

// WebSocket message types. The server never sends any other type.
const (
	WSTypeChat      = "chat"
	WSTypeStatus    = "status"
	WSTypeError     = "error"
	WSTypeHeartbeat = "heartbeat"
)

// Inline WebSocket error codes sent back on the same connection.
const (
	WSErrInvalidJSON   = "INVALID_JSON"
	WSErrInvalidSchema = "INVALID_SCHEMA"
)

// WebSocketEnvelope is the wire unit for all inbound WebSocket traffic:
// a JSON text frame {type, payload, correlation_id?}. Type determines how
// Payload is interpreted.
type WebSocketEnvelope struct {
	Type          string                 `json:"type" validate:"required,oneof=chat status error heartbeat"`
	Payload       map[string]interface{} `json:"payload" validate:"required"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}

// WSOutbound is the envelope for server-sent frames. Relayed chat frames
// carry the correlation id under the camelCase key the browser client
// expects.
type WSOutbound struct {
	Type          string                 `json:"type"`
	Payload       map[string]interface{} `json:"payload"`
	CorrelationID string                 `json:"correlationId,omitempty"`
}

// WSErrorPayload is the payload of an inline error frame.
type WSErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewWSHeartbeat builds a heartbeat frame with the given RFC 3339 timestamp.
func NewWSHeartbeat(timestamp string) WSOutbound {
	return WSOutbound{
		Type:    WSTypeHeartbeat,
		Payload: map[string]interface{}{"timestamp": timestamp},
	}
}

// NewWSError builds an inline error frame.
func NewWSError(code, message string) WSOutbound {
	return WSOutbound{
		Type: WSTypeError,
		Payload: map[string]interface{}{
			"code":    code,
			"message": message,
		},
	}
}
