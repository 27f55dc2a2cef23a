// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package models

// SSE event kinds. Within one stream the sequence is strictly:
// exactly one stream_start first, then zero or more token events (or a
// single clarification), then exactly one terminal event (stream_end or
// error). After an error event nothing else is emitted.
const (
	EventStreamStart   = "stream_start"
	EventToken         = "token"
	EventClarification = "clarification"
	EventStreamEnd     = "stream_end"
	EventError         = "error"
)

// Stream error codes.
const (
	ErrCodeOrchestratorUnreachable = "ORCHESTRATOR_UNREACHABLE"
	ErrCodeOrchestratorTimeout     = "ORCHESTRATOR_TIMEOUT"
	ErrCodeOrchestratorError       = "ORCHESTRATOR_ERROR"
	ErrCodeOrchestratorParseError  = "ORCHESTRATOR_PARSE_ERROR"
	ErrCodeStreamInternalError     = "STREAM_INTERNAL_ERROR"
	ErrCodeClarificationFailed     = "CLARIFICATION_FAILED"
	ErrCodeClarifyInternalError    = "CLARIFY_INTERNAL_ERROR"
	ErrCodeAssistantAuthError      = "ASSISTANT_AUTH_ERROR"
	ErrCodeAssistantInternalError  = "ASSISTANT_INTERNAL_ERROR"
)

// StreamEnvelope is the wire unit for SSE. Each envelope is serialized as
// one `data: {json}\n\n` message on the text/event-stream response.
type StreamEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// StreamStartData is the payload of the stream_start event.
type StreamStartData struct {
	MessageID      string `json:"message_id"`
	AgentID        string `json:"agent_id"`
	ConversationID string `json:"conversation_id"`
	Timestamp      string `json:"timestamp"`
}

// TokenData is the payload of a token event, a single text chunk.
type TokenData struct {
	Token     string `json:"token"`
	MessageID string `json:"message_id"`
}

// ClarificationData is the payload of a clarification event. The client
// must resolve it via the clarify endpoint using PendingMessageToken.
type ClarificationData struct {
	MessageID           string   `json:"message_id"`
	Question            string   `json:"question"`
	Options             []string `json:"options"`
	PendingMessageToken string   `json:"pending_message_token"`
}

// StreamEndData is the payload of the stream_end event.
type StreamEndData struct {
	MessageID      string `json:"message_id"`
	FullContent    string `json:"full_content"`
	AgentID        string `json:"agent_id"`
	AgentName      string `json:"agent_name"`
	ConversationID string `json:"conversation_id"`
	Timestamp      string `json:"timestamp"`
}

// StreamErrorData is the payload of the error event.
type StreamErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewStreamStart builds a stream_start envelope.
func NewStreamStart(messageID, agentID, conversationID, timestamp string) StreamEnvelope {
	return StreamEnvelope{
		Event: EventStreamStart,
		Data: StreamStartData{
			MessageID:      messageID,
			AgentID:        agentID,
			ConversationID: conversationID,
			Timestamp:      timestamp,
		},
	}
}

// NewToken builds a token envelope.
func NewToken(token, messageID string) StreamEnvelope {
	return StreamEnvelope{
		Event: EventToken,
		Data:  TokenData{Token: token, MessageID: messageID},
	}
}

// NewStreamEnd builds a stream_end envelope.
func NewStreamEnd(messageID, fullContent, agentID, agentName, conversationID, timestamp string) StreamEnvelope {
	return StreamEnvelope{
		Event: EventStreamEnd,
		Data: StreamEndData{
			MessageID:      messageID,
			FullContent:    fullContent,
			AgentID:        agentID,
			AgentName:      agentName,
			ConversationID: conversationID,
			Timestamp:      timestamp,
		},
	}
}

// NewStreamError builds an error envelope.
func NewStreamError(code, message string) StreamEnvelope {
	return StreamEnvelope{
		Event: EventError,
		Data:  StreamErrorData{Code: code, Message: message},
	}
}
