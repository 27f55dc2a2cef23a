// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package models

import (
	"time"
)

// ChatRequest is an incoming synchronous chat message from the client.
// AgentTarget routes to a specific agent ("discovery", "asset", "auditor",
// "documentator") or leaves routing to the orchestrator when empty.
type ChatRequest struct {
	Content        string `json:"content" validate:"required,min=1,max=10000"`
	ConversationID string `json:"conversation_id,omitempty"`
	AgentTarget    string `json:"agent_target,omitempty" validate:"omitempty,oneof=discovery asset auditor documentator cmdb-agent csa-agent"`
}

// ChatResponse is returned after processing a synchronous chat message.
type ChatResponse struct {
	MessageID      string                 `json:"message_id"`
	ConversationID string                 `json:"conversation_id"`
	Content        string                 `json:"content"`
	AgentID        string                 `json:"agent_id"`
	AgentName      string                 `json:"agent_name"`
	ResponseTimeMS int64                  `json:"response_time_ms"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// StreamChatRequest is the payload for POST /api/v1/chat/stream.
type StreamChatRequest struct {
	Content        string `json:"content" validate:"required,min=1,max=50000"`
	ConversationID string `json:"conversation_id" validate:"required,min=1"`
	AgentTarget    string `json:"agent_target,omitempty"`
}

// ClarifyRequest is the payload for POST /api/v1/chat/clarify. It resolves
// a pending clarification issued via an earlier clarification SSE event.
type ClarifyRequest struct {
	PendingMessageToken string `json:"pending_message_token" validate:"required"`
	ClarificationAnswer string `json:"clarification_answer" validate:"required"`
	ConversationID      string `json:"conversation_id" validate:"required"`
}

// OrchestratorRequest is the payload sent to the orchestrator's chat API:
// message, target_agent, domain, context, session_id.
type OrchestratorRequest struct {
	Message     string                 `json:"message"`
	TargetAgent string                 `json:"target_agent,omitempty"`
	Domain      string                 `json:"domain,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	SessionID   string                 `json:"session_id,omitempty"`
}

// OrchestratorClarifyRequest is the payload for the orchestrator's
// clarification-resolution endpoint.
type OrchestratorClarifyRequest struct {
	PendingMessageToken string `json:"pending_message_token"`
	ClarificationAnswer string `json:"clarification_answer"`
	SessionID           string `json:"session_id"`
}

// OrchestratorResponse is the response structure from the orchestrator.
//
// Normal replies carry {message_id, status, agent_id, agent_name, domain,
// response: {result: {...}}, routing_method, timestamp, session_id}.
// Clarification replies instead set ResponseType to "clarification" with
// the question, options and a pending message token.
type OrchestratorResponse struct {
	MessageID     string                 `json:"message_id"`
	Status        string                 `json:"status"`
	AgentID       string                 `json:"agent_id"`
	AgentName     string                 `json:"agent_name"`
	Domain        string                 `json:"domain"`
	Response      map[string]interface{} `json:"response"`
	RoutingMethod string                 `json:"routing_method"`
	Timestamp     string                 `json:"timestamp"`
	SessionID     string                 `json:"session_id"`

	// Clarification fields (present when ResponseType == "clarification").
	ResponseType        string   `json:"response_type,omitempty"`
	Question            string   `json:"question,omitempty"`
	Options             []string `json:"options,omitempty"`
	PendingMessageToken string   `json:"pending_message_token,omitempty"`
}

// IsClarification reports whether the orchestrator is asking the user to
// disambiguate before producing a final answer.
func (r *OrchestratorResponse) IsClarification() bool {
	return r.ResponseType == "clarification"
}

// Result returns the nested response.result map, or nil.
func (r *OrchestratorResponse) Result() map[string]interface{} {
	if r.Response == nil {
		return nil
	}
	result, ok := r.Response["result"].(map[string]interface{})
	if !ok {
		return nil
	}
	return result
}

// ResponseMetadata extracts routing metadata from the nested response.
func (r *OrchestratorResponse) ResponseMetadata() map[string]interface{} {
	md := map[string]interface{}{
		"routing_method": r.RoutingMethod,
		"domain":         r.Domain,
	}
	if result := r.Result(); result != nil {
		md["tool_used"] = result["tool_used"]
		md["source"] = result["source"]
	}
	return md
}
