// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/internal/history"
	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/models"
	"github.com/chatrelay/chatrelay/internal/orchestrator"
)

// handleChat is the synchronous chat endpoint: one orchestrator round
// trip, one JSON response. Gateway failures become 502 envelopes
// attributed to the "system" agent.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	orchReq := &models.OrchestratorRequest{
		Message:     req.Content,
		TargetAgent: req.AgentTarget,
		SessionID:   conversationID,
	}
	if req.AgentTarget == "" {
		if lastAgent := h.agents.Get(conversationID); lastAgent != "" {
			orchReq.Context = map[string]interface{}{"last_agent_id": lastAgent}
		}
	}

	resp, elapsed, err := h.upstream.SendMessage(r.Context(), orchReq)
	if err != nil {
		logging.Warn().Err(err).Str("conversation_id", conversationID).Msg("synchronous chat dispatch failed")
		respondError(w, http.StatusBadGateway, chatErrorCode(err), err.Error(),
			map[string]interface{}{"agent_id": "system"})
		return
	}

	content := orchestrator.ExtractContent(resp)

	if resp.AgentID != "" && resp.AgentID != "orchestrator" {
		h.agents.Set(conversationID, resp.AgentID)
	}
	h.cache.Add(conversationID, history.Turn{Role: models.RoleUser, Content: req.Content})
	h.cache.Add(conversationID, history.Turn{Role: models.RoleAssistant, Content: content, AgentID: resp.AgentID})

	messageID := resp.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}
	respondJSON(w, http.StatusOK, models.ChatResponse{
		MessageID:      messageID,
		ConversationID: conversationID,
		Content:        content,
		AgentID:        resp.AgentID,
		AgentName:      resp.AgentName,
		ResponseTimeMS: elapsed.Milliseconds(),
		Timestamp:      time.Now().UTC(),
		Metadata:       resp.ResponseMetadata(),
	})
}

func chatErrorCode(err error) string {
	switch {
	case orchestrator.IsUnreachable(err):
		return models.ErrCodeOrchestratorUnreachable
	case orchestrator.IsTimeout(err):
		return models.ErrCodeOrchestratorTimeout
	case orchestrator.IsParse(err):
		return models.ErrCodeOrchestratorParseError
	default:
		return models.ErrCodeOrchestratorError
	}
}

// handleChatStream runs one streaming turn over SSE.
func (h *Handler) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req models.StreamChatRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeStreamInternalError,
			"Streaming is not supported on this connection", nil)
		return
	}

	if err := h.streamer.Stream(r.Context(), req, sse.Emit); err != nil {
		// The stream already carried its own error event where possible;
		// at this point the connection is the only failure left.
		logging.Debug().Err(err).Str("conversation_id", req.ConversationID).Msg("stream aborted")
	}
}

// handleChatClarify resolves a pending clarification over SSE.
func (h *Handler) handleChatClarify(w http.ResponseWriter, r *http.Request) {
	var req models.ClarifyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeClarifyInternalError,
			"Streaming is not supported on this connection", nil)
		return
	}

	if err := h.clarifier.Clarify(r.Context(), req, sse.Emit); err != nil {
		logging.Debug().Err(err).Str("conversation_id", req.ConversationID).Msg("clarify stream aborted")
	}
}
