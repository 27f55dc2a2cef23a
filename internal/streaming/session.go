// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

// Package streaming implements the SSE state machine: one user turn is
// turned into a strictly ordered sequence of stream events.
//
// Sequencing invariant: exactly one stream_start first, then either token
// events or a single clarification, then exactly one terminal event
// (stream_end or error). Once an error event is emitted nothing follows.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/internal/history"
	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/metrics"
	"github.com/chatrelay/chatrelay/internal/models"
	"github.com/chatrelay/chatrelay/internal/orchestrator"
)

// Emitter receives stream envelopes in order. Serialization to the SSE
// wire format happens in the transport layer, not here. An emit error
// means the client is gone; the session stops without further events.
type Emitter func(models.StreamEnvelope) error

// Upstream is the orchestrator surface the session needs.
// *orchestrator.Gateway implements it.
type Upstream interface {
	SendMessage(ctx context.Context, req *models.OrchestratorRequest) (*models.OrchestratorResponse, time.Duration, error)
	Clarify(ctx context.Context, req *models.OrchestratorClarifyRequest) (*models.OrchestratorResponse, time.Duration, error)
}

// Session drives SSE interactions against the orchestrator while keeping
// the conversation history cache and the session-agent map up to date.
// Safe for concurrent use; each Stream call is an independent turn.
type Session struct {
	upstream Upstream
	cache    *history.Cache
	agents   *history.SessionAgents
}

// NewSession creates a streaming session over the given collaborators.
func NewSession(upstream Upstream, cache *history.Cache, agents *history.SessionAgents) *Session {
	return &Session{upstream: upstream, cache: cache, agents: agents}
}

// Stream runs one user turn: stream_start, a call to the orchestrator,
// then token/clarification and stream_end, or a terminal error event.
func (s *Session) Stream(ctx context.Context, req models.StreamChatRequest, emit Emitter) error {
	start := time.Now()
	messageID := uuid.NewString()
	agentID := req.AgentTarget
	if agentID == "" {
		agentID = "orchestrator"
	}

	logging.Info().
		Str("conversation_id", req.ConversationID).
		Str("agent", agentID).
		Int("content_length", len(req.Content)).
		Msg("streaming chat request")

	if err := emit(models.NewStreamStart(messageID, agentID, req.ConversationID, now())); err != nil {
		return err
	}

	orchReq := &models.OrchestratorRequest{
		Message:     req.Content,
		TargetAgent: req.AgentTarget,
		SessionID:   req.ConversationID,
		Context:     map[string]interface{}{},
	}
	if last := s.agents.Get(req.ConversationID); last != "" {
		orchReq.Context["last_agent_id"] = last
	}

	resp, _, err := s.upstream.SendMessage(ctx, orchReq)
	if err != nil {
		metrics.RecordStream("error", time.Since(start))
		return emit(upstreamErrorEnvelope(err))
	}

	if resp.IsClarification() {
		if err := emit(models.StreamEnvelope{
			Event: models.EventClarification,
			Data: models.ClarificationData{
				MessageID:           messageID,
				Question:            resp.Question,
				Options:             resp.Options,
				PendingMessageToken: resp.PendingMessageToken,
			},
		}); err != nil {
			return err
		}
		metrics.RecordStream("clarification", time.Since(start))
		// Clarification is not a final answer: stream_end carries empty
		// content and the client re-submits via the clarify path.
		return emit(models.NewStreamEnd(messageID, "", agentID, resp.AgentName, req.ConversationID, now()))
	}

	content := orchestrator.ExtractContent(resp)
	actualAgentID := resp.AgentID
	if actualAgentID == "" {
		actualAgentID = agentID
	}
	actualAgentName := resp.AgentName
	if actualAgentName == "" {
		actualAgentName = "Agent"
	}

	if actualAgentID != "orchestrator" {
		s.agents.Set(req.ConversationID, actualAgentID)
	}
	s.cache.Add(req.ConversationID, history.Turn{Role: models.RoleUser, Content: req.Content})
	s.cache.Add(req.ConversationID, history.Turn{Role: models.RoleAssistant, Content: content, AgentID: actualAgentID})

	if content != "" {
		if err := emit(models.NewToken(content, messageID)); err != nil {
			return err
		}
	}

	metrics.RecordStream("completed", time.Since(start))
	logging.Info().
		Str("message_id", messageID).
		Str("conversation_id", req.ConversationID).
		Str("agent_id", actualAgentID).
		Int("length", len(content)).
		Msg("chat stream completed")

	return emit(models.NewStreamEnd(messageID, content, actualAgentID, actualAgentName, req.ConversationID, now()))
}

// Clarify resolves a pending clarification. A successful upstream reply is
// rendered as stream_start, token, stream_end (never another
// clarification); an upstream failure yields a single error event.
func (s *Session) Clarify(ctx context.Context, req models.ClarifyRequest, emit Emitter) error {
	start := time.Now()

	logging.Info().
		Str("conversation_id", req.ConversationID).
		Str("token", req.PendingMessageToken).
		Msg("clarification request")

	resp, _, err := s.upstream.Clarify(ctx, &models.OrchestratorClarifyRequest{
		PendingMessageToken: req.PendingMessageToken,
		ClarificationAnswer: req.ClarificationAnswer,
		SessionID:           req.ConversationID,
	})
	if err != nil {
		metrics.RecordStream("error", time.Since(start))
		return emit(clarifyErrorEnvelope(err))
	}

	messageID := uuid.NewString()
	agentID := resp.AgentID
	if agentID == "" {
		agentID = "orchestrator"
	}
	agentName := resp.AgentName
	if agentName == "" {
		agentName = "Agent"
	}

	if err := emit(models.NewStreamStart(messageID, agentID, req.ConversationID, now())); err != nil {
		return err
	}

	content := orchestrator.ExtractContent(resp)
	if content != "" {
		if err := emit(models.NewToken(content, messageID)); err != nil {
			return err
		}
	}
	s.cache.Add(req.ConversationID, history.Turn{Role: models.RoleUser, Content: req.ClarificationAnswer})
	s.cache.Add(req.ConversationID, history.Turn{Role: models.RoleAssistant, Content: content, AgentID: agentID})

	metrics.RecordStream("completed", time.Since(start))
	return emit(models.NewStreamEnd(messageID, content, agentID, agentName, req.ConversationID, now()))
}

// upstreamErrorEnvelope maps a gateway error to the stable SSE error
// codes clients branch on.
func upstreamErrorEnvelope(err error) models.StreamEnvelope {
	switch {
	case orchestrator.IsUnreachable(err):
		return models.NewStreamError(models.ErrCodeOrchestratorUnreachable,
			"Cannot connect to the orchestrator. Ensure the orchestrator service is running.")
	case orchestrator.IsTimeout(err):
		return models.NewStreamError(models.ErrCodeOrchestratorTimeout,
			"The orchestrator took too long to respond. Please try again.")
	case orchestrator.IsHTTP(err):
		var oe *orchestrator.Error
		status := 0
		if errors.As(err, &oe) {
			status = oe.StatusCode
		}
		return models.NewStreamError(models.ErrCodeOrchestratorError,
			fmt.Sprintf("Orchestrator returned HTTP %d. The service may be temporarily unavailable.", status))
	case orchestrator.IsParse(err):
		return models.NewStreamError(models.ErrCodeOrchestratorParseError,
			"Failed to parse orchestrator response.")
	default:
		logging.Err(err).Msg("unexpected error during chat stream")
		return models.NewStreamError(models.ErrCodeStreamInternalError,
			"An unexpected error occurred.")
	}
}

// clarifyErrorEnvelope maps gateway errors on the clarify path.
func clarifyErrorEnvelope(err error) models.StreamEnvelope {
	switch {
	case orchestrator.IsUnreachable(err):
		return models.NewStreamError(models.ErrCodeOrchestratorUnreachable,
			"Cannot connect to the orchestrator.")
	case orchestrator.IsHTTP(err):
		var oe *orchestrator.Error
		status := 0
		if errors.As(err, &oe) {
			status = oe.StatusCode
		}
		return models.NewStreamError(models.ErrCodeClarificationFailed,
			fmt.Sprintf("Orchestrator returned HTTP %d", status))
	default:
		logging.Err(err).Msg("unexpected error during clarification")
		return models.NewStreamError(models.ErrCodeClarifyInternalError,
			"An unexpected error occurred.")
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
