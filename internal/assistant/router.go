// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

// Package assistant is the AI-routed variant of the streaming pipeline.
// A tool-selection round against an OpenAI-compatible API decides which
// agents to dispatch to; results are interpreted by a second completion
// whose text becomes the streamed content.
//
// The router degrades to the baseline pipeline when no credential is
// configured, when the caller pinned an explicit agent target, or when
// the model API reports rate limiting or a generic error mid-stream.
// Authentication failures surface an error event instead, since the
// fallback cannot succeed either without working credentials.
package assistant

import (
	"context"
	"errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/history"
	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/metrics"
	"github.com/chatrelay/chatrelay/internal/models"
	"github.com/chatrelay/chatrelay/internal/orchestrator"
	"github.com/chatrelay/chatrelay/internal/streaming"
)

// assistantAgentID identifies the AI-routed path in stream events.
const (
	assistantAgentID   = "assistant"
	assistantAgentName = "ChatRelay Assistant"
)

// completionAPI is the slice of the OpenAI client the router uses.
// Extracted so tests can script model behavior.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Router streams AI-routed chat turns, falling back to the baseline
// streaming session when it cannot or should not run.
type Router struct {
	cfg      config.AssistantConfig
	client   completionAPI
	baseline *streaming.Session
	upstream streaming.Upstream
	cache    *history.Cache
}

// NewRouter creates a Router. With an empty API key every Stream call
// delegates straight to the baseline session.
func NewRouter(cfg config.AssistantConfig, baseline *streaming.Session, upstream streaming.Upstream, cache *history.Cache) *Router {
	r := &Router{cfg: cfg, baseline: baseline, upstream: upstream, cache: cache}
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		r.client = openai.NewClientWithConfig(clientCfg)
	}
	return r
}

// Stream runs one AI-routed turn. Exactly one stream_start/stream_end
// pair reaches the client regardless of internal fallback.
func (r *Router) Stream(ctx context.Context, req models.StreamChatRequest, emit streaming.Emitter) error {
	// Degrade before any emission: baseline replays from the start.
	if r.client == nil || req.AgentTarget != "" {
		return r.baseline.Stream(ctx, req, emit)
	}

	start := time.Now()
	messageID := uuid.NewString()
	started := false

	guard := func(env models.StreamEnvelope) error {
		if env.Event == models.EventStreamStart {
			if started {
				return nil
			}
			started = true
		}
		return emit(env)
	}

	err := r.streamWithModel(ctx, req, messageID, start, guard)
	if err == nil {
		return nil
	}

	var fallback *fallbackError
	if errors.As(err, &fallback) {
		logging.Warn().Err(fallback.cause).
			Str("conversation_id", req.ConversationID).
			Msg("model API error, falling back to direct dispatch")
		// The guard suppresses a duplicate stream_start if one was
		// already emitted before the failure.
		return r.baseline.Stream(ctx, req, guard)
	}
	return err
}

// fallbackError wraps model API errors that should trigger the baseline
// path rather than a user-facing error event.
type fallbackError struct{ cause error }

func (e *fallbackError) Error() string { return e.cause.Error() }

func (r *Router) streamWithModel(ctx context.Context, req models.StreamChatRequest, messageID string, start time.Time, emit streaming.Emitter) error {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	if err := emit(models.NewStreamStart(messageID, assistantAgentID, req.ConversationID, nowRFC3339())); err != nil {
		return err
	}

	// The user turn is cached only on success so a fallback run does not
	// see it twice.
	messages := r.buildMessages(req.ConversationID)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Content,
	})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		return r.classifyModelError(err, emit, start)
	}
	if len(resp.Choices) == 0 {
		return r.classifyModelError(errors.New("model returned no choices"), emit, start)
	}

	choice := resp.Choices[0].Message
	fullContent := choice.Content

	if len(choice.ToolCalls) > 0 {
		messages = append(messages, choice)

		for _, call := range choice.ToolCalls {
			result := r.executeTool(ctx, call, req)
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    result,
			})
		}

		second, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       r.cfg.Model,
			Messages:    messages,
			Tools:       tools,
			MaxTokens:   r.cfg.MaxTokens,
			Temperature: r.cfg.Temperature,
		})
		if err != nil {
			return r.classifyModelError(err, emit, start)
		}
		if len(second.Choices) > 0 {
			fullContent = second.Choices[0].Message.Content
		}
	}

	if fullContent != "" {
		if err := emit(models.NewToken(fullContent, messageID)); err != nil {
			return err
		}
		r.cache.Add(req.ConversationID, history.Turn{Role: models.RoleUser, Content: req.Content})
		r.cache.Add(req.ConversationID, history.Turn{Role: models.RoleAssistant, Content: fullContent, AgentID: assistantAgentID})
	}

	metrics.RecordStream("completed", time.Since(start))
	return emit(models.NewStreamEnd(messageID, fullContent, assistantAgentID, assistantAgentName, req.ConversationID, nowRFC3339()))
}

// buildMessages turns cached history (user turn already appended) into
// the completion message list.
func (r *Router) buildMessages(conversationID string) []openai.ChatCompletionMessage {
	turns := r.cache.Get(conversationID)
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, turn := range turns {
		role := openai.ChatMessageRoleUser
		if turn.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	return messages
}

// executeTool dispatches one tool call through the gateway with the
// target agent pinned. Failures come back as text for the model to
// explain; they never abort the turn.
func (r *Router) executeTool(ctx context.Context, call openai.ToolCall, req models.StreamChatRequest) string {
	targetAgent, ok := toolToAgent[call.Function.Name]
	if !ok {
		return "Unknown tool: " + call.Function.Name
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		logging.Warn().Err(err).Str("tool", call.Function.Name).Msg("malformed tool arguments from model")
		args = map[string]interface{}{"query": req.Content}
	}

	query, _ := args["query"].(string)
	if query == "" {
		query = req.Content
	}
	toolContext := make(map[string]interface{}, len(args))
	for k, v := range args {
		if k != "query" {
			toolContext[k] = v
		}
	}

	logging.Info().
		Str("tool", call.Function.Name).
		Str("target_agent", targetAgent).
		Str("conversation_id", req.ConversationID).
		Msg("assistant tool call")

	orchReq := &models.OrchestratorRequest{
		Message:     query,
		TargetAgent: targetAgent,
		SessionID:   req.ConversationID,
	}
	if len(toolContext) > 0 {
		orchReq.Context = toolContext
	}

	resp, _, err := r.upstream.SendMessage(ctx, orchReq)
	if err != nil {
		switch {
		case orchestrator.IsUnreachable(err):
			return "Error: Cannot connect to the orchestrator. The orchestrator service may not be running."
		case orchestrator.IsTimeout(err):
			return "Error: The orchestrator took too long to respond. Please try again."
		default:
			return "Error: The " + targetAgent + " agent could not process the request: " + err.Error()
		}
	}
	return orchestrator.ExtractContent(resp)
}

// classifyModelError decides between surfacing an error event (auth) and
// requesting fallback (rate limit, generic failure).
func (r *Router) classifyModelError(err error, emit streaming.Emitter, start time.Time) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden) {
		logging.Error().Err(err).Msg("model API authentication failed")
		metrics.RecordStream("error", time.Since(start))
		return emit(models.NewStreamError(models.ErrCodeAssistantAuthError,
			"AI assistant authentication failed. Please check the API key configuration."))
	}
	return &fallbackError{cause: err}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
