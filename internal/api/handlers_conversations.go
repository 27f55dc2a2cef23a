// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/chatrelay/chatrelay/internal/artifacts"
	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/models"
	"github.com/chatrelay/chatrelay/internal/store"
)

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req models.CreateConversationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	conv, err := h.store.CreateConversation(r.Context(), req)
	if err != nil {
		logging.Error().Err(err).Msg("failed to create conversation")
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create conversation", nil)
		return
	}
	respondJSON(w, http.StatusCreated, conv)
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	summaries, err := h.store.ListConversations(r.Context(), limit, offset)
	if err != nil {
		logging.Error().Err(err).Msg("failed to list conversations")
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list conversations", nil)
		return
	}
	respondJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleSearchConversations(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Query parameter q is required", nil)
		return
	}

	results, err := h.store.SearchConversations(r.Context(), query, queryInt(r, "limit", 50))
	if err != nil {
		logging.Error().Err(err).Str("query", query).Msg("conversation search failed")
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Search failed", nil)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.loadConversation(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.store.DeleteConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found", nil)
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("conversation_id", id).Msg("failed to delete conversation")
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete conversation", nil)
		return
	}
	// The in-memory history for the conversation goes with it.
	h.cache.Remove(id)
	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

func (h *Handler) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetConversationContext(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found", nil)
		return
	}

	messages, err := h.store.GetMessages(r.Context(), id)
	if err != nil {
		logging.Error().Err(err).Str("conversation_id", id).Msg("failed to load messages")
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load messages", nil)
		return
	}
	respondJSON(w, http.StatusOK, messages)
}

// handleSaveMessage appends a message. Assistant messages are scanned
// for structured artifacts, which are stored in the message metadata.
func (h *Handler) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.SaveMessageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if req.Role == models.RoleAssistant {
		if detected := artifacts.Detect(req.Content); len(detected) > 0 {
			if req.Metadata == nil {
				req.Metadata = map[string]interface{}{}
			}
			req.Metadata["artifacts"] = detected
		}
	}

	msg, err := h.store.SaveMessage(r.Context(), id, req)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found", nil)
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("conversation_id", id).Msg("failed to save message")
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to save message", nil)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleGetContext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, err := h.store.GetConversationContext(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load context", nil)
		return
	}
	respondJSON(w, http.StatusOK, ctx)
}

func (h *Handler) handleSetContext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Request body is not valid JSON", nil)
		return
	}

	err := h.store.SetConversationContext(r.Context(), id, body)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to save context", nil)
		return
	}
	respondJSON(w, http.StatusOK, body)
}

// handleExportConversation renders a conversation as json, text, or
// markdown, as a download.
func (h *Handler) handleExportConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.loadConversation(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	switch format {
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", exportDisposition(conv.ID, "json"))
		if err := json.NewEncoder(w).Encode(conv); err != nil {
			logging.Error().Err(err).Msg("failed to encode conversation export")
		}
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", exportDisposition(conv.ID, "txt"))
		_, _ = w.Write([]byte(renderText(conv)))
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", exportDisposition(conv.ID, "md"))
		_, _ = w.Write([]byte(renderMarkdown(conv)))
	default:
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"format must be one of: json, text, markdown", nil)
	}
}

func (h *Handler) loadConversation(w http.ResponseWriter, r *http.Request) (*models.Conversation, bool) {
	id := chi.URLParam(r, "id")
	conv, err := h.store.GetConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found", nil)
		return nil, false
	}
	if err != nil {
		logging.Error().Err(err).Str("conversation_id", id).Msg("failed to load conversation")
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load conversation", nil)
		return nil, false
	}
	return conv, true
}

func renderText(conv *models.Conversation) string {
	var b strings.Builder
	b.WriteString(conv.Title + "\n")
	b.WriteString(strings.Repeat("=", len(conv.Title)) + "\n\n")
	for _, msg := range conv.Messages {
		label := msg.Role
		if msg.AgentID != "" {
			label = fmt.Sprintf("%s (%s)", msg.Role, msg.AgentID)
		}
		fmt.Fprintf(&b, "[%s] %s\n%s\n\n", label, msg.CreatedAt, msg.Content)
	}
	return b.String()
}

func renderMarkdown(conv *models.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", conv.Title)
	for _, msg := range conv.Messages {
		switch msg.Role {
		case models.RoleUser:
			b.WriteString("**User:**\n\n")
		case models.RoleAssistant:
			if msg.AgentID != "" {
				fmt.Fprintf(&b, "**Assistant (%s):**\n\n", msg.AgentID)
			} else {
				b.WriteString("**Assistant:**\n\n")
			}
		default:
			fmt.Fprintf(&b, "**%s:**\n\n", msg.Role)
		}
		b.WriteString(msg.Content + "\n\n")
	}
	return b.String()
}

func exportDisposition(id, ext string) string {
	return fmt.Sprintf("attachment; filename=conversation-%s.%s", id, ext)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
