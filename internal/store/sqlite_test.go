// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chatrelay/chatrelay/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chatrelay.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, models.CreateConversationRequest{
		Title:   "Server audit",
		Message: "Run a compliance audit on prod",
	})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if conv.ID == "" || conv.Title != "Server audit" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Role != models.RoleUser {
		t.Fatalf("expected seed user message, got %+v", conv.Messages)
	}

	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Title != "Server audit" || len(got.Messages) != 1 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Messages[0].Content != "Run a compliance audit on prod" {
		t.Errorf("unexpected message content: %q", got.Messages[0].Content)
	}
}

func TestCreateConversationTitleFromMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	long := strings.Repeat("x", 80)
	conv, err := s.CreateConversation(ctx, models.CreateConversationRequest{Message: long})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if len([]rune(conv.Title)) != 63 || !strings.HasSuffix(conv.Title, "...") {
		t.Errorf("expected title truncated to 60 chars plus ellipsis, got %q (%d)", conv.Title, len(conv.Title))
	}

	empty, err := s.CreateConversation(ctx, models.CreateConversationRequest{})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if empty.Title != "New Conversation" {
		t.Errorf("expected default title, got %q", empty.Title)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetConversation(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveMessageTouchesConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, models.CreateConversationRequest{Title: "t"})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	msg, err := s.SaveMessage(ctx, conv.ID, models.SaveMessageRequest{
		Role: models.RoleAssistant, Content: "done", AgentID: "cmdb-agent",
	})
	if err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	if msg.AgentID != "cmdb-agent" {
		t.Errorf("agent id not persisted: %+v", msg)
	}

	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got.Messages))
	}
	if got.UpdatedAt < msg.CreatedAt {
		t.Error("updated_at was not touched by SaveMessage")
	}

	if _, err := s.SaveMessage(ctx, "missing", models.SaveMessageRequest{
		Role: models.RoleUser, Content: "x",
	}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown conversation, got %v", err)
	}
}

func TestListConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, _ := s.CreateConversation(ctx, models.CreateConversationRequest{Title: "first"})
	second, _ := s.CreateConversation(ctx, models.CreateConversationRequest{Title: "second"})

	// Touch the first so it becomes the most recent.
	if _, err := s.SaveMessage(ctx, first.ID, models.SaveMessageRequest{
		Role: models.RoleUser, Content: strings.Repeat("y", 150),
	}); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	summaries, err := s.ListConversations(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].ID != first.ID {
		t.Errorf("expected most recently updated first, got %v", summaries[0].ID)
	}
	if summaries[0].MessageCount != 1 {
		t.Errorf("expected message_count 1, got %d", summaries[0].MessageCount)
	}
	if !strings.HasSuffix(summaries[0].LastMessagePreview, "...") || len([]rune(summaries[0].LastMessagePreview)) != 103 {
		t.Errorf("expected preview truncated to 100 chars plus ellipsis, got %d chars", len(summaries[0].LastMessagePreview))
	}
	if summaries[1].ID != second.ID || summaries[1].MessageCount != 0 {
		t.Errorf("unexpected second summary: %+v", summaries[1])
	}
}

func TestDeleteConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, _ := s.CreateConversation(ctx, models.CreateConversationRequest{Title: "t", Message: "m"})
	if err := s.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	if _, err := s.GetConversation(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	messages, err := s.GetMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("messages survived conversation delete: %d", len(messages))
	}

	if err := s.DeleteConversation(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for double delete, got %v", err)
	}
}

func TestSearchConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	byTitle, _ := s.CreateConversation(ctx, models.CreateConversationRequest{Title: "Network discovery plan"})
	byContent, _ := s.CreateConversation(ctx, models.CreateConversationRequest{Title: "other"})
	if _, err := s.SaveMessage(ctx, byContent.ID, models.SaveMessageRequest{
		Role: models.RoleUser, Content: "start the discovery scan",
	}); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	_, _ = s.CreateConversation(ctx, models.CreateConversationRequest{Title: "unrelated"})

	results, err := s.SearchConversations(ctx, "discovery", 10)
	if err != nil {
		t.Fatalf("SearchConversations failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	found := map[string]bool{}
	for _, r := range results {
		found[r.ID] = true
	}
	if !found[byTitle.ID] || !found[byContent.ID] {
		t.Errorf("expected title and content matches, got %v", found)
	}
}

func TestSearchEscapesLikeWildcards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _ = s.CreateConversation(ctx, models.CreateConversationRequest{Title: "literal % percent"})
	_, _ = s.CreateConversation(ctx, models.CreateConversationRequest{Title: "no wildcard here"})

	results, err := s.SearchConversations(ctx, "%", 10)
	if err != nil {
		t.Fatalf("SearchConversations failed: %v", err)
	}
	if len(results) != 1 || results[0].Title != "literal % percent" {
		t.Errorf("wildcard was not escaped: %+v", results)
	}
}

func TestConversationContextRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, _ := s.CreateConversation(ctx, models.CreateConversationRequest{Title: "t"})

	initial, err := s.GetConversationContext(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversationContext failed: %v", err)
	}
	if len(initial) != 0 {
		t.Errorf("expected empty context, got %v", initial)
	}

	want := map[string]interface{}{"last_agent_id": "discovery", "environment": "production"}
	if err := s.SetConversationContext(ctx, conv.ID, want); err != nil {
		t.Fatalf("SetConversationContext failed: %v", err)
	}
	got, err := s.GetConversationContext(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversationContext failed: %v", err)
	}
	if got["last_agent_id"] != "discovery" || got["environment"] != "production" {
		t.Errorf("context round trip mismatch: %v", got)
	}

	if err := s.SetConversationContext(ctx, "missing", want); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
