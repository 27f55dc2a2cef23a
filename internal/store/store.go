// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

// Package store persists conversations and messages in SQLite. The
// in-memory history cache is the hot path for streaming; this store is
// the durable record behind the conversation management API.
package store

import (
	"context"
	"errors"

	"github.com/chatrelay/chatrelay/internal/models"
)

// ErrNotFound is returned when a conversation or message does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface for conversations.
type Store interface {
	CreateConversation(ctx context.Context, req models.CreateConversationRequest) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, limit, offset int) ([]models.ConversationSummary, error)
	DeleteConversation(ctx context.Context, id string) error
	SearchConversations(ctx context.Context, query string, limit int) ([]models.ConversationSummary, error)

	SaveMessage(ctx context.Context, conversationID string, req models.SaveMessageRequest) (*models.Message, error)
	GetMessages(ctx context.Context, conversationID string) ([]models.Message, error)

	GetConversationContext(ctx context.Context, id string) (map[string]interface{}, error)
	SetConversationContext(ctx context.Context, id string, context map[string]interface{}) error

	Close() error
}
