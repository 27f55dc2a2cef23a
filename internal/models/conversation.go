// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package models

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation is a persisted conversation with its messages.
type Conversation struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	CreatedAt string                 `json:"created_at"`
	UpdatedAt string                 `json:"updated_at"`
	Metadata  map[string]interface{} `json:"metadata"`
	Messages  []Message              `json:"messages,omitempty"`
}

// ConversationSummary is a conversation list item carrying enough for a
// sidebar display without loading the full message history.
type ConversationSummary struct {
	ID                 string                 `json:"id"`
	Title              string                 `json:"title"`
	CreatedAt          string                 `json:"created_at"`
	UpdatedAt          string                 `json:"updated_at"`
	Metadata           map[string]interface{} `json:"metadata"`
	MessageCount       int                    `json:"message_count"`
	LastMessagePreview string                 `json:"last_message_preview,omitempty"`
}

// Message is a persisted chat message.
type Message struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Role           string                 `json:"role"`
	Content        string                 `json:"content"`
	CreatedAt      string                 `json:"created_at"`
	AgentID        string                 `json:"agent_id,omitempty"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// CreateConversationRequest is the payload for POST /api/v1/conversations.
type CreateConversationRequest struct {
	Title   string `json:"title,omitempty" validate:"max=200"`
	Message string `json:"message,omitempty" validate:"max=50000"`
}

// SaveMessageRequest is the payload for adding a message to a conversation.
type SaveMessageRequest struct {
	Role     string                 `json:"role" validate:"required,oneof=user assistant system"`
	Content  string                 `json:"content" validate:"required,min=1"`
	AgentID  string                 `json:"agent_id,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
