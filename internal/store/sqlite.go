// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/models"
)

const (
	titleMaxLen   = 60
	previewMaxLen = 100
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// ensures the schema exists. Parent directories are created.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL so API reads do not block streaming writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logging.Info().Str("path", path).Msg("sqlite store initialized")
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}'
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			agent_id TEXT,
			metadata TEXT NOT NULL DEFAULT '{}',
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_conversations_updated
			ON conversations(updated_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateConversation inserts a new conversation. When req.Message is
// set it is stored as the first user message and, absent an explicit
// title, seeds the title from its first characters.
func (s *SQLiteStore) CreateConversation(ctx context.Context, req models.CreateConversationRequest) (*models.Conversation, error) {
	now := nowRFC3339()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  map[string]interface{}{},
	}
	if conv.Title == "" {
		conv.Title = titleFromMessage(req.Message)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at, metadata) VALUES (?, ?, ?, ?, '{}')`,
		conv.ID, conv.Title, conv.CreatedAt, conv.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	if req.Message != "" {
		msg := models.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Role:           models.RoleUser,
			Content:        req.Message,
			CreatedAt:      now,
			Metadata:       map[string]interface{}{},
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, role, content, created_at, agent_id, metadata) VALUES (?, ?, ?, ?, ?, NULL, '{}')`,
			msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("inserting seed message: %w", err)
		}
		conv.Messages = []models.Message{msg}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing conversation: %w", err)
	}
	return conv, nil
}

// GetConversation returns a conversation with its messages in
// chronological order. Returns ErrNotFound for unknown IDs.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv := &models.Conversation{ID: id}
	var metadata string
	err := s.db.QueryRowContext(ctx,
		`SELECT title, created_at, updated_at, metadata FROM conversations WHERE id = ?`, id,
	).Scan(&conv.Title, &conv.CreatedAt, &conv.UpdatedAt, &metadata)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	conv.Metadata = parseMetadata(metadata)

	messages, err := s.GetMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = messages
	return conv, nil
}

// ListConversations returns summaries ordered by most recent activity.
func (s *SQLiteStore) ListConversations(ctx context.Context, limit, offset int) ([]models.ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at, c.updated_at, c.metadata,
			COUNT(m.id) AS message_count,
			COALESCE((SELECT content FROM messages
				WHERE conversation_id = c.id
				ORDER BY created_at DESC LIMIT 1), '') AS last_message
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.updated_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// DeleteConversation removes a conversation and its messages.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	// ON DELETE CASCADE covers messages, but older databases may have
	// been created before foreign keys were enforced.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	return nil
}

// SearchConversations matches query against conversation titles and
// message content, case-insensitively.
func (s *SQLiteStore) SearchConversations(ctx context.Context, query string, limit int) ([]models.ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at, c.updated_at, c.metadata,
			COUNT(m.id) AS message_count,
			COALESCE((SELECT content FROM messages
				WHERE conversation_id = c.id
				ORDER BY created_at DESC LIMIT 1), '') AS last_message
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.title LIKE ? ESCAPE '\'
			OR c.id IN (SELECT conversation_id FROM messages WHERE content LIKE ? ESCAPE '\')
		GROUP BY c.id
		ORDER BY c.updated_at DESC
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("searching conversations: %w", err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// SaveMessage appends a message and touches the conversation's
// updated_at. Returns ErrNotFound when the conversation does not exist.
func (s *SQLiteStore) SaveMessage(ctx context.Context, conversationID string, req models.SaveMessageRequest) (*models.Message, error) {
	now := nowRFC3339()
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           req.Role,
		Content:        req.Content,
		CreatedAt:      now,
		AgentID:        req.AgentID,
		Metadata:       req.Metadata,
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling message metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID)
	if err != nil {
		return nil, fmt.Errorf("touching conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking touch result: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	var agentID interface{}
	if msg.AgentID != "" {
		agentID = msg.AgentID
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at, agent_id, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt, agentID, string(metadataJSON),
	); err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}
	return msg, nil
}

// GetMessages returns a conversation's messages in chronological order.
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_at, COALESCE(agent_id, ''), metadata
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg := models.Message{ConversationID: conversationID}
		var metadata string
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.CreatedAt, &msg.AgentID, &metadata); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Metadata = parseMetadata(metadata)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// GetConversationContext returns the conversation's metadata map.
func (s *SQLiteStore) GetConversationContext(ctx context.Context, id string) (map[string]interface{}, error) {
	var metadata string
	err := s.db.QueryRowContext(ctx,
		`SELECT metadata FROM conversations WHERE id = ?`, id).Scan(&metadata)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation context: %w", err)
	}
	return parseMetadata(metadata), nil
}

// SetConversationContext replaces the conversation's metadata map.
func (s *SQLiteStore) SetConversationContext(ctx context.Context, id string, context map[string]interface{}) error {
	if context == nil {
		context = map[string]interface{}{}
	}
	data, err := json.Marshal(context)
	if err != nil {
		return fmt.Errorf("marshaling context: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET metadata = ?, updated_at = ? WHERE id = ?`,
		string(data), nowRFC3339(), id)
	if err != nil {
		return fmt.Errorf("updating conversation context: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSummaries(rows *sql.Rows) ([]models.ConversationSummary, error) {
	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		var metadata, lastMessage string
		if err := rows.Scan(&summary.ID, &summary.Title, &summary.CreatedAt, &summary.UpdatedAt,
			&metadata, &summary.MessageCount, &lastMessage); err != nil {
			return nil, fmt.Errorf("scanning conversation summary: %w", err)
		}
		summary.Metadata = parseMetadata(metadata)
		summary.LastMessagePreview = truncate(lastMessage, previewMaxLen)
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func parseMetadata(raw string) map[string]interface{} {
	metadata := map[string]interface{}{}
	if raw == "" {
		return metadata
	}
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		logging.Warn().Err(err).Msg("malformed metadata in database, ignoring")
		return map[string]interface{}{}
	}
	return metadata
}

func titleFromMessage(message string) string {
	if message == "" {
		return "New Conversation"
	}
	return truncate(strings.TrimSpace(message), titleMaxLen)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
