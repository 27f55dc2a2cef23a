// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

// Package history provides the bounded in-memory conversation cache that
// feeds multi-turn context to the orchestrator, plus the session-agent map
// used for routing continuity.
package history

import (
	"sync"

	"github.com/chatrelay/chatrelay/internal/metrics"
)

// Default capacity bounds.
const (
	DefaultMaxMessagesPerConversation = 20
	DefaultMaxConversations           = 500
)

// Turn is one message in a conversation's in-memory history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	AgentID string `json:"agent_id,omitempty"`
}

// entry is a node in the LRU ordering list. One entry per conversation.
type entry struct {
	conversationID string
	turns          []Turn
	prev           *entry
	next           *entry
}

// Cache is a thread-safe, bounded per-conversation message log with
// whole-conversation LRU eviction.
//
// Key properties:
//   - O(1) Add, Get and eviction
//   - At most maxConversations conversations; inserting beyond the cap
//     evicts the least-recently-touched conversation in its entirety
//   - At most maxMessages turns per conversation, trimmed from the front
//   - Both Add and Get move the conversation to most-recently-used
//
// A doubly-linked list with sentinel head/tail nodes keeps recency order;
// head.next is the most recently used, tail.prev the least.
type Cache struct {
	mu sync.Mutex

	maxMessages      int
	maxConversations int

	items map[string]*entry
	head  *entry
	tail  *entry
}

// NewCache creates a conversation cache. Non-positive caps fall back to
// the defaults.
func NewCache(maxMessages, maxConversations int) *Cache {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessagesPerConversation
	}
	if maxConversations <= 0 {
		maxConversations = DefaultMaxConversations
	}

	c := &Cache{
		maxMessages:      maxMessages,
		maxConversations: maxConversations,
		items:            make(map[string]*entry, maxConversations),
		head:             &entry{},
		tail:             &entry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Add appends a turn to the conversation's history, creating it if needed.
// The conversation becomes most-recently-used. If the cache is at capacity
// the least-recently-used conversation is dropped entirely; if the history
// exceeds the per-conversation cap it is trimmed to the newest turns.
func (c *Cache) Add(conversationID string, turn Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.items[conversationID]
	if exists {
		c.moveToFront(e)
	} else {
		for len(c.items) >= c.maxConversations {
			c.evictOldest()
		}
		e = &entry{conversationID: conversationID}
		c.addToFront(e)
		c.items[conversationID] = e
		metrics.HistoryConversations.Set(float64(len(c.items)))
	}

	e.turns = append(e.turns, turn)
	if len(e.turns) > c.maxMessages {
		trimmed := make([]Turn, c.maxMessages)
		copy(trimmed, e.turns[len(e.turns)-c.maxMessages:])
		e.turns = trimmed
	}
}

// Get returns a defensive copy of the conversation's turns in order, or an
// empty slice for an unknown id. A known id is marked most-recently-used.
func (c *Cache) Get(conversationID string) []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.items[conversationID]
	if !exists {
		return []Turn{}
	}
	c.moveToFront(e)

	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out
}

// Remove drops one conversation's history. No-op for unknown ids.
func (c *Cache) Remove(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.items[conversationID]
	if !exists {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(c.items, conversationID)
	metrics.HistoryConversations.Set(float64(len(c.items)))
}

// ConversationCount returns the number of tracked conversations.
func (c *Cache) ConversationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Reset drops all conversations. Used by tests.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*entry, c.maxConversations)
	c.head.next = c.tail
	c.tail.prev = c.head
	metrics.HistoryConversations.Set(0)
}

// addToFront inserts an entry right after the head sentinel.
func (c *Cache) addToFront(e *entry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

// moveToFront makes an existing entry most-recently-used.
func (c *Cache) moveToFront(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	c.addToFront(e)
}

// evictOldest removes the entry before the tail sentinel.
func (c *Cache) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	oldest.prev.next = c.tail
	c.tail.prev = oldest.prev
	delete(c.items, oldest.conversationID)
	metrics.HistoryEvictionsTotal.Inc()
}
