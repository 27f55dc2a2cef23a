// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package history

import (
	"sync"
)

// DefaultMaxSessionAgents bounds the session-agent map.
const DefaultMaxSessionAgents = 1000

// SessionAgents records the last agent that handled each conversation so
// follow-up turns can carry a routing hint. Bounded with drop-oldest
// eviction by insertion order.
type SessionAgents struct {
	mu       sync.Mutex
	capacity int
	agents   map[string]string
	order    []string
}

// NewSessionAgents creates a session-agent map. A non-positive capacity
// falls back to the default.
func NewSessionAgents(capacity int) *SessionAgents {
	if capacity <= 0 {
		capacity = DefaultMaxSessionAgents
	}
	return &SessionAgents{
		capacity: capacity,
		agents:   make(map[string]string, capacity),
		order:    make([]string, 0, capacity),
	}
}

// Set records agentID as the last agent for the conversation. When the map
// is full the oldest-inserted conversation is dropped.
func (s *SessionAgents) Set(conversationID, agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[conversationID]; exists {
		s.agents[conversationID] = agentID
		return
	}

	if len(s.agents) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.agents, oldest)
	}

	s.agents[conversationID] = agentID
	s.order = append(s.order, conversationID)
}

// Get returns the last agent for the conversation, or "" if unknown.
func (s *SessionAgents) Get(conversationID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agents[conversationID]
}

// Len returns the number of tracked conversations.
func (s *SessionAgents) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.agents)
}

// Reset drops all entries. Used by tests.
func (s *SessionAgents) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = make(map[string]string, s.capacity)
	s.order = s.order[:0]
}
