// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package auth

import (
	"sync"
	"time"

	"github.com/chatrelay/chatrelay/internal/models"
)

// tokenCache caches validated tokens with a TTL and a hard capacity.
// At capacity, insertion evicts the entry closest to expiry.
type tokenCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]tokenEntry
	now      func() time.Time
}

type tokenEntry struct {
	user     models.CurrentUser
	cachedAt time.Time
}

func newTokenCache(ttl time.Duration, capacity int) *tokenCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &tokenCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]tokenEntry),
		now:      time.Now,
	}
}

func (c *tokenCache) get(token string) (models.CurrentUser, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[token]
	if !ok {
		return models.CurrentUser{}, false
	}
	if c.now().Sub(entry.cachedAt) > c.ttl {
		delete(c.entries, token)
		return models.CurrentUser{}, false
	}
	return entry.user, true
}

func (c *tokenCache) set(token string, user models.CurrentUser) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[token]; !exists && len(c.entries) >= c.capacity {
		var oldestKey string
		var oldestAt time.Time
		for key, entry := range c.entries {
			if oldestKey == "" || entry.cachedAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.cachedAt
			}
		}
		delete(c.entries, oldestKey)
	}
	c.entries[token] = tokenEntry{user: user, cachedAt: c.now()}
}

func (c *tokenCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]tokenEntry)
}
