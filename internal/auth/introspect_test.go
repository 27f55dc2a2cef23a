// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newInstanceServer fakes the three profile endpoints used by token
// introspection. hits counts profile lookups to observe caching.
func newInstanceServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/now/ui/user", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"result": {"user_name": "alice"}}`))
	})
	mux.HandleFunc("/api/now/table/sys_user", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result": [{"sys_id": "sys-1", "user_name": "alice", "name": "Alice Ops", "email": "alice@example.com", "title": "SRE"}]}`))
	})
	mux.HandleFunc("/api/now/table/sys_user_has_role", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result": [{"role": {"display_value": "admin"}}, {"role": "itil"}, {"role": ""}]}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestIntrospectValidToken(t *testing.T) {
	var hits atomic.Int64
	server := newInstanceServer(t, &hits)
	i := NewIntrospector(server.URL, time.Minute, 100)

	user, err := i.Validate(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if user.SysID != "sys-1" || user.UserName != "alice" || user.Email != "alice@example.com" {
		t.Errorf("unexpected user: %+v", user)
	}
	if len(user.Roles) != 2 || user.Roles[0] != "admin" || user.Roles[1] != "itil" {
		t.Errorf("unexpected roles: %v", user.Roles)
	}
}

func TestIntrospectCachesValidatedTokens(t *testing.T) {
	var hits atomic.Int64
	server := newInstanceServer(t, &hits)
	i := NewIntrospector(server.URL, time.Minute, 100)

	for range 3 {
		if _, err := i.Validate(context.Background(), "good-token"); err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("expected 1 upstream lookup, got %d", got)
	}

	i.ClearCache()
	if _, err := i.Validate(context.Background(), "good-token"); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("expected lookup after cache clear, got %d", got)
	}
}

func TestIntrospectRejectsBadToken(t *testing.T) {
	var hits atomic.Int64
	server := newInstanceServer(t, &hits)
	i := NewIntrospector(server.URL, time.Minute, 100)

	if _, err := i.Validate(context.Background(), "bad-token"); err == nil {
		t.Error("expected error for rejected token")
	}
}

func TestIntrospectUnreachableInstance(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	i := NewIntrospector(server.URL, time.Minute, 100)

	if _, err := i.Validate(context.Background(), "good-token"); err == nil {
		t.Error("expected error for unreachable instance")
	}
}

func TestTokenCacheTTLAndCapacity(t *testing.T) {
	c := newTokenCache(time.Minute, 2)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.set("a", DevUser)
	if _, ok := c.get("a"); !ok {
		t.Fatal("expected cached entry")
	}

	// Expiry.
	now = now.Add(2 * time.Minute)
	if _, ok := c.get("a"); ok {
		t.Error("expected entry to expire")
	}

	// Capacity eviction drops the oldest entry.
	c.set("a", DevUser)
	now = now.Add(time.Second)
	c.set("b", DevUser)
	now = now.Add(time.Second)
	c.set("c", DevUser)
	if _, ok := c.get("a"); ok {
		t.Error("expected oldest entry evicted at capacity")
	}
	if _, ok := c.get("b"); !ok {
		t.Error("recent entry must survive eviction")
	}
	if _, ok := c.get("c"); !ok {
		t.Error("new entry must be present")
	}
}
