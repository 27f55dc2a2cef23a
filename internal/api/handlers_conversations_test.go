// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package api

import (
	"net/http"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/chatrelay/chatrelay/internal/history"
	"github.com/chatrelay/chatrelay/internal/models"
)

func createConversation(t *testing.T, env *testEnv, title, message string) models.Conversation {
	t.Helper()
	rec := doJSON(t, env.router, http.MethodPost, "/api/v1/conversations",
		map[string]string{"title": title, "message": message})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create conversation: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var conv models.Conversation
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &conv); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}
	return conv
}

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t, &fakeUpstream{}, nil)

	conv := createConversation(t, env, "Network audit", "audit the network")
	if conv.ID == "" || conv.Title != "Network audit" {
		t.Fatalf("conversation = %+v", conv)
	}

	rec := doJSON(t, env.router, http.MethodGet, "/api/v1/conversations/"+conv.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}
	var loaded models.Conversation
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &loaded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "audit the network" {
		t.Fatalf("messages = %+v", loaded.Messages)
	}

	rec = doJSON(t, env.router, http.MethodGet, "/api/v1/conversations", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var summaries []models.ConversationSummary
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &summaries); err != nil {
		t.Fatalf("decode summaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].MessageCount != 1 {
		t.Fatalf("summaries = %+v", summaries)
	}

	rec = doJSON(t, env.router, http.MethodDelete, "/api/v1/conversations/"+conv.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec = doJSON(t, env.router, http.MethodGet, "/api/v1/conversations/"+conv.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status = %d", rec.Code)
	}
}

func TestDeleteConversationDropsCachedHistory(t *testing.T) {
	env := newTestEnv(t, &fakeUpstream{}, nil)

	conv := createConversation(t, env, "", "hello")
	env.handler.cache.Add(conv.ID, history.Turn{Role: models.RoleUser, Content: "hello"})
	env.handler.cache.Add("other", history.Turn{Role: models.RoleUser, Content: "keep me"})

	rec := doJSON(t, env.router, http.MethodDelete, "/api/v1/conversations/"+conv.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	if turns := env.handler.cache.Get(conv.ID); len(turns) != 0 {
		t.Errorf("deleted conversation still cached: %+v", turns)
	}
	if turns := env.handler.cache.Get("other"); len(turns) != 1 {
		t.Errorf("unrelated conversation evicted: %+v", turns)
	}
}

func TestConversationNotFoundResponses(t *testing.T) {
	env := newTestEnv(t, &fakeUpstream{}, nil)

	for _, tc := range []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodGet, "/api/v1/conversations/missing", nil},
		{http.MethodDelete, "/api/v1/conversations/missing", nil},
		{http.MethodGet, "/api/v1/conversations/missing/messages", nil},
		{http.MethodPost, "/api/v1/conversations/missing/messages",
			map[string]string{"role": "user", "content": "hi"}},
		{http.MethodGet, "/api/v1/conversations/missing/context", nil},
	} {
		rec := doJSON(t, env.router, tc.method, tc.path, tc.body)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: status = %d, want 404", tc.method, tc.path, rec.Code)
			continue
		}
		if code := decodeEnvelope(t, rec).Error.Code; code != "NOT_FOUND" {
			t.Errorf("%s %s: code = %q", tc.method, tc.path, code)
		}
	}
}

func TestSaveMessageDetectsArtifacts(t *testing.T) {
	env := newTestEnv(t, &fakeUpstream{}, nil)
	conv := createConversation(t, env, "Report run", "")

	content := "Here is the summary.\n```json\n{\"title\": \"Scan Results\", \"hosts\": 12}\n```\n"
	rec := doJSON(t, env.router, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages",
		map[string]string{"role": "assistant", "content": content, "agent_id": "discovery"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("save: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var msg models.Message
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	artifacts, ok := msg.Metadata["artifacts"].([]interface{})
	if !ok || len(artifacts) != 1 {
		t.Fatalf("metadata = %+v, want one detected artifact", msg.Metadata)
	}

	// User messages are not scanned.
	rec = doJSON(t, env.router, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages",
		map[string]string{"role": "user", "content": content})
	if rec.Code != http.StatusCreated {
		t.Fatalf("save user message: status = %d", rec.Code)
	}
	msg = models.Message{}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if _, found := msg.Metadata["artifacts"]; found {
		t.Error("user message should not carry detected artifacts")
	}
}

func TestSearchConversations(t *testing.T) {
	env := newTestEnv(t, &fakeUpstream{}, nil)
	createConversation(t, env, "Subnet discovery", "")
	createConversation(t, env, "License audit", "")

	rec := doJSON(t, env.router, http.MethodGet, "/api/v1/conversations/search?q=subnet", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: status = %d", rec.Code)
	}
	var results []models.ConversationSummary
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Subnet discovery" {
		t.Fatalf("results = %+v", results)
	}

	rec = doJSON(t, env.router, http.MethodGet, "/api/v1/conversations/search", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing q: status = %d", rec.Code)
	}
}

func TestConversationContextRoundTrip(t *testing.T) {
	env := newTestEnv(t, &fakeUpstream{}, nil)
	conv := createConversation(t, env, "ctx", "")

	rec := doJSON(t, env.router, http.MethodPut, "/api/v1/conversations/"+conv.ID+"/context",
		map[string]interface{}{"active_domain": "discovery", "depth": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("put context: status = %d", rec.Code)
	}

	rec = doJSON(t, env.router, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/context", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get context: status = %d", rec.Code)
	}
	var ctx map[string]interface{}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &ctx); err != nil {
		t.Fatalf("decode context: %v", err)
	}
	if ctx["active_domain"] != "discovery" {
		t.Errorf("context = %v", ctx)
	}
}

func TestExportConversationFormats(t *testing.T) {
	env := newTestEnv(t, &fakeUpstream{}, nil)
	conv := createConversation(t, env, "Export me", "first message")
	doJSON(t, env.router, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages",
		map[string]string{"role": "assistant", "content": "the answer", "agent_id": "asset"})

	rec := doJSON(t, env.router, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("json export: status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasSuffix(cd, ".json") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	var exported models.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &exported); err != nil {
		t.Fatalf("json export is not a bare conversation: %v", err)
	}
	if len(exported.Messages) != 2 {
		t.Errorf("exported messages = %d", len(exported.Messages))
	}

	rec = doJSON(t, env.router, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/export?format=text", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("text export: status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "Export me\n=========\n") {
		t.Errorf("text export header = %q", body)
	}
	if !strings.Contains(body, "[assistant (asset)]") {
		t.Errorf("text export missing agent label: %q", body)
	}

	rec = doJSON(t, env.router, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/export?format=markdown", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("markdown export: status = %d", rec.Code)
	}
	body = rec.Body.String()
	if !strings.HasPrefix(body, "# Export me\n") {
		t.Errorf("markdown export header = %q", body)
	}
	if !strings.Contains(body, "**Assistant (asset):**") || !strings.Contains(body, "**User:**") {
		t.Errorf("markdown export labels missing: %q", body)
	}

	rec = doJSON(t, env.router, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/export?format=xml", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown format: status = %d", rec.Code)
	}
}
