// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/chatrelay/chatrelay/internal/history"
	"github.com/chatrelay/chatrelay/internal/models"
	"github.com/chatrelay/chatrelay/internal/orchestrator"
)

// fakeUpstream scripts the orchestrator's behavior for one test.
type fakeUpstream struct {
	resp        *models.OrchestratorResponse
	err         error
	clarifyResp *models.OrchestratorResponse
	clarifyErr  error
	lastReq     *models.OrchestratorRequest
}

func (f *fakeUpstream) SendMessage(_ context.Context, req *models.OrchestratorRequest) (*models.OrchestratorResponse, time.Duration, error) {
	f.lastReq = req
	return f.resp, 5 * time.Millisecond, f.err
}

func (f *fakeUpstream) Clarify(_ context.Context, _ *models.OrchestratorClarifyRequest) (*models.OrchestratorResponse, time.Duration, error) {
	return f.clarifyResp, 5 * time.Millisecond, f.clarifyErr
}

type recorder struct {
	events []models.StreamEnvelope
}

func (r *recorder) emit(env models.StreamEnvelope) error {
	r.events = append(r.events, env)
	return nil
}

func newTestSession(up Upstream) (*Session, *history.Cache, *history.SessionAgents) {
	cache := history.NewCache(20, 500)
	agents := history.NewSessionAgents(1000)
	return NewSession(up, cache, agents), cache, agents
}

func eventKinds(events []models.StreamEnvelope) []string {
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = e.Event
	}
	return kinds
}

func assertSequence(t *testing.T, events []models.StreamEnvelope, want ...string) {
	t.Helper()
	if len(events) != len(want) {
		t.Fatalf("expected sequence %v, got %v", want, eventKinds(events))
	}
	for i, kind := range want {
		if events[i].Event != kind {
			t.Fatalf("expected sequence %v, got %v", want, eventKinds(events))
		}
	}
}

func TestStreamNormalSuccess(t *testing.T) {
	up := &fakeUpstream{
		resp: &models.OrchestratorResponse{
			Status:    "success",
			AgentID:   "cmdb-agent",
			AgentName: "CMDB Agent",
			Response: map[string]interface{}{
				"result": map[string]interface{}{"agent_response": "X"},
			},
		},
	}
	session, cache, agents := newTestSession(up)
	rec := &recorder{}

	err := session.Stream(context.Background(), models.StreamChatRequest{
		Content:        "hi",
		ConversationID: "conv-1",
	}, rec.emit)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	assertSequence(t, rec.events, models.EventStreamStart, models.EventToken, models.EventStreamEnd)

	token := rec.events[1].Data.(models.TokenData)
	if token.Token != "X" {
		t.Errorf("expected token X, got %q", token.Token)
	}
	end := rec.events[2].Data.(models.StreamEndData)
	if end.FullContent != "X" {
		t.Errorf("expected full_content X, got %q", end.FullContent)
	}
	if end.AgentID != "cmdb-agent" || end.AgentName != "CMDB Agent" {
		t.Errorf("unexpected agent on stream_end: %+v", end)
	}

	// message_id is threaded through every event of the turn.
	start := rec.events[0].Data.(models.StreamStartData)
	if token.MessageID != start.MessageID || end.MessageID != start.MessageID {
		t.Error("message_id not consistent across events")
	}

	// Side effects: session agent recorded, both turns cached.
	if got := agents.Get("conv-1"); got != "cmdb-agent" {
		t.Errorf("expected session agent cmdb-agent, got %q", got)
	}
	turns := cache.Get("conv-1")
	if len(turns) != 2 || turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Errorf("unexpected cached turns: %+v", turns)
	}
}

func TestStreamUnreachable(t *testing.T) {
	up := &fakeUpstream{err: &orchestrator.Error{Kind: orchestrator.KindUnreachable, Message: "refused"}}
	session, _, _ := newTestSession(up)
	rec := &recorder{}

	if err := session.Stream(context.Background(), models.StreamChatRequest{
		Content: "hi", ConversationID: "conv-1",
	}, rec.emit); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	assertSequence(t, rec.events, models.EventStreamStart, models.EventError)
	data := rec.events[1].Data.(models.StreamErrorData)
	if data.Code != models.ErrCodeOrchestratorUnreachable {
		t.Errorf("expected ORCHESTRATOR_UNREACHABLE, got %q", data.Code)
	}
}

func TestStreamErrorCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"timeout", &orchestrator.Error{Kind: orchestrator.KindTimeout}, models.ErrCodeOrchestratorTimeout},
		{"http", &orchestrator.Error{Kind: orchestrator.KindHTTP, StatusCode: 503}, models.ErrCodeOrchestratorError},
		{"parse", &orchestrator.Error{Kind: orchestrator.KindParse}, models.ErrCodeOrchestratorParseError},
		{"schema", &orchestrator.Error{Kind: orchestrator.KindSchema}, models.ErrCodeOrchestratorParseError},
		{"internal", context.Canceled, models.ErrCodeStreamInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, _, _ := newTestSession(&fakeUpstream{err: tt.err})
			rec := &recorder{}
			if err := session.Stream(context.Background(), models.StreamChatRequest{
				Content: "hi", ConversationID: "conv-1",
			}, rec.emit); err != nil {
				t.Fatalf("Stream failed: %v", err)
			}

			assertSequence(t, rec.events, models.EventStreamStart, models.EventError)
			data := rec.events[1].Data.(models.StreamErrorData)
			if data.Code != tt.wantCode {
				t.Errorf("expected %s, got %s", tt.wantCode, data.Code)
			}
		})
	}
}

func TestStreamClarification(t *testing.T) {
	up := &fakeUpstream{
		resp: &models.OrchestratorResponse{
			ResponseType:        "clarification",
			AgentName:           "Orchestrator",
			Question:            "Which environment?",
			Options:             []string{"production", "staging"},
			PendingMessageToken: "tok-42",
		},
	}
	session, _, _ := newTestSession(up)
	rec := &recorder{}

	if err := session.Stream(context.Background(), models.StreamChatRequest{
		Content: "scan the network", ConversationID: "conv-1",
	}, rec.emit); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	assertSequence(t, rec.events, models.EventStreamStart, models.EventClarification, models.EventStreamEnd)

	clar := rec.events[1].Data.(models.ClarificationData)
	if clar.Question != "Which environment?" || clar.PendingMessageToken != "tok-42" {
		t.Errorf("unexpected clarification payload: %+v", clar)
	}
	if len(clar.Options) != 2 {
		t.Errorf("expected 2 options, got %v", clar.Options)
	}

	end := rec.events[2].Data.(models.StreamEndData)
	if end.FullContent != "" {
		t.Errorf("clarification stream_end must carry empty content, got %q", end.FullContent)
	}
}

func TestStreamThreadsLastAgentContext(t *testing.T) {
	up := &fakeUpstream{
		resp: &models.OrchestratorResponse{
			AgentID:  "discovery",
			Response: map[string]interface{}{"result": map[string]interface{}{"agent_response": "ok"}},
		},
	}
	session, _, agents := newTestSession(up)
	agents.Set("conv-1", "cmdb-agent")

	rec := &recorder{}
	if err := session.Stream(context.Background(), models.StreamChatRequest{
		Content: "follow up", ConversationID: "conv-1",
	}, rec.emit); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	if up.lastReq == nil {
		t.Fatal("upstream was not called")
	}
	if got := up.lastReq.Context["last_agent_id"]; got != "cmdb-agent" {
		t.Errorf("expected last_agent_id cmdb-agent in context, got %v", got)
	}
	if up.lastReq.SessionID != "conv-1" {
		t.Errorf("expected session_id conv-1, got %q", up.lastReq.SessionID)
	}
}

func TestStreamDoesNotRecordOrchestratorAsSessionAgent(t *testing.T) {
	up := &fakeUpstream{
		resp: &models.OrchestratorResponse{
			AgentID:  "orchestrator",
			Response: map[string]interface{}{"result": map[string]interface{}{"agent_response": "ok"}},
		},
	}
	session, _, agents := newTestSession(up)
	rec := &recorder{}

	if err := session.Stream(context.Background(), models.StreamChatRequest{
		Content: "hi", ConversationID: "conv-1",
	}, rec.emit); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if got := agents.Get("conv-1"); got != "" {
		t.Errorf("orchestrator must not be recorded as session agent, got %q", got)
	}
}

func TestClarifySuccess(t *testing.T) {
	up := &fakeUpstream{
		clarifyResp: &models.OrchestratorResponse{
			Status:    "success",
			AgentID:   "discovery",
			AgentName: "Discovery Agent",
			Response: map[string]interface{}{
				"result": map[string]interface{}{"agent_response": "Scanning production."},
			},
		},
	}
	session, _, _ := newTestSession(up)
	rec := &recorder{}

	err := session.Clarify(context.Background(), models.ClarifyRequest{
		PendingMessageToken: "tok-42",
		ClarificationAnswer: "production",
		ConversationID:      "conv-1",
	}, rec.emit)
	if err != nil {
		t.Fatalf("Clarify failed: %v", err)
	}

	// Always a final answer: never a clarification event on this path.
	assertSequence(t, rec.events, models.EventStreamStart, models.EventToken, models.EventStreamEnd)
	end := rec.events[2].Data.(models.StreamEndData)
	if end.FullContent != "Scanning production." {
		t.Errorf("unexpected full_content: %q", end.FullContent)
	}
}

func TestClarifyUpstreamHTTPError(t *testing.T) {
	up := &fakeUpstream{clarifyErr: &orchestrator.Error{Kind: orchestrator.KindHTTP, StatusCode: 502}}
	session, _, _ := newTestSession(up)
	rec := &recorder{}

	if err := session.Clarify(context.Background(), models.ClarifyRequest{
		PendingMessageToken: "tok-42",
		ClarificationAnswer: "production",
		ConversationID:      "conv-1",
	}, rec.emit); err != nil {
		t.Fatalf("Clarify failed: %v", err)
	}

	assertSequence(t, rec.events, models.EventError)
	data := rec.events[0].Data.(models.StreamErrorData)
	if data.Code != models.ErrCodeClarificationFailed {
		t.Errorf("expected CLARIFICATION_FAILED, got %q", data.Code)
	}
}

func TestClarifyUnreachable(t *testing.T) {
	up := &fakeUpstream{clarifyErr: &orchestrator.Error{Kind: orchestrator.KindUnreachable}}
	session, _, _ := newTestSession(up)
	rec := &recorder{}

	if err := session.Clarify(context.Background(), models.ClarifyRequest{
		PendingMessageToken: "tok-42",
		ClarificationAnswer: "production",
		ConversationID:      "conv-1",
	}, rec.emit); err != nil {
		t.Fatalf("Clarify failed: %v", err)
	}

	assertSequence(t, rec.events, models.EventError)
	data := rec.events[0].Data.(models.StreamErrorData)
	if data.Code != models.ErrCodeOrchestratorUnreachable {
		t.Errorf("expected ORCHESTRATOR_UNREACHABLE, got %q", data.Code)
	}
}
