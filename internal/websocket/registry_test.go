// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package websocket

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/chatrelay/chatrelay/internal/models"
)

// fakeConn records written frames and can be scripted to fail.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func (f *fakeConn) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("write failed")
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeConn) lastFrame(t *testing.T) models.WSOutbound {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		t.Fatal("no frames written")
	}
	var out models.WSOutbound
	if err := json.Unmarshal(f.frames[len(f.frames)-1], &out); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	return out
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestConnectAndDisconnect(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}

	r.Connect("client-a", conn)
	if got := r.ConnectionCount(); got != 1 {
		t.Fatalf("expected 1 connection, got %d", got)
	}

	r.Disconnect("client-a", conn)
	if got := r.ConnectionCount(); got != 0 {
		t.Fatalf("expected 0 connections after disconnect, got %d", got)
	}
	if !conn.isClosed() {
		t.Error("disconnect must close the connection")
	}

	// Idempotent.
	r.Disconnect("client-a", conn)
}

func TestConnectReplacesDuplicateClientID(t *testing.T) {
	r := NewRegistry()
	first := &fakeConn{}
	second := &fakeConn{}

	r.Connect("client-a", first)
	r.Connect("client-a", second)

	if got := r.ConnectionCount(); got != 1 {
		t.Fatalf("expected 1 connection, got %d", got)
	}
	if !first.isClosed() {
		t.Error("replaced connection must be closed")
	}

	// Stale disconnect from the first connection must not evict the
	// replacement.
	r.Disconnect("client-a", first)
	if got := r.ConnectionCount(); got != 1 {
		t.Fatalf("stale disconnect removed the replacement, count %d", got)
	}
	if r.SendPersonal(models.NewWSHeartbeat("now"), "client-a") && second.frameCount() != 1 {
		t.Error("personal send did not reach the replacement connection")
	}
}

func TestSendPersonal(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	r.Connect("client-a", conn)

	if !r.SendPersonal(models.NewWSError("X", "y"), "client-a") {
		t.Fatal("expected delivery to succeed")
	}
	frame := conn.lastFrame(t)
	if frame.Type != models.WSTypeError {
		t.Errorf("expected error frame, got %q", frame.Type)
	}

	if r.SendPersonal(models.NewWSError("X", "y"), "unknown") {
		t.Error("delivery to unknown client must fail")
	}
}

func TestSendPersonalFailureDropsConnection(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{fail: true}
	r.Connect("client-a", conn)

	if r.SendPersonal(models.NewWSHeartbeat("now"), "client-a") {
		t.Fatal("expected delivery to fail")
	}
	if got := r.ConnectionCount(); got != 0 {
		t.Errorf("failed connection must be dropped, count %d", got)
	}
}

func TestBroadcastPartialFailure(t *testing.T) {
	r := NewRegistry()
	good1 := &fakeConn{}
	bad := &fakeConn{fail: true}
	good2 := &fakeConn{}
	r.Connect("client-a", good1)
	r.Connect("client-b", bad)
	r.Connect("client-c", good2)

	sent := r.Broadcast(models.WSOutbound{
		Type:          models.WSTypeChat,
		Payload:       map[string]interface{}{"text": "hello"},
		CorrelationID: "corr-1",
	})
	if sent != 2 {
		t.Fatalf("expected 2 deliveries, got %d", sent)
	}

	want := []string{"client-a", "client-c"}
	if got := r.ActiveConnectionIDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected failed client removed, active %v", got)
	}

	frame := good1.lastFrame(t)
	if frame.Type != models.WSTypeChat || frame.CorrelationID != "corr-1" {
		t.Errorf("unexpected broadcast frame: %+v", frame)
	}
}

func TestBroadcastChatFrameUsesCamelCaseCorrelationID(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	r.Connect("client-a", conn)

	r.Broadcast(models.WSOutbound{
		Type:          models.WSTypeChat,
		Payload:       map[string]interface{}{"text": "hi"},
		CorrelationID: "corr-7",
	})

	var raw map[string]interface{}
	if err := json.Unmarshal(conn.frames[0], &raw); err != nil {
		t.Fatalf("bad frame: %v", err)
	}
	if raw["correlationId"] != "corr-7" {
		t.Errorf("expected correlationId key on the wire, got %v", raw)
	}
	if _, present := raw["correlation_id"]; present {
		t.Error("snake_case correlation_id must not appear on outbound frames")
	}
}

func TestSendHeartbeat(t *testing.T) {
	r := NewRegistry()
	a := &fakeConn{}
	b := &fakeConn{}
	r.Connect("client-a", a)
	r.Connect("client-b", b)

	if sent := r.SendHeartbeat(); sent != 2 {
		t.Fatalf("expected heartbeat to reach 2 clients, got %d", sent)
	}
	frame := a.lastFrame(t)
	if frame.Type != models.WSTypeHeartbeat {
		t.Errorf("expected heartbeat frame, got %q", frame.Type)
	}
	if _, ok := frame.Payload["timestamp"]; !ok {
		t.Error("heartbeat payload must carry a timestamp")
	}
}
