// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package api

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/chatrelay/chatrelay/internal/models"
)

var errStreamingUnsupported = errors.New("response writer does not support streaming")

// sseWriter writes server-sent events and flushes after each one, so
// tokens appear at the client as they are produced.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter sets the SSE response headers and returns the writer.
// X-Accel-Buffering disables proxy buffering in front of the relay.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, nil
}

// Emit writes one envelope as `data: {json}\n\n`. Implements
// streaming.Emitter.
func (s *sseWriter) Emit(env models.StreamEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(payload); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
