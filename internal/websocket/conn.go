// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package websocket

import (
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/chatrelay/chatrelay/internal/models"
)

// GorillaConn adapts *websocket.Conn to the Conn interface. Gorilla
// permits at most one concurrent writer, so writes are serialized with
// a mutex: broadcasts, personal sends, and heartbeats can all target
// the same connection from different goroutines.
type GorillaConn struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	writeWait time.Duration
}

// NewGorillaConn wraps conn. writeWait bounds each frame write; zero
// disables the deadline.
func NewGorillaConn(conn *websocket.Conn, writeWait time.Duration) *GorillaConn {
	return &GorillaConn{conn: conn, writeWait: writeWait}
}

// WriteMessage writes one text frame.
func (c *GorillaConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeWait > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection.
func (c *GorillaConn) Close() error {
	return c.conn.Close()
}

func marshalFrame(msg models.WSOutbound) ([]byte, error) {
	return json.Marshal(msg)
}
