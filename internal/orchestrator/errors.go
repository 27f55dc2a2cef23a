// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package orchestrator

import (
	"errors"
	"fmt"
)

// Error kinds. Every transport or protocol failure talking to the
// orchestrator is normalized into exactly one of these.
const (
	KindUnreachable = "unreachable" // connection refused, DNS failure
	KindTimeout     = "timeout"     // connect or read deadline exceeded
	KindHTTP        = "http"        // non-2xx status
	KindParse       = "parse"       // body is not valid JSON
	KindSchema      = "schema"      // JSON does not match the expected shape
)

// Error is the single error type returned by the gateway. StatusCode is
// set only for KindHTTP.
type Error struct {
	Kind       string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("orchestrator: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("orchestrator: %s: %s", e.Kind, e.Message)
}

// IsUnreachable reports whether err is a gateway unreachable error.
func IsUnreachable(err error) bool { return kindOf(err) == KindUnreachable }

// IsTimeout reports whether err is a gateway timeout error.
func IsTimeout(err error) bool { return kindOf(err) == KindTimeout }

// IsHTTP reports whether err is a non-2xx upstream status error.
func IsHTTP(err error) bool { return kindOf(err) == KindHTTP }

// IsParse reports whether err is a malformed-body or schema error.
func IsParse(err error) bool {
	k := kindOf(err)
	return k == KindParse || k == KindSchema
}

func kindOf(err error) string {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}
