// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package orchestrator

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/chatrelay/chatrelay/internal/models"
)

// ExtractContent pulls displayable text out of the orchestrator's nested
// response shape. Fallback chain:
//
//  1. response.result.agent_response (real agent reply)
//  2. response.result.dispatched_to  (acknowledgement stub)
//  3. response.result as pretty-printed JSON
//  4. response as pretty-printed JSON
//  5. "Response from {agent} (status: {status})"
func ExtractContent(resp *models.OrchestratorResponse) string {
	if result := resp.Result(); result != nil {
		if text, ok := result["agent_response"].(string); ok {
			return text
		}
		if agent, ok := result["dispatched_to"]; ok {
			return fmt.Sprintf(
				"Message received by %v. The agent acknowledged the request but no "+
					"detailed response was returned. This may mean the agent's MCP server "+
					"is not running or not connected.", agent)
		}
		if len(result) > 0 {
			if pretty, err := json.MarshalIndent(result, "", "  "); err == nil {
				return string(pretty)
			}
		}
	}

	if len(resp.Response) > 0 {
		if pretty, err := json.MarshalIndent(resp.Response, "", "  "); err == nil {
			return string(pretty)
		}
	}

	agent := resp.AgentName
	if agent == "" {
		agent = resp.AgentID
	}
	if agent == "" {
		agent = "unknown"
	}
	status := resp.Status
	if status == "" {
		status = "unknown"
	}
	return fmt.Sprintf("Response from %s (status: %s)", agent, status)
}
