// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package assistant

import (
	openai "github.com/sashabaranov/go-openai"
)

// toolToAgent maps tool names to orchestrator target agents. Setting
// target_agent explicitly bypasses the orchestrator's keyword router.
var toolToAgent = map[string]string{
	"query_cmdb":             "cmdb-agent",
	"create_service_request": "csa-agent",
	"run_discovery":          "discovery",
	"manage_assets":          "asset",
	"run_audit":              "auditor",
	"generate_documentation": "documentator",
}

// queryToolSchema is the shared parameter schema: a natural-language
// query plus optional hints forwarded to the agent as context.
var queryToolSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"query": map[string]interface{}{
			"type":        "string",
			"description": "Natural language description of the operation to perform",
		},
		"tool_hint": map[string]interface{}{
			"type":        "string",
			"description": "Exact downstream tool name, when the specific operation is known",
		},
		"tool_args": map[string]interface{}{
			"type":        "object",
			"description": "Arguments for the downstream tool, keyed by parameter name",
		},
	},
	"required": []string{"query"},
}

// tools are the six fixed agent tools exposed to the model, mapping 1:1
// to orchestrator agents.
var tools = []openai.Tool{
	{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name: "query_cmdb",
			Description: "Search and query the CMDB (Configuration Management Database). " +
				"Use for finding configuration items, checking CI health metrics, finding " +
				"stale or duplicate CIs, and any CMDB-related queries.",
			Parameters: queryToolSchema,
		},
	},
	{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name: "create_service_request",
			Description: "Create service requests, remediation requests, change requests, " +
				"or interact with the service catalog. Use for any request creation, ticket " +
				"creation, or catalog item operations.",
			Parameters: queryToolSchema,
		},
	},
	{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name: "run_discovery",
			Description: "Run network discovery scans, IP range discovery, or check " +
				"discovery status. Use for finding new devices on the network, scanning " +
				"IP ranges, or checking what has been discovered.",
			Parameters: queryToolSchema,
		},
	},
	{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name: "manage_assets",
			Description: "Manage hardware and software assets, check inventory, license " +
				"compliance, and asset lifecycle. Use for asset-related queries including " +
				"hardware inventory, software licenses, and asset tracking.",
			Parameters: queryToolSchema,
		},
	},
	{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name: "run_audit",
			Description: "Run compliance audits, check configuration drift, and verify " +
				"infrastructure compliance. Use for audit-related queries, compliance " +
				"checks, drift detection, and security posture assessment.",
			Parameters: queryToolSchema,
		},
	},
	{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name: "generate_documentation",
			Description: "Generate runbooks, KB articles, operational documentation, and " +
				"technical guides. Use for documentation creation, runbook generation, and " +
				"knowledge base operations.",
			Parameters: queryToolSchema,
		},
	},
}

// systemPrompt steers the tool-selection round.
const systemPrompt = `You are an IT operations assistant. You help users manage their ` +
	`infrastructure through six specialized agent tools.

Instructions:
- Use the appropriate tool when users ask about infrastructure, services, assets, compliance, discovery, or documentation.
- For conversational follow-ups (greetings, clarifications, "what did you find?", "tell me more"), respond directly without calling a tool.
- If the user's request is ambiguous, ask a clarifying question instead of guessing.
- When multiple tools could apply, choose the most specific one.
- If a tool returns an error, explain what went wrong and suggest next steps.
- When a tool returns data, include the actual data in your response. Do not replace tables or links with summaries.`
