// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatrelay/chatrelay/internal/models"
)

// agentDefinitions are the routable agents the relay fronts. The
// status field is resolved at request time from the orchestrator;
// unknown or unreachable means offline, never a fabricated online.
var agentDefinitions = []models.Agent{
	{
		ID:          "discovery",
		Name:        "Discovery Agent",
		Description: "Network and infrastructure discovery",
		Domain:      "discovery",
		Icon:        "search",
	},
	{
		ID:          "asset",
		Name:        "Asset Agent",
		Description: "IT asset management and tracking",
		Domain:      "asset",
		Icon:        "server",
	},
	{
		ID:          "auditor",
		Name:        "Auditor Agent",
		Description: "IT compliance auditing and reporting",
		Domain:      "audit",
		Icon:        "shield-check",
	},
	{
		ID:          "documentator",
		Name:        "Documentator Agent",
		Description: "ITOM documentation generation",
		Domain:      "documentation",
		Icon:        "file-text",
	},
	{
		ID:          "auto",
		Name:        "Auto (Orchestrator)",
		Description: "Let the orchestrator decide routing",
		Domain:      "orchestrator",
		Icon:        "zap",
	},
}

func (h *Handler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	statuses := h.upstream.AgentStatuses(r.Context())

	agents := make([]models.Agent, len(agentDefinitions))
	for i, defn := range agentDefinitions {
		agents[i] = defn
		agents[i].Status = resolveStatus(statuses, defn.ID)
	}
	respondJSON(w, http.StatusOK, agents)
}

func (h *Handler) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, defn := range agentDefinitions {
		if defn.ID == id {
			agent := defn
			agent.Status = resolveStatus(h.upstream.AgentStatuses(r.Context()), id)
			respondJSON(w, http.StatusOK, agent)
			return
		}
	}
	respondError(w, http.StatusNotFound, "NOT_FOUND", "Unknown agent: "+id, nil)
}

func resolveStatus(statuses map[string]string, agentID string) string {
	switch statuses[agentID] {
	case models.AgentStatusOnline:
		return models.AgentStatusOnline
	case models.AgentStatusBusy:
		return models.AgentStatusBusy
	default:
		return models.AgentStatusOffline
	}
}
