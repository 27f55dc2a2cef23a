// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

// Package orchestrator is the sole network client to the upstream agent
// orchestrator. It normalizes transport failures into a typed error and
// extracts displayable text from the orchestrator's nested response shape.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/metrics"
	"github.com/chatrelay/chatrelay/internal/models"
)

// maxErrorBodyBytes limits how much of an upstream error body is kept for
// log and error messages.
const maxErrorBodyBytes = 500

// HealthStatus is the result of a health probe. CheckHealth never returns
// an error value; failures are reported through these fields.
type HealthStatus struct {
	Available      bool   `json:"available"`
	Status         string `json:"status"`
	ResponseTimeMS int64  `json:"response_time_ms"`
	Error          string `json:"error,omitempty"`
}

// Gateway is the HTTP client for the orchestrator. Connect failures are
// detected fast (short dial timeout) while agent dispatches are allowed a
// long read timeout. Safe for concurrent use.
type Gateway struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*models.OrchestratorResponse]
}

// New creates a Gateway from config. When cfg.BreakerEnabled is set, chat
// and clarify calls run through a circuit breaker that opens at a 60%
// failure rate over at least 10 requests.
func New(cfg config.OrchestratorConfig) *Gateway {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	g := &Gateway{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{
			Timeout: cfg.ReadTimeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: cfg.ConnectTimeout,
			},
		},
	}

	if cfg.BreakerEnabled {
		g.breaker = newBreaker("orchestrator")
	}
	return g
}

func newBreaker(name string) *gobreaker.CircuitBreaker[*models.OrchestratorResponse] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[*models.OrchestratorResponse](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().
				Str("breaker", name).
				Str("from", fromStr).
				Str("to", toStr).
				Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})
}

// SendMessage posts a chat request to the orchestrator and returns its
// parsed response along with the elapsed round-trip time.
func (g *Gateway) SendMessage(ctx context.Context, req *models.OrchestratorRequest) (*models.OrchestratorResponse, time.Duration, error) {
	start := time.Now()
	resp, err := g.execute(ctx, "/api/chat", req)
	elapsed := time.Since(start)
	metrics.RecordOrchestratorRequest("chat", elapsed, err)

	if err != nil {
		return nil, elapsed, err
	}
	logging.Debug().
		Str("agent_id", resp.AgentID).
		Dur("elapsed", elapsed).
		Msg("orchestrator responded")
	return resp, elapsed, nil
}

// Clarify posts a clarification answer to the orchestrator's dedicated
// resolution endpoint and returns the final response.
func (g *Gateway) Clarify(ctx context.Context, req *models.OrchestratorClarifyRequest) (*models.OrchestratorResponse, time.Duration, error) {
	start := time.Now()
	resp, err := g.execute(ctx, "/api/chat/clarify", req)
	elapsed := time.Since(start)
	metrics.RecordOrchestratorRequest("clarify", elapsed, err)
	return resp, elapsed, err
}

// execute runs one POST exchange, optionally through the circuit breaker.
func (g *Gateway) execute(ctx context.Context, path string, payload interface{}) (*models.OrchestratorResponse, error) {
	if g.breaker == nil {
		return g.post(ctx, path, payload)
	}

	resp, err := g.breaker.Execute(func() (*models.OrchestratorResponse, error) {
		return g.post(ctx, path, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &Error{
				Kind:    KindUnreachable,
				Message: "orchestrator circuit is open after repeated failures",
			}
		}
		return nil, err
	}
	return resp, nil
}

func (g *Gateway) post(ctx context.Context, path string, payload interface{}) (*models.OrchestratorResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindSchema, Message: fmt.Sprintf("failed to encode request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, Message: fmt.Sprintf("failed to build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, g.classifyTransportError(err)
	}
	defer httpResp.Body.Close() //nolint:errcheck // close is best-effort

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBodyBytes))
		logging.Error().
			Int("status", httpResp.StatusCode).
			Str("path", path).
			Str("body", string(snippet)).
			Msg("orchestrator returned error status")
		return nil, &Error{
			Kind:       KindHTTP,
			Message:    fmt.Sprintf("orchestrator returned HTTP %d: %s", httpResp.StatusCode, snippet),
			StatusCode: httpResp.StatusCode,
		}
	}

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, g.classifyTransportError(err)
	}

	var resp models.OrchestratorResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		logging.Error().Err(err).Str("path", path).Msg("failed to parse orchestrator response")
		return nil, &Error{Kind: KindParse, Message: "orchestrator returned an invalid JSON response"}
	}
	return &resp, nil
}

// classifyTransportError maps a net/http client error to the gateway
// taxonomy: timeouts first, everything else is unreachable.
func (g *Gateway) classifyTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "orchestrator request timed out"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "orchestrator request timed out"}
	}
	logging.Error().Err(err).Str("base_url", g.baseURL).Msg("cannot reach orchestrator")
	return &Error{
		Kind:    KindUnreachable,
		Message: fmt.Sprintf("cannot connect to orchestrator at %s", g.baseURL),
	}
}

// CheckHealth probes GET /api/health. It never returns an error value.
func (g *Gateway) CheckHealth(ctx context.Context) HealthStatus {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/health", nil)
	if err != nil {
		return HealthStatus{Available: false, Status: "error", ResponseTimeMS: -1, Error: err.Error()}
	}

	httpResp, err := g.client.Do(httpReq)
	elapsed := time.Since(start)
	metrics.RecordOrchestratorRequest("health", elapsed, err)

	if err != nil {
		classified := g.classifyTransportError(err)
		status := "offline"
		if classified.Kind == KindTimeout {
			status = "timeout"
		}
		return HealthStatus{Available: false, Status: status, ResponseTimeMS: -1, Error: classified.Message}
	}
	defer httpResp.Body.Close() //nolint:errcheck // close is best-effort
	_, _ = io.Copy(io.Discard, httpResp.Body)

	if httpResp.StatusCode == http.StatusOK {
		return HealthStatus{Available: true, Status: "healthy", ResponseTimeMS: elapsed.Milliseconds()}
	}
	return HealthStatus{
		Available:      false,
		Status:         fmt.Sprintf("unhealthy (HTTP %d)", httpResp.StatusCode),
		ResponseTimeMS: elapsed.Milliseconds(),
		Error:          fmt.Sprintf("health check returned status %d", httpResp.StatusCode),
	}
}

// AgentStatuses fetches per-agent availability from GET
// /api/agents/status. Returns a map of agent ID to status string; any
// failure yields an empty map so callers can default agents to offline.
func (g *Gateway) AgentStatuses(ctx context.Context) map[string]string {
	statuses := make(map[string]string)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/agents/status", nil)
	if err != nil {
		return statuses
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		logging.Debug().Err(err).Msg("agent status fetch failed")
		return statuses
	}
	defer httpResp.Body.Close() //nolint:errcheck // close is best-effort

	if httpResp.StatusCode != http.StatusOK {
		return statuses
	}

	var body struct {
		Agents []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"agents"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&body); err != nil {
		logging.Debug().Err(err).Msg("agent status response is not valid JSON")
		return statuses
	}
	for _, agent := range body.Agents {
		if agent.ID != "" {
			statuses[agent.ID] = agent.Status
		}
	}
	return statuses
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
