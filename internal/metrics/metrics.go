// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

// Package metrics provides Prometheus instrumentation for:
//   - SSE streaming pipeline (streams started, outcomes, duration)
//   - Orchestrator gateway calls (outcomes, latency, circuit breaker state)
//   - WebSocket connections and broadcasts
//   - Conversation history cache occupancy
//   - API endpoint latency and throughput
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Streaming Metrics
	SSEStreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sse_streams_total",
			Help: "Total number of SSE streams by terminal outcome",
		},
		[]string{"outcome"}, // "completed", "clarification", "error"
	)

	SSEStreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sse_stream_duration_seconds",
			Help:    "Duration of SSE streams from start to terminal event",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// Orchestrator Gateway Metrics
	OrchestratorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_requests_total",
			Help: "Total number of orchestrator requests by operation and outcome",
		},
		[]string{"operation", "outcome"}, // operation: "chat", "clarify", "health"
	)

	OrchestratorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_request_duration_seconds",
			Help:    "Duration of orchestrator requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// WebSocket Metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WebSocketBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_broadcasts_total",
			Help: "Total number of broadcast operations",
		},
	)

	WebSocketSendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_send_failures_total",
			Help: "Total number of failed WebSocket writes (connection removed)",
		},
	)

	WebSocketMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of inbound WebSocket messages by type",
		},
		[]string{"type"}, // "chat", "status", "heartbeat", "invalid"
	)

	// History Cache Metrics
	HistoryConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "history_conversations",
			Help: "Current number of conversations held in the in-memory cache",
		},
	)

	HistoryEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "history_evictions_total",
			Help: "Total number of conversations evicted from the cache",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordStream records a terminated SSE stream.
func RecordStream(outcome string, duration time.Duration) {
	SSEStreamsTotal.WithLabelValues(outcome).Inc()
	SSEStreamDuration.Observe(duration.Seconds())
}

// RecordOrchestratorRequest records a gateway call.
func RecordOrchestratorRequest(operation string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	OrchestratorRequestsTotal.WithLabelValues(operation, outcome).Inc()
	OrchestratorRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAPIRequest records an HTTP API request.
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
