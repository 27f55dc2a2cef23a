// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

// Package config provides centralized configuration for ChatRelay.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml) for persistent settings
//  3. Environment Variables: CHATRELAY_* variables override any setting
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Assistant    AssistantConfig    `koanf:"assistant"`
	Auth         AuthConfig         `koanf:"auth"`
	Database     DatabaseConfig     `koanf:"database"`
	History      HistoryConfig      `koanf:"history"`
	WebSocket    WebSocketConfig    `koanf:"websocket"`
	Security     SecurityConfig     `koanf:"security"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// OrchestratorConfig holds settings for the upstream agent orchestrator.
type OrchestratorConfig struct {
	// URL is the orchestrator base URL, e.g. http://localhost:8001.
	URL string `koanf:"url"`

	// ConnectTimeout bounds TCP connection establishment.
	ConnectTimeout time.Duration `koanf:"connect_timeout"`

	// ReadTimeout bounds the full request/response exchange. Agent
	// dispatches can legitimately take minutes.
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// BreakerEnabled wires a circuit breaker around upstream calls.
	BreakerEnabled bool `koanf:"breaker_enabled"`
}

// AssistantConfig holds settings for the optional AI-routed chat path.
// When APIKey is empty the relay always uses direct orchestrator dispatch.
type AssistantConfig struct {
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	Model       string        `koanf:"model"`
	MaxTokens   int           `koanf:"max_tokens"`
	Temperature float32       `koanf:"temperature"`
	Timeout     time.Duration `koanf:"timeout"`
}

// Authentication modes.
const (
	AuthModeDev        = "dev"
	AuthModeIntrospect = "introspect"
	AuthModeJWT        = "jwt"
)

// AuthConfig holds authentication settings.
//
// Modes:
//   - dev: every request runs as a static development user
//   - introspect: Bearer tokens are validated against the identity
//     provider's profile endpoint, results cached with a TTL
//   - jwt: HS256-signed tokens validated locally
type AuthConfig struct {
	Mode          string        `koanf:"mode"`
	JWTSecret     string        `koanf:"jwt_secret"`
	InstanceURL   string        `koanf:"instance_url"`
	CacheTTL      time.Duration `koanf:"cache_ttl"`
	CacheCapacity int           `koanf:"cache_capacity"`
}

// DatabaseConfig holds SQLite persistence settings.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// HistoryConfig holds in-memory conversation cache bounds.
type HistoryConfig struct {
	MaxMessagesPerConversation int `koanf:"max_messages_per_conversation"`
	MaxConversations           int `koanf:"max_conversations"`
	MaxSessionAgents           int `koanf:"max_session_agents"`
}

// WebSocketConfig holds websocket transport settings.
type WebSocketConfig struct {
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	WriteWait         time.Duration `koanf:"write_wait"`
	MaxMessageSize    int64         `koanf:"max_message_size"`
	FrameRateLimit    float64       `koanf:"frame_rate_limit"`
	FrameRateBurst    int           `koanf:"frame_rate_burst"`
}

// SecurityConfig holds CORS and rate limiting settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. These are applied
// first, then overridden by config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // SSE responses must not be write-bounded
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Orchestrator: OrchestratorConfig{
			URL:            "http://localhost:8001",
			ConnectTimeout: 5 * time.Second,
			ReadTimeout:    120 * time.Second,
			BreakerEnabled: true,
		},
		Assistant: AssistantConfig{
			APIKey:      "",
			BaseURL:     "",
			Model:       "gpt-4o",
			MaxTokens:   4096,
			Temperature: 0.2,
			Timeout:     60 * time.Second,
		},
		Auth: AuthConfig{
			Mode:          "dev",
			JWTSecret:     "",
			InstanceURL:   "",
			CacheTTL:      5 * time.Minute,
			CacheCapacity: 256,
		},
		Database: DatabaseConfig{
			Path: "/data/chatrelay.db",
		},
		History: HistoryConfig{
			MaxMessagesPerConversation: 20,
			MaxConversations:           500,
			MaxSessionAgents:           1000,
		},
		WebSocket: WebSocketConfig{
			HeartbeatInterval: 30 * time.Second,
			WriteWait:         10 * time.Second,
			MaxMessageSize:    512 * 1024,
			FrameRateLimit:    20,
			FrameRateBurst:    40,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for inconsistencies. It returns the first
// problem found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Orchestrator.URL == "" {
		return fmt.Errorf("orchestrator.url is required")
	}
	parsed, err := url.Parse(c.Orchestrator.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("orchestrator.url %q is not a valid URL", c.Orchestrator.URL)
	}
	if c.Orchestrator.ConnectTimeout <= 0 {
		return fmt.Errorf("orchestrator.connect_timeout must be positive")
	}
	if c.Orchestrator.ReadTimeout <= 0 {
		return fmt.Errorf("orchestrator.read_timeout must be positive")
	}

	switch c.Auth.Mode {
	case "dev":
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required when auth.mode is jwt")
		}
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
		}
	case "introspect":
		if c.Auth.InstanceURL == "" {
			return fmt.Errorf("auth.instance_url is required when auth.mode is introspect")
		}
	default:
		return fmt.Errorf("auth.mode must be one of dev, jwt, introspect; got %q", c.Auth.Mode)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.History.MaxMessagesPerConversation <= 0 {
		return fmt.Errorf("history.max_messages_per_conversation must be positive")
	}
	if c.History.MaxConversations <= 0 {
		return fmt.Errorf("history.max_conversations must be positive")
	}
	if c.History.MaxSessionAgents <= 0 {
		return fmt.Errorf("history.max_session_agents must be positive")
	}

	if c.WebSocket.HeartbeatInterval <= 0 {
		return fmt.Errorf("websocket.heartbeat_interval must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("websocket.max_message_size must be positive")
	}

	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs <= 0 {
			return fmt.Errorf("security.rate_limit_reqs must be positive")
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("security.rate_limit_window must be positive")
		}
	}

	return nil
}

// Addr returns the host:port listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
