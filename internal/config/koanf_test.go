// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Orchestrator.ConnectTimeout != 5*time.Second {
		t.Errorf("expected connect timeout 5s, got %v", cfg.Orchestrator.ConnectTimeout)
	}
	if cfg.Orchestrator.ReadTimeout != 120*time.Second {
		t.Errorf("expected read timeout 120s, got %v", cfg.Orchestrator.ReadTimeout)
	}
	if cfg.History.MaxMessagesPerConversation != 20 {
		t.Errorf("expected 20 messages per conversation, got %d", cfg.History.MaxMessagesPerConversation)
	}
	if cfg.History.MaxConversations != 500 {
		t.Errorf("expected 500 conversations, got %d", cfg.History.MaxConversations)
	}
	if cfg.Auth.Mode != "dev" {
		t.Errorf("expected default auth mode dev, got %q", cfg.Auth.Mode)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CHATRELAY_SERVER_PORT", "9090")
	t.Setenv("CHATRELAY_ORCHESTRATOR_URL", "http://orchestrator:8001")
	t.Setenv("CHATRELAY_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090 from env, got %d", cfg.Server.Port)
	}
	if cfg.Orchestrator.URL != "http://orchestrator:8001" {
		t.Errorf("expected orchestrator URL from env, got %q", cfg.Orchestrator.URL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Logging.Level)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 8443\nauth:\n  mode: dev\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Port != 8443 {
		t.Errorf("expected port 8443 from file, got %d", cfg.Server.Port)
	}
}

func TestLoadCORSOriginsEnv(t *testing.T) {
	t.Setenv("CHATRELAY_SECURITY_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(cfg.Security.CORSOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.Security.CORSOrigins)
	}
	if cfg.Security.CORSOrigins[0] != "https://a.example" || cfg.Security.CORSOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", cfg.Security.CORSOrigins)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"empty orchestrator url", func(c *Config) { c.Orchestrator.URL = "" }},
		{"malformed orchestrator url", func(c *Config) { c.Orchestrator.URL = "not a url" }},
		{"negative connect timeout", func(c *Config) { c.Orchestrator.ConnectTimeout = -1 }},
		{"unknown auth mode", func(c *Config) { c.Auth.Mode = "basic" }},
		{"jwt without secret", func(c *Config) { c.Auth.Mode = "jwt"; c.Auth.JWTSecret = "" }},
		{"short jwt secret", func(c *Config) { c.Auth.Mode = "jwt"; c.Auth.JWTSecret = "short" }},
		{"introspect without instance", func(c *Config) { c.Auth.Mode = "introspect" }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero history cap", func(c *Config) { c.History.MaxConversations = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := defaultConfig().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}
