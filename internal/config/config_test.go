package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.ConversationTTL != 24*time.Hour {
		t.Errorf("expected 24h conversation TTL, got %v", cfg.ConversationTTL)
	}
	if cfg.Completion.Enabled() {
		t.Error("expected completion disabled without API key")
	}
	if cfg.Completion.HistoryLimit != -1 {
		t.Errorf("expected full history replay by default, got %d", cfg.Completion.HistoryLimit)
	}
	if cfg.RateLimit.RequestsPerWindow != 20 || cfg.RateLimit.WindowDuration != time.Minute {
		t.Errorf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.FallbackContact == "" {
		t.Error("expected a default fallback contact")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("COMPLETION_API_KEY", "sk-test")
	t.Setenv("COMPLETION_MODEL", "gpt-4o")
	t.Setenv("COMPLETION_HISTORY_LIMIT", "8")
	t.Setenv("CONVERSATION_TTL", "2h")
	t.Setenv("ADMIN_ACCESS_KEY", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Port)
	}
	if !cfg.Completion.Enabled() || cfg.Completion.Model != "gpt-4o" {
		t.Errorf("unexpected completion config: %+v", cfg.Completion)
	}
	if cfg.Completion.HistoryLimit != 8 {
		t.Errorf("expected history limit 8, got %d", cfg.Completion.HistoryLimit)
	}
	if cfg.ConversationTTL != 2*time.Hour {
		t.Errorf("expected 2h TTL, got %v", cfg.ConversationTTL)
	}
	if cfg.AdminAccessKey != "secret" {
		t.Errorf("expected admin key, got %q", cfg.AdminAccessKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"empty fallback contact", func(c *Config) { c.FallbackContact = "" }},
		{"zero ttl", func(c *Config) { c.ConversationTTL = 0 }},
		{"zero rate limit", func(c *Config) { c.RateLimit.RequestsPerWindow = 0 }},
		{"history limit below -1", func(c *Config) { c.Completion.HistoryLimit = -2 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{FrontendURL: ""}
	if !cfg.IsDevelopment() {
		t.Error("empty frontend URL should be development")
	}
	cfg.FrontendURL = "http://localhost:5173"
	if !cfg.IsDevelopment() {
		t.Error("localhost frontend should be development")
	}
	cfg.FrontendURL = "https://consultdesk.example"
	if cfg.IsDevelopment() {
		t.Error("production frontend should not be development")
	}
}
