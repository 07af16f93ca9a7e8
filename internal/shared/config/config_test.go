package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("PORT", "")
	t.Setenv("CORS_ALLOW_ORIGINS", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Fatalf("expected env dev, got %q", cfg.Env)
	}
	if cfg.ObjectStoreType != "local" {
		t.Fatalf("expected local object store, got %q", cfg.ObjectStoreType)
	}
	if cfg.Polling.Interval != 5*time.Second || cfg.Polling.MaxAttempts != 120 {
		t.Fatalf("unexpected polling defaults: %+v", cfg.Polling)
	}
	if cfg.Vendors.RunwareBaseURL != "https://api.runware.ai" {
		t.Fatalf("unexpected runware base url %q", cfg.Vendors.RunwareBaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("OBJECT_STORE", "S3")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("ADMIN_EMAILS", "Root@Example.com")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("POLL_MAX_ATTEMPTS", "3")

	cfg := Load()
	if cfg.Env != "production" {
		t.Fatalf("expected production, got %q", cfg.Env)
	}
	if cfg.ObjectStoreType != "s3" {
		t.Fatalf("expected s3, got %q", cfg.ObjectStoreType)
	}
	if len(cfg.CORSAllowOrigin) != 2 || cfg.CORSAllowOrigin[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %#v", cfg.CORSAllowOrigin)
	}
	if !cfg.IsAdmin(" root@example.com ") {
		t.Fatalf("expected admin match to be case-insensitive")
	}
	if cfg.IsAdmin("someone@example.com") {
		t.Fatalf("unexpected admin match")
	}
	if cfg.Polling.Interval != 250*time.Millisecond || cfg.Polling.MaxAttempts != 3 {
		t.Fatalf("unexpected polling: %+v", cfg.Polling)
	}
	if cfg.IsDevLike() {
		t.Fatalf("production must not be dev-like")
	}
}

func TestNormalizeEnv(t *testing.T) {
	tests := map[string]string{
		"":            "dev",
		"development": "dev",
		"LOCAL":       "local",
		"staging":     "staging",
		"prod":        "production",
		"weird":       "dev",
	}
	for in, want := range tests {
		if got := normalizeEnv(in); got != want {
			t.Fatalf("normalizeEnv(%q) = %q, want %q", in, got, want)
		}
	}
}
