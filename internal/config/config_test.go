package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SIMPLYBOOK_MOCK_MODE", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SimplyBookMockMode {
		t.Fatalf("expected mock mode disabled by default")
	}
	if cfg.BookingTimeout != 10*time.Second {
		t.Fatalf("expected default booking timeout, got %s", cfg.BookingTimeout)
	}
	if cfg.DedupTTL != 24*time.Hour {
		t.Fatalf("expected default dedup ttl, got %s", cfg.DedupTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("META_APP_SECRET", "shh")
	t.Setenv("BOOKING_TIMEOUT", "3s")
	t.Setenv("WORKER_COUNT", "8")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port override, got %s", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
	if cfg.BookingTimeout != 3*time.Second {
		t.Fatalf("expected booking timeout override, got %s", cfg.BookingTimeout)
	}
	if cfg.WorkerCount != 8 {
		t.Fatalf("expected worker count override, got %d", cfg.WorkerCount)
	}
}

func TestValidateProductionGuards(t *testing.T) {
	cfg := &Config{
		Env:                "production",
		MetaAppSecret:      "secret",
		WebhookVerifyToken: "token",
		AdminJWTSecret:     "jwt",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid production config, got %v", err)
	}

	cfg.SimplyBookMockMode = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected mock mode to be rejected in production")
	}

	cfg.SimplyBookMockMode = false
	cfg.MetaAppSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing app secret to be rejected in production")
	}
}

func TestValidateDevelopmentPermissive(t *testing.T) {
	cfg := &Config{Env: "development", SimplyBookMockMode: true}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("development config should not be validated strictly: %v", err)
	}
}
