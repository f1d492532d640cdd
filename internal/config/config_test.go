package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("PMS_VENDOR", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.PMSVendor != "local" {
		t.Fatalf("expected default vendor local, got %s", cfg.PMSVendor)
	}
	if cfg.BreakerFailureThreshold != 5 {
		t.Fatalf("expected default failure threshold, got %d", cfg.BreakerFailureThreshold)
	}
	if cfg.BreakerCooldown != time.Minute {
		t.Fatalf("expected default cooldown, got %s", cfg.BreakerCooldown)
	}
	if cfg.RateLimitPerMinute != 60 {
		t.Fatalf("expected default rate limit, got %d", cfg.RateLimitPerMinute)
	}
	if cfg.ReferenceCacheTTL != 5*time.Minute {
		t.Fatalf("expected default cache TTL, got %s", cfg.ReferenceCacheTTL)
	}
	if cfg.UseMockPMS {
		t.Fatal("expected mock mode disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PMS_VENDOR", " CareStack ")
	t.Setenv("PMS_BASE_URL", "https://api.carestack.example")
	t.Setenv("CARESTACK_CLIENT_ID", "cid")
	t.Setenv("CARESTACK_CLIENT_SECRET", "secret")
	t.Setenv("PMS_BREAKER_COOLDOWN", "90s")
	t.Setenv("PMS_RETRY_BASE_DELAY", "250ms")
	t.Setenv("USE_MOCK_PMS", "true")
	t.Setenv("MOCK_PMS_SEED", "42")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.PMSVendor != "carestack" {
		t.Fatalf("expected trimmed lowercase vendor, got %q", cfg.PMSVendor)
	}
	if cfg.CareStackClientID != "cid" || cfg.CareStackClientSecret != "secret" {
		t.Fatal("expected carestack credential overrides")
	}
	if cfg.BreakerCooldown != 90*time.Second {
		t.Fatalf("expected cooldown override, got %s", cfg.BreakerCooldown)
	}
	if cfg.RetryBaseDelay != 250*time.Millisecond {
		t.Fatalf("expected retry base delay override, got %s", cfg.RetryBaseDelay)
	}
	if !cfg.UseMockPMS {
		t.Fatal("expected mock mode enabled")
	}
	if cfg.MockPMSSeed != 42 {
		t.Fatalf("expected seed override, got %d", cfg.MockPMSSeed)
	}
}
