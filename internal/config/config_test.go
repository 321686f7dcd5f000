package config_test

import (
	"testing"
	"time"

	"github.com/fluxchat/relay/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.Default()

	if cfg.Port != ":8080" {
		t.Errorf("expected default port :8080, got %q", cfg.Port)
	}
	if cfg.Broker.MaxRetries != 10 {
		t.Errorf("expected default retry cap 10, got %d", cfg.Broker.MaxRetries)
	}
	if cfg.Broker.BaseDelay <= 0 || cfg.Broker.MaxDelay < cfg.Broker.BaseDelay {
		t.Errorf("backoff defaults inconsistent: base %v max %v", cfg.Broker.BaseDelay, cfg.Broker.MaxDelay)
	}
	if cfg.RateLimit.Burst <= 0 {
		t.Errorf("expected positive rate limit burst, got %d", cfg.RateLimit.Burst)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("API_PORT", ":3001")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example.com, http://b.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "20")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("BROKER_MAX_RETRIES", "5")
	t.Setenv("BROKER_BASE_DELAY", "250ms")
	t.Setenv("BROKER_MAX_DELAY", "3")
	t.Setenv("DATABASE_URL", "postgres://test")
	t.Setenv("JWT_SECRET", "sssh")

	cfg := config.FromEnv()

	if cfg.Port != ":9090" {
		t.Errorf("expected port normalized to :9090, got %q", cfg.Port)
	}
	if cfg.APIPort != ":3001" {
		t.Errorf("expected api port :3001, got %q", cfg.APIPort)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.example.com" {
		t.Errorf("unexpected origins: %v", cfg.AllowedOrigins)
	}
	if cfg.MaxMessageSize != 1024 {
		t.Errorf("expected max message size 1024, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 20 {
		t.Errorf("expected burst 20, got %d", cfg.RateLimit.Burst)
	}
	if cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("expected refill interval 2s, got %v", cfg.RateLimit.RefillInterval)
	}
	if cfg.Broker.URL != "nats://broker:4222" {
		t.Errorf("unexpected broker url %q", cfg.Broker.URL)
	}
	if cfg.Broker.MaxRetries != 5 {
		t.Errorf("expected retry cap 5, got %d", cfg.Broker.MaxRetries)
	}
	if cfg.Broker.BaseDelay != 250*time.Millisecond {
		t.Errorf("expected base delay 250ms, got %v", cfg.Broker.BaseDelay)
	}
	// bare integers are interpreted as seconds
	if cfg.Broker.MaxDelay != 3*time.Second {
		t.Errorf("expected max delay 3s, got %v", cfg.Broker.MaxDelay)
	}
	if cfg.DatabaseURL != "postgres://test" {
		t.Errorf("unexpected database url %q", cfg.DatabaseURL)
	}
	if cfg.JWTSecret != "sssh" {
		t.Errorf("unexpected jwt secret %q", cfg.JWTSecret)
	}
}

func TestFromEnvRejectsGarbageValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "banana")
	t.Setenv("RATE_LIMIT_BURST", "-3")
	t.Setenv("BROKER_MAX_RETRIES", "0")

	cfg := config.FromEnv()
	defaults := config.Default()

	if cfg.MaxMessageSize != defaults.MaxMessageSize {
		t.Errorf("garbage size should fall back to default, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != defaults.RateLimit.Burst {
		t.Errorf("negative burst should fall back to default, got %d", cfg.RateLimit.Burst)
	}
	if cfg.Broker.MaxRetries != defaults.Broker.MaxRetries {
		t.Errorf("zero retries should fall back to default, got %d", cfg.Broker.MaxRetries)
	}
}
