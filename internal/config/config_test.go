package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DEBOUNCE_WINDOW", "")
	t.Setenv("DRAFT_STORE", "")
	t.Setenv("LLM_TIMEOUT", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.DebounceWindow != 10*time.Second {
		t.Fatalf("expected 10s debounce window, got %s", cfg.DebounceWindow)
	}
	if cfg.GuardTTL() != 11*time.Second {
		t.Fatalf("expected guard ttl of window+margin, got %s", cfg.GuardTTL())
	}
	if cfg.DraftStore != "redis" {
		t.Fatalf("expected redis draft store by default, got %s", cfg.DraftStore)
	}
	if cfg.LLMTimeout != 30*time.Second {
		t.Fatalf("expected 30s llm timeout, got %s", cfg.LLMTimeout)
	}
	if cfg.OpeningTime != "11:00" || cfg.ClosingTime != "23:30" {
		t.Fatalf("unexpected operating hours %s-%s", cfg.OpeningTime, cfg.ClosingTime)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEBOUNCE_WINDOW", "3s")
	t.Setenv("DEBOUNCE_SCHEDULER", "ASYNQ")
	t.Setenv("DRAFT_STORE", "postgres")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("WHATSAPP_SENDS_PER_SECOND", "5.5")
	cfg := Load()
	if cfg.Port != "9090" || cfg.LogLevel != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.DebounceWindow != 3*time.Second {
		t.Fatalf("expected 3s window, got %s", cfg.DebounceWindow)
	}
	if cfg.DebounceScheduler != "asynq" || cfg.DraftStore != "postgres" {
		t.Fatalf("expected lower-cased selectors, got %s/%s", cfg.DebounceScheduler, cfg.DraftStore)
	}
	if !cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue enabled")
	}
	if cfg.WhatsAppSendsPerSecond != 5.5 {
		t.Fatalf("expected 5.5 sends/sec, got %v", cfg.WhatsAppSendsPerSecond)
	}
}

func TestExternalTimeoutsAreCapped(t *testing.T) {
	t.Setenv("LLM_TIMEOUT", "2m")
	t.Setenv("BOOKING_API_TIMEOUT", "5s")
	cfg := Load()
	if cfg.LLMTimeout != 30*time.Second {
		t.Fatalf("expected llm timeout capped at 30s, got %s", cfg.LLMTimeout)
	}
	if cfg.BookingAPITimeout != 5*time.Second {
		t.Fatalf("expected 5s booking timeout, got %s", cfg.BookingAPITimeout)
	}
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("DEBOUNCE_WINDOW", "soon")
	cfg := Load()
	if cfg.DebounceWindow != 10*time.Second {
		t.Fatalf("expected fallback to default, got %s", cfg.DebounceWindow)
	}
}
