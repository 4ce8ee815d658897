package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "STORE_DRIVER", "SLOT_STEP_MINUTES", "LAST_SLOT_POLICY", "FALLBACK_TIME", "KAFKA_BROKERS"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.StoreDriver != "memory" {
		t.Fatalf("expected memory store by default, got %s", cfg.StoreDriver)
	}
	if cfg.SlotStepMinutes != 60 || cfg.DefaultServiceMinutes != 60 {
		t.Fatalf("expected hourly slots by default, got step=%d duration=%d", cfg.SlotStepMinutes, cfg.DefaultServiceMinutes)
	}
	if cfg.LastSlotPolicy != "strict" {
		t.Fatalf("expected strict last-slot policy, got %s", cfg.LastSlotPolicy)
	}
	if cfg.FallbackDayOffset != 1 || cfg.FallbackTime != "14:00" {
		t.Fatalf("unexpected fallback %d %s", cfg.FallbackDayOffset, cfg.FallbackTime)
	}
	if cfg.StoreTimeout != 5*time.Second {
		t.Fatalf("expected 5s store timeout, got %s", cfg.StoreTimeout)
	}
	if cfg.KafkaBrokers != nil {
		t.Fatalf("expected no kafka brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("SLOT_STEP_MINUTES", "30")
	t.Setenv("LAST_SLOT_POLICY", "inclusive")
	t.Setenv("STORE_TIMEOUT", "2s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://salon.example")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port override, got %s", cfg.Port)
	}
	if cfg.StoreDriver != "postgres" {
		t.Fatalf("expected lower-cased driver, got %s", cfg.StoreDriver)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("unexpected database url %s", cfg.DatabaseURL)
	}
	if cfg.SlotStepMinutes != 30 || cfg.LastSlotPolicy != "inclusive" {
		t.Fatalf("unexpected slot config %d %s", cfg.SlotStepMinutes, cfg.LastSlotPolicy)
	}
	if cfg.StoreTimeout != 2*time.Second {
		t.Fatalf("unexpected store timeout %s", cfg.StoreTimeout)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if len(cfg.CORSAllowedOrigins) != 1 {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("unexpected rate %v", cfg.RateLimitRPS)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("SLOT_STEP_MINUTES", "sixty")
	t.Setenv("STORE_TIMEOUT", "soon")
	t.Setenv("REDIS_TLS", "maybe")
	cfg := Load()
	if cfg.SlotStepMinutes != 60 {
		t.Fatalf("expected default step, got %d", cfg.SlotStepMinutes)
	}
	if cfg.StoreTimeout != 5*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.StoreTimeout)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected tls false")
	}
}
