package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CALL_TIMEOUT", "")
	t.Setenv("REMINDER_LEAD_TIME", "")
	t.Setenv("KAFKA_BROKERS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("expected empty database url, got %s", cfg.DatabaseURL)
	}
	if cfg.CallTimeout != 10*time.Second {
		t.Fatalf("expected default call timeout, got %s", cfg.CallTimeout)
	}
	if cfg.CallMaxRetries != 3 {
		t.Fatalf("expected default max retries, got %d", cfg.CallMaxRetries)
	}
	if cfg.ReminderLeadTime != 24*time.Hour {
		t.Fatalf("expected default reminder lead time, got %s", cfg.ReminderLeadTime)
	}
	if cfg.KafkaBrokers != nil {
		t.Fatalf("expected no kafka brokers by default, got %v", cfg.KafkaBrokers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("CALL_TIMEOUT", "3s")
	t.Setenv("CALL_MAX_RETRIES", "5")
	t.Setenv("REMINDER_LEAD_TIME", "2h")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("EMAIL_PROVIDER", " SES ")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.CallTimeout != 3*time.Second || cfg.CallMaxRetries != 5 {
		t.Fatalf("expected call policy override, got %s/%d", cfg.CallTimeout, cfg.CallMaxRetries)
	}
	if cfg.ReminderLeadTime != 2*time.Hour {
		t.Fatalf("expected lead time override, got %s", cfg.ReminderLeadTime)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected normalized email provider, got %q", cfg.EmailProvider)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("expected two kafka brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("CALL_TIMEOUT", "soon")
	t.Setenv("CALL_MAX_RETRIES", "many")
	cfg := Load()
	if cfg.CallTimeout != 10*time.Second {
		t.Fatalf("expected fallback timeout, got %s", cfg.CallTimeout)
	}
	if cfg.CallMaxRetries != 3 {
		t.Fatalf("expected fallback retries, got %d", cfg.CallMaxRetries)
	}
}
