package config

import (
	"strings"
	"testing"
	"time"

	"github.com/ashureev/mediai-broker/internal/domain"
)

func TestLoadNormalizesValues(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("GRPC_PORT", "9090")
	t.Setenv("DB_PATH", "./data/mediai.db")
	t.Setenv("SESSION_TTL", "60m")
	t.Setenv("ASSISTANT_REPLY_DELAY", "1500ms")
	t.Setenv("QUOTE_CURRENCY", "usd")
	t.Setenv("QUOTE_PERIOD", "Annual")
	t.Setenv("RATE_LIMIT_REQUESTS", "30")
	t.Setenv("RATE_LIMIT_WINDOW", "1m")
	t.Setenv("SSE_KEEPALIVE_INTERVAL", "10s")
	t.Setenv("MAX_REQUEST_BODY_SIZE", "1048576")
	t.Setenv("DB_MAX_RETRIES", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Assistant.ReplyDelay != 1500*time.Millisecond {
		t.Errorf("reply delay = %v", cfg.Assistant.ReplyDelay)
	}
	if cfg.Quote.Currency != "USD" {
		t.Errorf("currency = %q, want USD", cfg.Quote.Currency)
	}
	if cfg.Quote.Period != domain.PeriodAnnual {
		t.Errorf("period = %q, want annual", cfg.Quote.Period)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("session ttl = %v", cfg.SessionTTL)
	}
}

func TestLoadRejectsUnknownCurrency(t *testing.T) {
	t.Setenv("QUOTE_CURRENCY", "DOLLARS")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "QUOTE_CURRENCY") {
		t.Fatalf("err = %v, want QUOTE_CURRENCY error", err)
	}
}

func TestLoadRejectsUnknownPeriod(t *testing.T) {
	t.Setenv("QUOTE_PERIOD", "weekly")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "QUOTE_PERIOD") {
		t.Fatalf("err = %v, want QUOTE_PERIOD error", err)
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"250ms", 250 * time.Millisecond},
		{"2m", 2 * time.Minute},
		{"1500", 1500 * time.Millisecond},
		{"soon", time.Second},
	}
	for _, tt := range tests {
		t.Setenv("MEDIAI_TEST_DURATION", tt.value)
		if got := getEnvDuration("MEDIAI_TEST_DURATION", time.Second); got != tt.want {
			t.Errorf("getEnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"yes", true},
		{"ON", true},
		{"0", false},
		{"maybe", true},
	}
	for _, tt := range tests {
		t.Setenv("MEDIAI_TEST_BOOL", tt.value)
		if got := getEnvBool("MEDIAI_TEST_BOOL", true); got != tt.want {
			t.Errorf("getEnvBool(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	cfg := &Config{FrontendURL: "https://broker.example.com/"}
	got := cfg.AllowedOrigins()
	if len(got) != 1 || got[0] != "https://broker.example.com" {
		t.Fatalf("AllowedOrigins = %v", got)
	}
}
