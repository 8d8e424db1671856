package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "STATIC_DIR", "ALLOWED_ORIGINS", "CLOCK_INTERVAL_MS", "DEFAULT_BASE_MINS",
		"DEFAULT_INC", "NAME_MAX_RUNES", "SEND_BUFFER", "PING_INTERVAL_SEC", "PING_TIMEOUT_SEC",
		"REDIS_URL", "DATABASE_URL", "RESULT_WEBHOOK_URL", "RESULT_WEBHOOK_TOKEN", "MESSAGES_DIR"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != ":8080" || cfg.StaticDir != "web" {
		t.Fatalf("unexpected listen config %+v", cfg)
	}
	if cfg.ClockInterval != time.Second || cfg.DefaultBaseMins != 2 || cfg.DefaultInc != 0 || cfg.NameMaxRunes != 24 {
		t.Fatalf("unexpected room defaults %+v", cfg)
	}
	if cfg.PingInterval != 2*time.Second || cfg.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected ping defaults %+v", cfg)
	}
	if cfg.RedisURL != "" || cfg.DatabaseURL != "" || cfg.ResultWebhookURL != "" {
		t.Fatalf("integrations should be off by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("CLOCK_INTERVAL_MS", "250")
	t.Setenv("DEFAULT_BASE_MINS", "5")
	t.Setenv("DEFAULT_INC", "3")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9000 || cfg.ClockInterval != 250*time.Millisecond || cfg.DefaultBaseMins != 5 || cfg.DefaultInc != 3 {
		t.Fatalf("overrides not applied %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.RedisURL != "redis://localhost:6379/1" {
		t.Fatalf("unexpected redis url %q", cfg.RedisURL)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"PORT":               "http",
		"DEFAULT_BASE_MINS":  "500",
		"PING_TIMEOUT_SEC":   "1",
		"RESULT_WEBHOOK_URL": "ftp://x",
	}
	for k, v := range cases {
		clearEnv(t)
		t.Setenv(k, v)
		if _, err := Load(); err == nil {
			t.Fatalf("%s=%s: expected error", k, v)
		}
	}
}
