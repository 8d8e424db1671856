package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig holds process settings read from the environment.
type AppConfig struct {
	Port      int
	StaticDir string

	AllowedOrigins []string

	ClockInterval   time.Duration
	DefaultBaseMins int
	DefaultInc      int
	NameMaxRunes    int

	SendBuffer   int
	PingInterval time.Duration
	PingTimeout  time.Duration

	RedisURL           string
	DatabaseURL        string
	ResultWebhookURL   string
	ResultWebhookToken string
	MessagesDir        string
}

// Addr is the listen address derived from Port.
func (c *AppConfig) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// Load reads AppConfig from the environment, applying defaults.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Port:            8080,
		StaticDir:       "web",
		ClockInterval:   time.Second,
		DefaultBaseMins: 2,
		DefaultInc:      0,
		NameMaxRunes:    24,
		SendBuffer:      64,
		PingInterval:    2 * time.Second,
		PingTimeout:     5 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Port = n
	}
	if v := strings.TrimSpace(os.Getenv("STATIC_DIR")); v != "" {
		cfg.StaticDir = v
	}
	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))

	if v := strings.TrimSpace(os.Getenv("CLOCK_INTERVAL_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ClockInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_BASE_MINS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DefaultBaseMins = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_INC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.DefaultInc = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("NAME_MAX_RUNES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NameMaxRunes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SEND_BUFFER")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SendBuffer = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("PING_INTERVAL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PingInterval = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("PING_TIMEOUT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PingTimeout = time.Duration(n) * time.Second
		}
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.ResultWebhookURL = strings.TrimSpace(os.Getenv("RESULT_WEBHOOK_URL"))
	cfg.ResultWebhookToken = strings.TrimSpace(os.Getenv("RESULT_WEBHOOK_TOKEN"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if cfg.DefaultBaseMins > 180 {
		return nil, errors.New("DEFAULT_BASE_MINS must be at most 180")
	}
	if cfg.DefaultInc > 60 {
		return nil, errors.New("DEFAULT_INC must be at most 60")
	}
	if cfg.PingTimeout <= cfg.PingInterval {
		return nil, errors.New("PING_TIMEOUT_SEC must exceed PING_INTERVAL_SEC")
	}
	if cfg.ResultWebhookURL != "" && !strings.HasPrefix(cfg.ResultWebhookURL, "http://") && !strings.HasPrefix(cfg.ResultWebhookURL, "https://") {
		return nil, errors.New("RESULT_WEBHOOK_URL must be an http(s) url")
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
