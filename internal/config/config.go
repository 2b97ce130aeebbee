// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	OpenAI    OpenAIConfig
	Session   SessionConfig
	Summary   SummaryConfig
	RateLimit RateLimitConfig
}

// OpenAIConfig controls the text-generation backend. An empty APIKey
// runs the server against the built-in mock backend.
type OpenAIConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	RequestTimeout time.Duration
}

// SessionConfig selects and configures the viewer session store.
type SessionConfig struct {
	Driver    string // "memory" or "redis"
	RedisAddr string
	RedisTTL  time.Duration
}

// SummaryConfig controls background summary generation.
type SummaryConfig struct {
	MinViewers int
	Interval   time.Duration
}

// RateLimitConfig caps chat messages per viewer per window.
type RateLimitConfig struct {
	MaxMessages int
	Window      time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/evalubot.db"),
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			Model:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL:        getEnv("OPENAI_BASE_URL", ""),
			RequestTimeout: getEnvDuration("OPENAI_REQUEST_TIMEOUT", 30*time.Second),
		},
		Session: SessionConfig{
			Driver:    getEnv("SESSION_DRIVER", "memory"),
			RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
			RedisTTL:  getEnvDuration("SESSION_TTL", 24*time.Hour),
		},
		Summary: SummaryConfig{
			MinViewers: getEnvInt("SUMMARY_MIN_VIEWERS", 5),
			Interval:   getEnvDuration("SUMMARY_INTERVAL", 10*time.Minute),
		},
		RateLimit: RateLimitConfig{
			MaxMessages: getEnvInt("RATE_LIMIT_MAX_MESSAGES", 30),
			Window:      getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.Session.Driver {
	case "memory":
	case "redis":
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty when SESSION_DRIVER is redis")
		}
	default:
		return fmt.Errorf("SESSION_DRIVER must be 'memory' or 'redis', got %q", c.Session.Driver)
	}
	if c.OpenAI.APIKey != "" && c.OpenAI.Model == "" {
		return fmt.Errorf("OPENAI_MODEL cannot be empty when OPENAI_API_KEY is set")
	}
	if c.Summary.MinViewers < 1 {
		return fmt.Errorf("SUMMARY_MIN_VIEWERS must be >= 1")
	}
	if c.Summary.Interval <= 0 {
		return fmt.Errorf("SUMMARY_INTERVAL must be > 0")
	}
	if c.RateLimit.MaxMessages < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX_MESSAGES must be >= 1")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

// AIEnabled reports whether a real text-generation backend is configured.
func (c *Config) AIEnabled() bool {
	return c.OpenAI.APIKey != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
