// Package config provides application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	FrontendURL string `envconfig:"FRONTEND_URL"`

	// BackendURL is the base URL of the Naurat import API that owns all
	// conversation and spreadsheet state.
	BackendURL     string        `envconfig:"BACKEND_URL" default:"http://localhost:8000"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"30s"`

	// SessionTTL bounds how long an idle chat session is kept in memory
	// before the reaper discards it.
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"60m"`

	// AnonIDMin and AnonIDMax bound the anonymous visitor ID range.
	AnonIDMin int `envconfig:"ANON_ID_MIN" default:"1000000"`
	AnonIDMax int `envconfig:"ANON_ID_MAX" default:"10000000"`

	Google          GoogleConfig
	RateLimit       RateLimitConfig
	SSE             SSEConfig
	ConversationLog ConversationLogConfig
}

// GoogleConfig holds the OAuth client wiring for Google sign-in.
// Sign-in is optional: an empty client ID disables the auth routes.
type GoogleConfig struct {
	ClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	ClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	RedirectURL  string `envconfig:"GOOGLE_REDIRECT_URL"`
}

// RateLimitConfig throttles chat dispatches per visitor.
type RateLimitConfig struct {
	RequestsPerWindow int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	WindowDuration    time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// SSEConfig tunes the chat event stream.
type SSEConfig struct {
	KeepaliveInterval time.Duration `envconfig:"SSE_KEEPALIVE_INTERVAL" default:"10s"`
	RetryDelay        time.Duration `envconfig:"SSE_RETRY_DELAY" default:"5s"`
}

// ConversationLogConfig controls NDJSON conversation telemetry.
type ConversationLogConfig struct {
	Enabled   bool   `envconfig:"CONVERSATION_LOG_ENABLED" default:"false"`
	Dir       string `envconfig:"CONVERSATION_LOG_DIR" default:"./data/logs/conversations"`
	QueueSize int    `envconfig:"CONVERSATION_LOG_QUEUE_SIZE" default:"1000"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that all required configuration fields are consistent.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL cannot be empty")
	}
	if c.AnonIDMin <= 0 || c.AnonIDMax <= c.AnonIDMin {
		return fmt.Errorf("ANON_ID_MIN/ANON_ID_MAX must describe a non-empty positive range")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.Google.ClientID != "" && c.Google.ClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is required when GOOGLE_CLIENT_ID is set")
	}
	if c.ConversationLog.Enabled {
		if c.ConversationLog.Dir == "" {
			return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
		}
		if c.ConversationLog.QueueSize <= 0 {
			return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
		}
	}
	return nil
}

// GoogleEnabled reports whether the Google sign-in flow is configured.
func (c *Config) GoogleEnabled() bool {
	return c.Google.ClientID != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}
