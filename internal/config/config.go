package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`

	// Redis cache (required; startup fails if unreachable)
	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	// Bluesky API
	APIBaseURL   string `envconfig:"BSKY_API_BASE_URL" default:"https://public.api.bsky.app"`
	PageLimit    int    `envconfig:"BSKY_PAGE_LIMIT" default:"100"`
	RateLimitRPS int    `envconfig:"BSKY_RATE_LIMIT_RPS" default:"3000"`

	// Cache policy
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"6h"`
	LRUSize  int           `envconfig:"LRU_SIZE" default:"4096"`

	// Crawl engine
	MaxWorkers int           `envconfig:"MAX_WORKERS" default:"40"`
	BatchSize  int           `envconfig:"BATCH_SIZE" default:"10"`
	RoundDelay time.Duration `envconfig:"ROUND_DELAY" default:"100ms"`

	// Streaming & session lifecycle
	StreamInterval time.Duration `envconfig:"STREAM_INTERVAL" default:"5s"`
	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`

	// Follower-count enrichment (best-effort, post-truncation)
	EnrichFollowers bool `envconfig:"ENRICH_FOLLOWERS" default:"false"`
	EnrichWorkers   int  `envconfig:"ENRICH_WORKERS" default:"8"`
}

// Development returns true when running in development mode.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Validate checks for configuration values the engine cannot run with.
func (c *Config) Validate() error {
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("BSKY_RATE_LIMIT_RPS must be positive, got %d", c.RateLimitRPS)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("MAX_WORKERS must be positive, got %d", c.MaxWorkers)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.PageLimit <= 0 || c.PageLimit > 100 {
		return fmt.Errorf("BSKY_PAGE_LIMIT must be in 1..100, got %d", c.PageLimit)
	}
	if c.StreamInterval <= 0 {
		return fmt.Errorf("STREAM_INTERVAL must be positive, got %s", c.StreamInterval)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
