// Package retry provides exponential backoff retry logic for external calls
// (the Bluesky API and the Redis cache at startup).
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	serrors "github.com/skylens/skylens/internal/errors"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultConfig returns sensible retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
	}
}

// Do executes fn with exponential backoff. Only retries if the error is retryable.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !serrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt)))
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		if cfg.Jitter {
			delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// Always is like Do but retries every error, not just retryable ones.
// Used for the startup Redis ping where any failure is worth another attempt.
func Always(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	wrapped := func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return &serrors.APIError{Service: "startup", StatusCode: 503, Message: "dependency not ready", Err: err}
		}
		return nil
	}
	return Do(ctx, cfg, wrapped)
}
