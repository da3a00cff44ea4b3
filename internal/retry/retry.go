// Package retry provides exponential backoff retry logic for remote API calls.
package retry

import (
	"context"
	"math/rand"
	"time"

	serrors "github.com/p-blackswan/session-mirror/internal/errors"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool

	// OnRetry runs before each backoff sleep with the attempt that just
	// failed. Never runs after the final attempt. Used for retry
	// metrics and logging.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns the policy used for bootstrap and pagination
// calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
	}
}

// Do executes fn, retrying retryable errors with exponential backoff.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	delay := cfg.BaseDelay
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !serrors.IsRetryable(err) || attempt >= cfg.MaxAttempts {
			return err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		wait := delay
		if cfg.Jitter && delay > 0 {
			wait = delay/2 + time.Duration(rand.Int63n(int64(delay)/2+1))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if delay *= 2; delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
