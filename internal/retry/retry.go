// Package retry implements exponential backoff for idempotent operations.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"eventqual/internal/logging"
)

// Config configures retry behavior.
type Config struct {
	MaxRetries     int           // Maximum number of retry attempts
	InitialBackoff time.Duration // Initial backoff duration (doubles each retry)
	MaxBackoff     time.Duration // Maximum backoff duration

	// Jitter spreads each backoff by up to ±Jitter of its length (0.2 = ±20%).
	Jitter float64

	// Retryable reports whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(error) bool

	// Category the attempts are logged under
	Category logging.Category
}

// DefaultConfig returns sensible retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Jitter:         0.2,
		Category:       logging.CategoryStore,
	}
}

// ErrMaxRetriesExceeded indicates all retry attempts failed.
var ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

// Do executes fn with exponential backoff until it succeeds, returns a
// non-retryable error, or the attempts run out.
func Do(ctx context.Context, config Config, operation string, fn func(ctx context.Context) error) error {
	log := logging.Get(config.Category)
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				log.Info("Retry succeeded for %s on attempt %d", operation, attempt+1)
			}
			return nil
		}

		lastErr = err
		if config.Retryable != nil && !config.Retryable(err) {
			return err
		}
		log.Warn("Attempt %d/%d for %s failed: %v", attempt+1, config.MaxRetries+1, operation, err)

		// Don't sleep after the last attempt
		if attempt < config.MaxRetries {
			backoff := withJitter(Backoff(config, attempt), config.Jitter)
			log.Debug("Retrying %s in %v", operation, backoff)

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("%w for %s: %w", ErrMaxRetriesExceeded, operation, lastErr)
}

// Backoff computes the exponential backoff before the given retry.
func Backoff(config Config, attempt int) time.Duration {
	// initial * 2^attempt
	backoff := float64(config.InitialBackoff) * math.Pow(2, float64(attempt))

	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	return time.Duration(backoff)
}

// withJitter moves d by a random amount within ±factor*d, never below zero.
func withJitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * factor
	out := float64(d) + (rand.Float64()*2-1)*spread
	if out < 0 {
		return 0
	}
	return time.Duration(out)
}
