package vatsim

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryConfig configures bounded retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first (default: 3)
	MaxRetries int

	// InitialDelay is the wait before the first retry (default: 1 second)
	InitialDelay time.Duration

	// MaxDelay caps the wait between attempts (default: 1 second)
	MaxDelay time.Duration

	// Multiplier grows the delay after each retry. 1.0 gives a fixed delay.
	Multiplier float64

	// RespectRetryAfter uses the Retry-After header of a 429 if available
	RespectRetryAfter bool

	// OnRetry, if set, is called before each retry sleep with the 1-based
	// retry number and the error that caused it.
	OnRetry func(retry int, err error)
}

// DefaultRetryConfig returns the feed policy: 3 retries, fixed 1s apart.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          time.Second,
		Multiplier:        1.0,
		RespectRetryAfter: false,
	}
}

// RetryWithBackoffResult executes fn until it succeeds or the retry budget is spent.
// The counter is local to the call, so every call starts with a full budget.
//
// Example usage:
//
//	snap, err := RetryWithBackoffResult(ctx, DefaultRetryConfig(), func() (Snapshot, error) {
//	    return client.FetchSnapshot(ctx)
//	})
func RetryWithBackoffResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, lastErr)
			}
			select {
			case <-ctx.Done():
				return result, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		res, err := fn()
		if err == nil {
			return res, nil
		}

		result = res
		lastErr = err

		if attempt == cfg.MaxRetries {
			break
		}

		delay = nextDelay(cfg, attempt)
		if rle, ok := IsRateLimitError(err); ok && cfg.RespectRetryAfter && rle.RetryAfter > 0 {
			delay = rle.RetryAfter
		}
	}

	return result, fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}

// RetryWithBackoff is RetryWithBackoffResult for functions without a result.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithBackoffResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// nextDelay = min(InitialDelay * Multiplier^attempt, MaxDelay)
func nextDelay(cfg RetryConfig, attempt int) time.Duration {
	mult := cfg.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := time.Duration(float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt)))
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}
