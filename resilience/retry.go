package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"
)

// RetryConfig controls Retry. Components never retry store calls on their
// own; Retry is used for establishing the store connection at startup.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// Jitter adds up to 20% to each backoff
	Jitter          bool
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns the startup connection policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        3 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		RetryableErrors:   DefaultRetryableErrors,
	}
}

// DefaultRetryableErrors retries everything except cancellation and an open circuit.
func DefaultRetryableErrors(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !errors.Is(err, ErrCircuitBreakerOpen)
}

// Retry calls fn until it succeeds, the error is not retryable, the retries
// are exhausted or ctx is done. The last error is returned.
func Retry(ctx context.Context, config RetryConfig, fn func() error) error {
	retryable := config.RetryableErrors
	if retryable == nil {
		retryable = DefaultRetryableErrors
	}
	var err error
	var attempts int
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		attempts++
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) || attempt == config.MaxRetries {
			break
		}
		timer := time.NewTimer(calculateBackoff(attempt, config))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.WithSecondaryError(ctx.Err(), err)
		case <-timer.C:
		}
	}
	return errors.Wrapf(err, "giving up after %d attempt(s)", attempts)
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	backoff := float64(config.InitialBackoff) * math.Pow(config.BackoffMultiplier, float64(attempt))
	if backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}
	if config.Jitter {
		backoff += backoff * 0.2 * rand.Float64()
	}
	return time.Duration(backoff)
}
