package errors

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"muza/internal/logging"
)

// RetryConfig configures exponential backoff for transient failures.
type RetryConfig struct {
	MaxAttempts  int           // retries after the initial attempt
	BaseDelay    time.Duration // first backoff delay
	MaxDelay     time.Duration // backoff cap
	JitterFactor float64       // randomization, 0.25 means ±25%
}

// DefaultRetryConfig returns sensible defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.25,
	}
}

// RetryWithResultAndLog runs fn until it succeeds, returns a non-transient
// error, or the attempt budget runs out. Only transient errors are retried;
// everything else propagates immediately with a zero result.
func RetryWithResultAndLog[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error), logger logging.Logger) (T, error) {
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("retry")
	}

	var lastErr error
	var zeroValue T

	for attempt := 0; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			logger.Debug("Context cancelled, stopping retries")
			return zeroValue, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if attempt == 0 {
			logger.Debug("Executing (attempt 1/%d)", config.MaxAttempts+1)
		} else {
			logger.Debug("Retrying (attempt %d/%d)", attempt+1, config.MaxAttempts+1)
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("Retry succeeded after %d attempts", attempt+1)
			}
			return result, nil
		}

		lastErr = err
		logger.Debug("Attempt %d failed: %v", attempt+1, err)

		if !IsTransient(err) {
			logger.Debug("Error is not transient, stopping retries")
			return zeroValue, err
		}

		if attempt == config.MaxAttempts {
			logger.Warn("Max retries (%d) exhausted", config.MaxAttempts+1)
			break
		}

		delay := calculateBackoff(attempt, config)
		logger.Debug("Waiting %v before next retry", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			logger.Debug("Context cancelled during backoff")
			return zeroValue, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	return zeroValue, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// calculateBackoff doubles the delay per attempt, caps it at MaxDelay, and
// spreads it by the jitter factor so synchronized callers desynchronize.
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	multiplier := math.Pow(2, float64(attempt))
	delay := time.Duration(float64(config.BaseDelay) * multiplier)

	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if config.JitterFactor > 0 {
		jitter := float64(delay) * config.JitterFactor
		jitterAmount := (rand.Float64()*2 - 1) * jitter
		delay = time.Duration(float64(delay) + jitterAmount)

		if delay < 0 {
			delay = config.BaseDelay
		}
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return delay
}
