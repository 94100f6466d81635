package resilience

import (
	"context"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
)

// RetryPolicy is a fixed-count, fixed-delay retry schedule. Every remote
// call site in the engine goes through the same combinator instead of
// hand-rolling its own loop.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy matches the connector-level retry tuning.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: time.Second}
}

// WithRetry runs fn up to policy.Attempts times, sleeping policy.Delay
// between attempts. The last error is returned wrapped with the operation
// name. Context cancellation aborts the schedule immediately.
func WithRetry(ctx context.Context, op string, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		logger.WithFields(map[string]interface{}{
			"op":       op,
			"attempt":  attempt,
			"attempts": policy.Attempts,
		}).WithError(lastErr).Warn("Operation failed, will retry")

		if attempt < policy.Attempts && policy.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.Delay):
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, policy.Attempts, lastErr)
}
