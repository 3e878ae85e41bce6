// Package retry provides the single bounded-retry policy shared by the
// adapters. Login recovery and search retries are independent applications of
// the same helper with different policies.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy parameterizes one retry loop.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Delay is slept between attempts. Zero means retry immediately.
	Delay time.Duration
	// Retryable reports whether an error is worth another attempt.
	// Nil means every error is retryable.
	Retryable func(error) bool
}

// Do runs fn until it succeeds, the policy is exhausted, or the context is
// done. The returned error is the last attempt's error, wrapped with the
// attempt count when the policy was exhausted.
func Do(ctx context.Context, p Policy, fn func() error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt < p.Attempts && p.Delay > 0 {
			select {
			case <-time.After(p.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("after %d attempts: %w", p.Attempts, lastErr)
}
