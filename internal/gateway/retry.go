package gateway

import (
	"context"
	"math"
	"time"
)

// RetryPolicy bounds how often a dropped-connection failure is retried.
type RetryPolicy struct {
	MaxAttempts int
	Unit        time.Duration
}

// DefaultRetryPolicy returns the standard policy: 3 attempts with
// 2^attempt-second backoff between them.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		Unit:        time.Second,
	}
}

// NextDelay returns the backoff before the given retry (1-indexed attempt
// that just failed): 2^attempt units.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * p.Unit
}

// Execute runs fn up to MaxAttempts times. Only errors classified as
// retryable get another attempt; everything else propagates immediately.
// The backoff sleep respects context cancellation.
func (p *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		if attempt < p.MaxAttempts {
			select {
			case <-time.After(p.NextDelay(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
