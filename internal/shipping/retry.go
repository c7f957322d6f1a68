package shipping

import (
	"context"
	"time"
)

// RetryPolicy bounds retries of transient aggregator failures with
// exponential backoff. A zero MaxAttempts means a single attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Do runs fn up to MaxAttempts times, doubling the delay between
// attempts. Non-retryable errors and context cancellation stop the loop
// immediately. The last error is returned when all attempts fail.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay

	var err error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}

		if !IsRetryable(err) {
			return err
		}
	}

	return err
}
