package shipping

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyRecovers(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &ShippingError{Op: "get_rates", Retryable: true, Err: errors.New("timeout")}
		}
		return nil
	})
	if err != nil {
		t.Errorf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicyStopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return &ShippingError{Op: "purchase_label", Retryable: false, Err: errors.New("invalid rate")}
	})

	var shipErr *ShippingError
	if !errors.As(err, &shipErr) {
		t.Fatalf("got %v, want ShippingError", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return &ShippingError{Op: "get_rates", Retryable: true, Err: errors.New("unavailable")}
	})
	if err == nil {
		t.Fatal("expected the last error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicyHonorsContext(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)

	go func() {
		done <- policy.Do(ctx, func(context.Context) error {
			calls++
			return &ShippingError{Op: "get_rates", Retryable: true, Err: errors.New("unavailable")}
		})
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
