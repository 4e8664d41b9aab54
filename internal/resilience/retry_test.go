package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var fetches int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		fetches++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetches != 1 {
		t.Errorf("expected 1 fetch, got %d", fetches)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var fetches int
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		fetches++
		if fetches < 3 {
			return NewTransientError(errors.New("ftp server busy"), 0)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetches != 3 {
		t.Errorf("expected 3 fetches, got %d", fetches)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var fetches int
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		fetches++
		return NewTransientError(errors.New("connection reset by peer"), 0)
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if fetches != 3 {
		t.Errorf("expected 3 fetches, got %d", fetches)
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	var fetches int
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
	}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		fetches++
		return errors.New("login incorrect")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if fetches != 1 {
		t.Errorf("expected 1 fetch for a permanent failure, got %d", fetches)
	}
}

func TestDo_ContextCancelStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var fetches int
	cfg := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		Multiplier:     2.0,
	}

	err := Do(ctx, cfg, func(_ context.Context) error {
		fetches++
		if fetches == 2 {
			cancel()
		}
		return NewTransientError(errors.New("i/o timeout"), 0)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if fetches > 3 {
		t.Errorf("expected at most 3 fetches after cancel, got %d", fetches)
	}
}

func TestDo_CustomShouldRetry(t *testing.T) {
	var fetches int
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		ShouldRetry: func(err error) bool {
			return err.Error() == "transfer aborted"
		},
	}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		fetches++
		if fetches == 1 {
			return errors.New("transfer aborted")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetches != 2 {
		t.Errorf("expected 2 fetches, got %d", fetches)
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		OnRetry: func(attempt int, _ error) {
			attempts = append(attempts, attempt)
		},
	}

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return NewTransientError(errors.New("ftp server busy"), 0)
	})

	if len(attempts) != 2 {
		t.Errorf("expected 2 OnRetry calls, got %d", len(attempts))
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected attempts [1, 2], got %v", attempts)
	}
}

func TestDo_ZeroConfigGetsDefaults(t *testing.T) {
	var fetches atomic.Int32
	err := Do(context.Background(), RetryConfig{}, func(_ context.Context) error {
		fetches.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetches.Load() != 1 {
		t.Errorf("expected 1 fetch, got %d", fetches.Load())
	}
}

func TestComputeBackoff_ExponentialGrowth(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
	})

	expected := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}
	for attempt, want := range expected {
		if got := computeBackoff(attempt, cfg); got != want {
			t.Errorf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}

func TestComputeBackoff_CapsAtMax(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     5 * time.Second,
		Multiplier:     10.0,
	})

	if delay := computeBackoff(5, cfg); delay > 5*time.Second {
		t.Errorf("expected delay capped at 5s, got %v", delay)
	}
}

func TestComputeBackoff_WithJitter(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.5,
	})

	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		d := computeBackoff(0, cfg)
		seen[d] = true
		// 50% jitter on a 1s base stays inside [500ms, 1500ms].
		if d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Errorf("delay %v outside expected range [500ms, 1500ms]", d)
		}
	}
	if len(seen) < 2 {
		t.Error("expected jitter to produce varying delays")
	}
}

func TestRetryLogger(t *testing.T) {
	t.Parallel()
	// Only verifying it does not panic against the global logger.
	logger := RetryLogger("ftp", "fetch_pricelist")
	logger(1, errors.New("connection reset by peer"))
}
