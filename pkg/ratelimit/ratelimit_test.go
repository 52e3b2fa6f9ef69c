package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitIfNeededEnforcesMinDelay(t *testing.T) {
	l := New(20*time.Millisecond, time.Second, 3)
	ctx := context.Background()

	if err := l.WaitIfNeeded(ctx, "test"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	start := time.Now()
	if err := l.WaitIfNeeded(ctx, "test"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("expected to wait close to min delay, only waited %v", elapsed)
	}
}

func TestIsRateLimitDetectsKnownPhrases(t *testing.T) {
	cases := []string{
		"HTTP 429 received",
		"too many requests",
		"rate limit exceeded",
		"service tier capacity exceeded",
	}
	for _, msg := range cases {
		if !IsRateLimit(errors.New(msg)) {
			t.Errorf("expected %q to be detected as a rate-limit error", msg)
		}
	}
	if IsRateLimit(errors.New("connection refused")) {
		t.Errorf("did not expect a generic error to be detected as rate-limit")
	}
	if IsRateLimit(nil) {
		t.Errorf("nil error must not be a rate-limit error")
	}
}

func TestExecuteWithRetrySucceedsAfterRateLimit(t *testing.T) {
	l := New(time.Millisecond, 50*time.Millisecond, 3)
	l.BackoffBase = time.Millisecond
	calls := 0

	result, err := l.ExecuteWithRetry(context.Background(), "test", func(ctx context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("429 too many requests")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("unexpected result %v", result)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestExecuteWithRetryGivesUpOnNonRateLimitError(t *testing.T) {
	l := New(time.Millisecond, 50*time.Millisecond, 3)
	l.BackoffBase = time.Millisecond
	calls := 0

	_, err := l.ExecuteWithRetry(context.Background(), "test", func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a non-rate-limit error, got %d", calls)
	}
}

func TestExecuteWithRetryRaisesMinDelayOnThrottle(t *testing.T) {
	l := New(time.Millisecond, 200*time.Millisecond, 2)
	l.BackoffBase = time.Millisecond
	before := l.MinDelay()

	_, _ = l.ExecuteWithRetry(context.Background(), "test", func(ctx context.Context) (any, error) {
		return nil, errors.New("rate limit")
	})

	if l.MinDelay() <= before {
		t.Fatalf("expected min delay to increase after throttling, before=%v after=%v", before, l.MinDelay())
	}
}
