package authflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetry(t *testing.T) {
	fastOpts := func() RetryOptions {
		return RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
	}

	t.Run("first attempt succeeds", func(t *testing.T) {
		calls := 0
		got, err := WithRetry(context.Background(), fastOpts(), func(context.Context) (int, error) {
			calls++
			return 42, nil
		})
		if err != nil || got != 42 {
			t.Fatalf("WithRetry() = (%d, %v), want (42, nil)", got, err)
		}
		if calls != 1 {
			t.Fatalf("op called %d times, want 1", calls)
		}
	})

	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		got, err := WithRetry(context.Background(), fastOpts(), func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("flaky")
			}
			return "ok", nil
		})
		if err != nil || got != "ok" {
			t.Fatalf("WithRetry() = (%q, %v), want (\"ok\", nil)", got, err)
		}
		if calls != 3 {
			t.Fatalf("op called %d times, want 3", calls)
		}
	})

	t.Run("exhausted attempts return the last error", func(t *testing.T) {
		boom := errors.New("still broken")
		calls := 0
		_, err := WithRetry(context.Background(), fastOpts(), func(context.Context) (int, error) {
			calls++
			return 0, boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("WithRetry() error = %v, want the operation's error", err)
		}
		if calls != 3 {
			t.Fatalf("op called %d times, want MaxAttempts = 3", calls)
		}
	})

	t.Run("should-retry rejection stops immediately", func(t *testing.T) {
		opts := fastOpts()
		opts.ShouldRetry = func(err error) bool { return !IsPermanent(err) }
		calls := 0
		_, err := WithRetry(context.Background(), opts, func(context.Context) (int, error) {
			calls++
			return 0, NewError(CodeSessionRevoked, "revoked")
		})
		if CodeOf(err) != CodeSessionRevoked {
			t.Fatalf("WithRetry() error = %v, want SESSION_REVOKED", err)
		}
		if calls != 1 {
			t.Fatalf("op called %d times, want 1", calls)
		}
	})

	t.Run("context cancellation interrupts the backoff sleep", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		opts := RetryOptions{MaxAttempts: 5, InitialDelay: time.Minute, MaxDelay: time.Minute}
		done := make(chan error, 1)
		go func() {
			_, err := WithRetry(ctx, opts, func(context.Context) (int, error) {
				return 0, errors.New("flaky")
			})
			done <- err
		}()
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("WithRetry() error = %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("WithRetry did not observe the cancelled context")
		}
	})

	t.Run("attempt observer sees every failure", func(t *testing.T) {
		var seen []int
		opts := fastOpts()
		opts.OnAttempt = func(attempt int, err error) { seen = append(seen, attempt) }
		_, _ = WithRetry(context.Background(), opts, func(context.Context) (int, error) {
			return 0, errors.New("flaky")
		})
		if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
			t.Fatalf("OnAttempt saw %v, want [1 2 3]", seen)
		}
	})
}

func TestJitterBounds(t *testing.T) {
	const d = 100 * time.Millisecond
	for i := 0; i < 1000; i++ {
		j := jitter(d)
		if j < 0 || j > d/4 {
			t.Fatalf("jitter(%v) = %v, want within [0, %v]", d, j, d/4)
		}
	}
	if jitter(0) != 0 {
		t.Fatal("jitter(0) should be 0")
	}
	if jitter(-time.Second) != 0 {
		t.Fatal("jitter of a negative duration should be 0")
	}
}
