package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func fast(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(5), func(int) error {
		calls++
		if calls < 3 {
			return Retryable(errFlaky)
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("Do = %v after %d calls, want nil after 3", err, calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(5), func(int) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) || calls != 1 {
		t.Errorf("Do = %v after %d calls", err, calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	var seen []int
	err := Do(context.Background(), fast(3), func(attempt int) error {
		seen = append(seen, attempt)
		return Retryable(errFlaky)
	})
	if err != errFlaky {
		t.Errorf("Do = %v, want the unwrapped last error", err)
	}
	if len(seen) != 3 || seen[2] != 3 {
		t.Errorf("attempts = %v", seen)
	}
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 0, InitialWait: time.Hour, Multiplier: 1}
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func(int) error { return Retryable(errFlaky) })
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do ignored cancellation")
	}
}

func TestWaitIsCapped(t *testing.T) {
	c := Config{InitialWait: time.Second, MaxWait: 3 * time.Second, Multiplier: 2}
	for attempt, want := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 3 * time.Second, 10: 3 * time.Second} {
		if got := c.Wait(attempt); got != want {
			t.Errorf("Wait(%d) = %v, want %v", attempt, got, want)
		}
	}
}
