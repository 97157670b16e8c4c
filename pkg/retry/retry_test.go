package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "vkharvest/pkg/errors"
)

var instant = Backoff{Base: time.Millisecond, Max: time.Millisecond}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Second, Factor: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{30, time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	if got := (Backoff{}).Delay(3); got != 0 {
		t.Errorf("zero backoff Delay = %v, want 0", got)
	}
	if got := (Backoff{Base: 10 * time.Millisecond}).Delay(3); got != 10*time.Millisecond {
		t.Errorf("factor below 1 should keep the base delay, got %v", got)
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.25}
	for i := 0; i < 50; i++ {
		d := b.Delay(2)
		if d < 150*time.Millisecond || d > 250*time.Millisecond {
			t.Fatalf("delay %v outside jitter bounds", d)
		}
	}
}

func TestCommitBackoffIsBounded(t *testing.T) {
	b := CommitBackoff()
	for attempt := 1; attempt <= 20; attempt++ {
		if d := b.Delay(attempt); d <= 0 || d > time.Duration(float64(b.Max)*(1+b.Jitter)) {
			t.Fatalf("attempt %d: delay %v out of range", attempt, d)
		}
	}
}

func TestDoRetriesStorageErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{MaxAttempts: 5, Backoff: instant}, func() error {
		attempts++
		if attempts < 3 {
			return errs.Wrap(errs.ErrorTypeStorage, "commit", errors.New("database is locked"))
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"config", errs.New(errs.ErrorTypeConfig, "bad")},
		{"quota", errs.New(errs.ErrorTypeQuota, "29")},
		{"plain", errors.New("plain")},
		{"canceled", context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), Config{MaxAttempts: 5, Backoff: instant}, func() error {
				attempts++
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Errorf("Expected original error, got %v", err)
			}
			if attempts != 1 {
				t.Errorf("Expected 1 attempt, got %d", attempts)
			}
		})
	}
}

func TestDoMaxAttempts(t *testing.T) {
	attempts := 0
	var retried []int
	last := errors.New("still failing")
	err := Do(context.Background(), Config{
		MaxAttempts: 3,
		Backoff:     instant,
		RetryIf:     func(error) bool { return true },
		OnRetry:     func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) },
	}, func() error {
		attempts++
		return last
	})

	if !errors.Is(err, last) {
		t.Fatalf("Expected wrapped last error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if len(retried) != 2 {
		t.Errorf("Expected OnRetry between attempts only, got %v", retried)
	}
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, Config{
		Backoff: Backoff{Base: time.Hour},
		RetryIf: func(error) bool { return true },
	}, func() error {
		return errors.New("fail")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
