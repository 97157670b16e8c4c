package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

func acquireAll(t *testing.T, p Pacer, n int) []time.Time {
	t.Helper()
	times := make([]time.Time, n)
	var wg sync.WaitGroup
	// start in reverse so goroutine scheduling cannot explain the ordering
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at, err := p.Acquire(context.Background(), i)
			if err != nil {
				t.Errorf("Acquire(%d) error = %v", i, err)
			}
			times[i] = at
		}(i)
	}
	wg.Wait()
	return times
}

func TestChainSpacingAndOrder(t *testing.T) {
	interval := 20 * time.Millisecond
	times := acquireAll(t, NewChain(6, interval), 6)

	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < interval {
			t.Errorf("gap between task %d and %d = %v, want >= %v", i-1, i, gap, interval)
		}
	}
}

func TestChainFirstTaskStartsUnconditionally(t *testing.T) {
	c := NewChain(3, 10*time.Millisecond)
	start := time.Now()
	at, err := c.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("Acquire(0) error = %v", err)
	}
	if at.Sub(start) > time.Second {
		t.Errorf("first task waited %v", at.Sub(start))
	}
}

func TestChainCancelledTaskReleasesSuccessor(t *testing.T) {
	c := NewChain(2, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Acquire(ctx, 0); err == nil {
		t.Fatal("expected cancellation error")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.Acquire(context.Background(), 1); err != nil {
			t.Errorf("Acquire(1) error = %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("successor blocked on cancelled predecessor")
	}
}

func TestChainRejectsOutOfRange(t *testing.T) {
	c := NewChain(1, time.Millisecond)
	if _, err := c.Acquire(context.Background(), 1); err == nil {
		t.Error("expected error for task outside chain")
	}
}

func TestSpacerSpacing(t *testing.T) {
	interval := 15 * time.Millisecond
	times := acquireAll(t, NewSpacer(interval), 5)

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < interval {
			t.Errorf("gap %d = %v, want >= %v", i, gap, interval)
		}
	}
}

func TestSpacerSharedAcrossRounds(t *testing.T) {
	interval := 15 * time.Millisecond
	factory, err := NewFactory(StrategySpacer, interval)
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}

	first, _ := factory(1).Acquire(context.Background(), 0)
	second, _ := factory(1).Acquire(context.Background(), 0)
	if gap := second.Sub(first); gap < interval {
		t.Errorf("cross-round gap = %v, want >= %v", gap, interval)
	}
}

func TestNewFactoryUnknownStrategy(t *testing.T) {
	if _, err := NewFactory("burst", time.Second); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
