package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Pacer releases the tasks of one round no faster than a fixed interval
type Pacer interface {
	// Acquire blocks task i until it may transmit and returns its release time
	Acquire(ctx context.Context, i int) (time.Time, error)
}

// Factory builds the pacer used for a round of n tasks
type Factory func(n int) Pacer

// Strategy names a pacing implementation in configuration
type Strategy string

const (
	StrategyChain  Strategy = "chain"
	StrategySpacer Strategy = "spacer"
)

// NewFactory returns a per-round pacer factory for the given strategy.
// A spacer is shared by all rounds of the worker that owns the factory.
func NewFactory(strategy Strategy, interval time.Duration) (Factory, error) {
	switch strategy {
	case StrategyChain, "":
		return func(n int) Pacer { return NewChain(n, interval) }, nil
	case StrategySpacer:
		s := NewSpacer(interval)
		return func(int) Pacer { return s }, nil
	default:
		return nil, fmt.Errorf("unknown pacing strategy %q", strategy)
	}
}

type gate struct {
	done chan struct{}
	at   time.Time
	once sync.Once
}

func (g *gate) open(at time.Time) {
	g.once.Do(func() {
		g.at = at
		close(g.done)
	})
}

// Chain is a chain of binary gates, one per task
type Chain struct {
	interval time.Duration
	gates    []*gate
}

// NewChain creates a chain for n tasks
func NewChain(n int, interval time.Duration) *Chain {
	gates := make([]*gate, n)
	for i := range gates {
		gates[i] = &gate{done: make(chan struct{})}
	}
	return &Chain{interval: interval, gates: gates}
}

// Acquire waits for the predecessor's gate, then until the interval has passed
// since the predecessor's release, then opens task i's gate. Task 0 has no
// predecessor and only waits the interval. The gate is opened even when ctx
// ends so successors never block on a failed task.
func (c *Chain) Acquire(ctx context.Context, i int) (time.Time, error) {
	if i < 0 || i >= len(c.gates) {
		return time.Time{}, fmt.Errorf("task %d outside chain of %d", i, len(c.gates))
	}
	own := c.gates[i]
	defer own.open(time.Now())

	target := time.Now().Add(c.interval)
	if i > 0 {
		prev := c.gates[i-1]
		select {
		case <-prev.done:
			target = prev.at.Add(c.interval)
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		}
	}

	if err := sleepUntil(ctx, target); err != nil {
		return time.Time{}, err
	}
	at := time.Now()
	own.open(at)
	return at, nil
}

// Spacer hands out transmission slots spaced by the interval
type Spacer struct {
	interval time.Duration

	mu   sync.Mutex
	next time.Time
}

// NewSpacer creates a spacer whose first slot is immediate
func NewSpacer(interval time.Duration) *Spacer {
	return &Spacer{interval: interval}
}

// Acquire reserves the next free slot and sleeps until it. The task index is
// ignored.
func (s *Spacer) Acquire(ctx context.Context, _ int) (time.Time, error) {
	s.mu.Lock()
	slot := time.Now()
	if slot.Before(s.next) {
		slot = s.next
	}
	s.next = slot.Add(s.interval)
	s.mu.Unlock()

	if err := sleepUntil(ctx, slot); err != nil {
		return time.Time{}, err
	}
	return slot, nil
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
