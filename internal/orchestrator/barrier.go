package orchestrator

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrBarrierBroken is returned by Wait once any party has given up
var ErrBarrierBroken = errors.New("barrier broken")

// Barrier is a reusable rendezvous point for a fixed number of workers
type Barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	waiting    int
	generation uint64
	broken     bool
}

// NewBarrier creates a barrier for n parties
func NewBarrier(n int) *Barrier {
	b := &Barrier{parties: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until every party has called Wait. The last party to arrive
// runs action, if any, before the others are released, so everything action
// writes is visible to all parties once Wait returns.
func (b *Barrier) Wait(action func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.broken {
		return ErrBarrierBroken
	}

	gen := b.generation
	b.waiting++
	if b.waiting == b.parties {
		if action != nil {
			action()
		}
		b.waiting = 0
		b.generation++
		b.cond.Broadcast()
		return nil
	}

	for gen == b.generation && !b.broken {
		b.cond.Wait()
	}
	if gen == b.generation {
		return ErrBarrierBroken
	}
	return nil
}

// Break releases every waiting party with ErrBarrierBroken. Later calls to
// Wait fail immediately.
func (b *Barrier) Break() {
	b.mu.Lock()
	b.broken = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// RetryFlag signals that coverage is incomplete and another pass is needed.
// It starts set so that at least one pass runs.
type RetryFlag struct {
	v atomic.Bool
}

// NewRetryFlag returns a flag in the set state
func NewRetryFlag() *RetryFlag {
	f := &RetryFlag{}
	f.v.Store(true)
	return f
}

func (f *RetryFlag) Set()        { f.v.Store(true) }
func (f *RetryFlag) Clear()      { f.v.Store(false) }
func (f *RetryFlag) IsSet() bool { return f.v.Load() }
