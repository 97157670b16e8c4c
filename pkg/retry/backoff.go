package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff grows the delay between attempts by Factor up to Max. Jitter
// spreads each delay by +/- that fraction.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// CommitBackoff is tuned for SQLite lock contention between workers
func CommitBackoff() Backoff {
	return Backoff{
		Base:   50 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2,
		Jitter: 0.2,
	}
}

// Delay returns the wait before retry number attempt, counting from 1
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 || b.Base <= 0 {
		return 0
	}
	factor := math.Max(b.Factor, 1)
	d := float64(b.Base) * math.Pow(factor, float64(attempt-1))
	if b.Max > 0 {
		d = math.Min(d, float64(b.Max))
	}
	if b.Jitter > 0 {
		d += d * b.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(math.Max(d, 0))
}

func sleep(ctx context.Context, d time.Duration) error {
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
