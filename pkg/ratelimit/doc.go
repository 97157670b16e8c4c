// Package ratelimit spaces the outbound requests of one worker.
//
// The provider enforces a per-credential request ceiling, so every request a
// worker sends must leave at least a fixed interval after the previous one,
// no matter how many requests of a round are in flight.
//
// Two pacers are available:
//
// Chain:
//   - one gate per task of a round
//   - task i waits for gate i-1, then for the interval, then opens gate i
//   - transmission order equals task order
//
// Spacer:
//   - a mutex-protected next-allowed time shared by all tasks of a worker
//   - spacing holds across rounds, order is first come first served
//
// Both return the release time of each task so callers can log or assert on
// the actual spacing:
//
//	pacer := ratelimit.NewChain(len(round), 400*time.Millisecond)
//	for i := range round {
//	    go func(i int) {
//	        at, err := pacer.Acquire(ctx, i)
//	        // send request
//	    }(i)
//	}
package ratelimit
