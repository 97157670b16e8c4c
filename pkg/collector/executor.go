package collector

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"vkharvest/pkg/auth"
	errs "vkharvest/pkg/errors"
	"vkharvest/pkg/limits"
	"vkharvest/pkg/logger"
	"vkharvest/pkg/metrics"
	"vkharvest/pkg/ratelimit"
	"vkharvest/pkg/schedule"
	"vkharvest/pkg/store"
	"vkharvest/pkg/vkapi"
)

// APIClient sends one batch for one method
type APIClient interface {
	Call(ctx context.Context, m schedule.Method, batch schedule.Batch, token string) (*vkapi.Envelope, error)
}

// Store is the part of the state store the executor uses
type Store interface {
	Remaining(ctx context.Context, m schedule.Method, scope []int64) ([]int64, error)
	Inconsistent(ctx context.Context) ([]int64, error)
	Update(ctx context.Context, fn func(*store.Tx) error) error
	Purge(ctx context.Context, ids ...int64) error
}

// RetrySignal is raised whenever coverage is known to be incomplete
type RetrySignal interface {
	Set()
}

// Outcome is the terminal state of one batch
type Outcome string

const (
	Stored  Outcome = "stored"
	Limited Outcome = "limited"
	Failed  Outcome = "failed"
)

// RoundReport describes one committed round
type RoundReport struct {
	Worker   int
	Method   schedule.Method
	Round    int
	Stored   int
	Limited  int
	Failed   int
	Written  int
	Purged   int
	Duration time.Duration
}

// Summary describes one RunMethod call
type Summary struct {
	Method    schedule.Method
	Rounds    int
	Stored    int
	Limited   int
	Failed    int
	Written   int
	Purged    int
	Remaining int
	Exhausted bool
}

func (s *Summary) add(r RoundReport) {
	s.Rounds++
	s.Stored += r.Stored
	s.Limited += r.Limited
	s.Failed += r.Failed
	s.Written += r.Written
	s.Purged += r.Purged
}

// Options tunes an Executor
type Options struct {
	Worker      int
	Checkpoint  time.Duration
	MinInterval time.Duration
	Pacing      ratelimit.Strategy
	// Methods the executor is sized for; defaults to every method
	Methods []schedule.Method
	// ProgressEvery throttles progress logs; zero logs every sweep
	ProgressEvery time.Duration
}

// Deps are the collaborators of an Executor
type Deps struct {
	Client  APIClient
	Store   Store
	Tracker *limits.Tracker
	Retry   RetrySignal
	Metrics *metrics.Metrics
	// OnRound is called after every committed round
	OnRound func(RoundReport)
	Logger  logger.Logger
}

// Executor runs methods for one credential. Construction sends nothing.
type Executor struct {
	token    string
	opts     Options
	deps     Deps
	pacer    ratelimit.Factory
	progress *rate.Sometimes
	logger   logger.Logger
}

// NewExecutor validates the options and wires the collaborators
func NewExecutor(token string, deps Deps, opts Options) (*Executor, error) {
	if token == "" {
		return nil, errs.New(errs.ErrorTypeConfig, "executor needs a credential")
	}
	if deps.Client == nil || deps.Store == nil || deps.Tracker == nil || deps.Retry == nil {
		return nil, errs.New(errs.ErrorTypeConfig, "executor needs a client, store, tracker and retry signal")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	if len(opts.Methods) == 0 {
		opts.Methods = schedule.Order
	}
	for _, m := range opts.Methods {
		if _, err := schedule.RoundSize(opts.Checkpoint, m.Latency(), opts.MinInterval); err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
	}
	pacer, err := ratelimit.NewFactory(opts.Pacing, opts.MinInterval)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, "pacing", err)
	}

	progress := &rate.Sometimes{Every: 1}
	if opts.ProgressEvery > 0 {
		progress = &rate.Sometimes{Interval: opts.ProgressEvery}
	}

	return &Executor{
		token:    token,
		opts:     opts,
		deps:     deps,
		pacer:    pacer,
		progress: progress,
		logger: deps.Logger.WithFields(map[string]interface{}{
			"worker":     opts.Worker,
			"credential": auth.Mask(token),
		}),
	}, nil
}

// Token returns the executor's credential
func (e *Executor) Token() string {
	return e.token
}

// RunMethod collects m for every identifier of scope that still needs it.
// Rounds are never interrupted: cancellation is honoured between rounds and
// the round in flight is committed first.
func (e *Executor) RunMethod(ctx context.Context, m schedule.Method, scope []int64) (Summary, error) {
	sum := Summary{Method: m}
	log := e.logger.WithField("method", m.String())

	if e.deps.Tracker.Exhausted(e.token, m) {
		sum.Exhausted = true
		return sum, nil
	}

	prev := -1
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		remaining, err := e.deps.Store.Remaining(ctx, m, scope)
		if err != nil {
			return sum, fmt.Errorf("remaining %s: %w", m, err)
		}
		sum.Remaining = len(remaining)
		e.deps.Metrics.Remaining(m.String(), fmt.Sprint(e.opts.Worker), len(remaining))
		e.progress.Do(func() {
			logger.LogProgress(log, m.String(), len(scope), len(remaining))
		})

		if len(remaining) == 0 {
			break
		}
		if prev >= 0 && len(remaining) >= prev {
			log.WarnWithFields("sweep made no progress, leaving the rest to the next pass", map[string]interface{}{
				"remaining": len(remaining),
			})
			break
		}
		prev = len(remaining)

		plan, err := schedule.NewPlan(m, remaining, e.opts.Checkpoint, e.opts.MinInterval)
		if err != nil {
			return sum, err
		}
		log.DebugWithFields("sweep planned", map[string]interface{}{
			"remaining":  len(remaining),
			"rounds":     len(plan.Rounds),
			"round_size": plan.RoundSize,
		})

		for i, round := range plan.Rounds {
			if e.deps.Tracker.Exhausted(e.token, m) {
				break
			}
			if err := ctx.Err(); err != nil {
				e.deps.Retry.Set()
				return sum, err
			}
			report, err := e.runRound(ctx, m, round)
			report.Round = sum.Rounds + 1
			if err != nil {
				e.deps.Retry.Set()
				return sum, fmt.Errorf("%s round %d: %w", m, i+1, err)
			}
			sum.add(report)
			if e.deps.OnRound != nil {
				e.deps.OnRound(report)
			}
		}

		if e.deps.Tracker.Exhausted(e.token, m) {
			sum.Exhausted = true
			log.Warn("credential exhausted for method")
			break
		}
	}

	if m == schedule.Users {
		purged, err := e.checkConsistency(ctx, scope)
		if err != nil {
			return sum, err
		}
		sum.Purged += purged
	}

	if sum.Remaining > 0 || sum.Exhausted {
		e.deps.Retry.Set()
	}
	return sum, nil
}

// checkConsistency purges profiles of scope whose detail row is missing
func (e *Executor) checkConsistency(ctx context.Context, scope []int64) (int, error) {
	bad, err := e.deps.Store.Inconsistent(ctx)
	if err != nil {
		return 0, fmt.Errorf("consistency check: %w", err)
	}
	in := make(map[int64]struct{}, len(scope))
	for _, id := range scope {
		in[id] = struct{}{}
	}
	var mine []int64
	for _, id := range bad {
		if _, ok := in[id]; ok {
			mine = append(mine, id)
		}
	}
	if len(mine) == 0 {
		return 0, nil
	}

	e.deps.Retry.Set()
	e.logger.WarnWithFields("profiles without detail rows, purging for re-fetch", map[string]interface{}{
		"count": len(mine),
	})
	if err := e.deps.Store.Purge(ctx, mine...); err != nil {
		return 0, fmt.Errorf("purge inconsistent: %w", err)
	}
	e.deps.Metrics.Purged("inconsistent", len(mine))
	return len(mine), nil
}
