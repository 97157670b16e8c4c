// Package orchestrator runs collection passes across a fixed set of workers,
// each bound to one egress client, until every identifier is covered or no
// usable credential is left.
package orchestrator

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vkharvest/pkg/auth"
	"vkharvest/pkg/collector"
	errs "vkharvest/pkg/errors"
	"vkharvest/pkg/limits"
	"vkharvest/pkg/logger"
	"vkharvest/pkg/metrics"
	"vkharvest/pkg/ratelimit"
	"vkharvest/pkg/schedule"
)

// Config describes one run
type Config struct {
	// Universe is the raw identifier list; it is deduplicated and sorted
	Universe []int64
	Methods  []schedule.Method

	// Parallelism defaults to GOMAXPROCS
	Parallelism int
	// MaxWorkers caps the worker count; 0 means no cap
	MaxWorkers int
	// MaxPasses stops the run after this many passes; 0 means no limit
	MaxPasses int

	Checkpoint    time.Duration
	MinInterval   time.Duration
	Pacing        ratelimit.Strategy
	ProgressEvery time.Duration
}

// Journal records run progress outside the state store
type Journal interface {
	BeginPass(pass int) error
	RecordRound(method string, stored, limited, failed int) error
	Finish(exhaustion map[string][]string, incomplete bool) error
}

// Deps are the collaborators of a run
type Deps struct {
	// Clients holds one API client per egress binding, in worker order
	Clients     []collector.APIClient
	Credentials []string
	Store       collector.Store
	Metrics     *metrics.Metrics
	Journal     Journal
	Logger      logger.Logger
}

// Shared is the state every worker of a run sees
type Shared struct {
	Tracker *limits.Tracker
	Retry   *RetryFlag
	Barrier *Barrier
}

// Totals accumulates executor summaries for one method
type Totals struct {
	Rounds  int
	Stored  int
	Limited int
	Failed  int
	Written int
	Purged  int
}

// Report is the outcome of a run
type Report struct {
	Passes     int
	Workers    int
	Incomplete bool
	Remaining  map[schedule.Method]int
	// Exhaustion is keyed by masked credential
	Exhaustion map[string]map[schedule.Method]bool
	Totals     map[schedule.Method]Totals
}

type assignment struct {
	method schedule.Method
	tokens []string
	chunks [][]int64
}

// Orchestrator coordinates the workers of one run
type Orchestrator struct {
	cfg      Config
	deps     Deps
	universe []int64
	workers  int
	shared   Shared
	logger   logger.Logger

	// written only inside barrier actions
	pass    int
	done    bool
	current assignment

	mu     sync.Mutex
	totals map[schedule.Method]*Totals
}

// New validates the run and sizes the worker set. Nothing is sent until Run.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if len(deps.Credentials) == 0 {
		return nil, errs.New(errs.ErrorTypeConfig, "no usable credentials")
	}
	if len(deps.Clients) == 0 {
		return nil, errs.New(errs.ErrorTypeConfig, "no egress bindings")
	}
	if deps.Store == nil {
		return nil, errs.New(errs.ErrorTypeConfig, "no state store")
	}
	if len(cfg.Methods) == 0 {
		return nil, errs.New(errs.ErrorTypeConfig, "no methods to run")
	}
	for _, m := range cfg.Methods {
		if _, err := schedule.RoundSize(cfg.Checkpoint, m.Latency(), cfg.MinInterval); err != nil {
			return nil, err
		}
	}
	if _, err := ratelimit.NewFactory(cfg.Pacing, cfg.MinInterval); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, "pacing", err)
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}

	tracker := limits.NewTracker(deps.Credentials)
	n := workerCount(len(deps.Clients), len(tracker.Credentials()), cfg.Parallelism, cfg.MaxWorkers)

	totals := make(map[schedule.Method]*Totals, len(cfg.Methods))
	for _, m := range cfg.Methods {
		totals[m] = &Totals{}
	}

	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		universe: schedule.Universe(cfg.Universe),
		workers:  n,
		shared: Shared{
			Tracker: tracker,
			Retry:   NewRetryFlag(),
			Barrier: NewBarrier(n),
		},
		logger: deps.Logger.WithField("component", "orchestrator"),
		totals: totals,
	}, nil
}

func workerCount(bindings, credentials, parallelism, maxWorkers int) int {
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	n := min(bindings, credentials, parallelism)
	if maxWorkers > 0 {
		n = min(n, maxWorkers)
	}
	return max(n, 1)
}

// Workers returns the number of workers Run starts
func (o *Orchestrator) Workers() int {
	return o.workers
}

// Shared exposes the run's shared state
func (o *Orchestrator) Shared() Shared {
	return o.shared
}

// Run executes passes until the retry flag stays clear for a whole pass, the
// pass limit is reached or ctx is cancelled. The report is filled in every case.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	logger.LogComponentStart(o.logger, "orchestrator", map[string]interface{}{
		"workers":     o.workers,
		"credentials": len(o.deps.Credentials),
		"bindings":    len(o.deps.Clients),
		"identifiers": len(o.universe),
	})

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, o.shared.Barrier.Break)
	for i := 0; i < o.workers; i++ {
		w := &worker{
			index:     i,
			o:         o,
			client:    o.deps.Clients[i],
			executors: make(map[string]*collector.Executor),
		}
		g.Go(func() error { return w.run(gctx) })
	}
	err := g.Wait()
	stop()

	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	report, rerr := o.report(context.WithoutCancel(ctx))
	if rerr != nil {
		err = errors.Join(err, rerr)
	}

	reason := "complete"
	switch {
	case err != nil:
		reason = "error"
	case report.Incomplete:
		reason = "incomplete"
	}
	logger.LogComponentStop(o.logger, "orchestrator", reason)
	return report, err
}

func (o *Orchestrator) beginPass() {
	if !o.shared.Retry.IsSet() {
		o.done = true
		return
	}
	if o.cfg.MaxPasses > 0 && o.pass >= o.cfg.MaxPasses {
		o.logger.WarnWithFields("pass limit reached with coverage incomplete", map[string]interface{}{
			"passes": o.pass,
		})
		o.done = true
		return
	}

	o.pass++
	o.shared.Retry.Clear()
	o.deps.Metrics.Pass(o.pass)
	if o.deps.Journal != nil {
		if err := o.deps.Journal.BeginPass(o.pass); err != nil {
			o.logger.WithError(err).Warn("failed to record pass start")
		}
	}
	o.logger.WithField("pass", o.pass).Info("pass started")
}

func (o *Orchestrator) assign(m schedule.Method) {
	available := o.shared.Tracker.Available(m)
	k := min(o.workers, len(available))
	if k == 0 {
		o.logger.WarnWithFields("every credential is exhausted for method, skipping it this pass", map[string]interface{}{
			"method": m.String(),
			"pass":   o.pass,
		})
		o.current = assignment{method: m}
		return
	}

	o.current = assignment{
		method: m,
		tokens: available[:k],
		chunks: schedule.Chunk(o.universe, k),
	}
	o.logger.DebugWithFields("method partitioned", map[string]interface{}{
		"method":  m.String(),
		"workers": k,
	})
}

func (o *Orchestrator) endPass() {
	o.logger.InfoWithFields("pass finished", map[string]interface{}{
		"pass":  o.pass,
		"retry": o.shared.Retry.IsSet(),
	})
}

func (o *Orchestrator) recordRound(r collector.RoundReport) {
	if o.deps.Journal == nil {
		return
	}
	if err := o.deps.Journal.RecordRound(r.Method.String(), r.Stored, r.Limited, r.Failed); err != nil {
		o.logger.WithError(err).Warn("failed to record round")
	}
}

func (o *Orchestrator) addSummary(s collector.Summary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.totals[s.Method]
	if !ok {
		return
	}
	t.Rounds += s.Rounds
	t.Stored += s.Stored
	t.Limited += s.Limited
	t.Failed += s.Failed
	t.Written += s.Written
	t.Purged += s.Purged
}

func (o *Orchestrator) report(ctx context.Context) (Report, error) {
	r := Report{
		Passes:     o.pass,
		Workers:    o.workers,
		Incomplete: o.shared.Retry.IsSet(),
		Remaining:  make(map[schedule.Method]int, len(o.cfg.Methods)),
		Exhaustion: make(map[string]map[schedule.Method]bool),
		Totals:     make(map[schedule.Method]Totals, len(o.cfg.Methods)),
	}

	journal := make(map[string][]string)
	for token, flags := range o.shared.Tracker.Snapshot() {
		masked := auth.Mask(token)
		r.Exhaustion[masked] = flags
		spent := []string{}
		for _, m := range schedule.Order {
			if flags[m] {
				spent = append(spent, m.String())
			}
		}
		journal[masked] = spent
	}

	o.mu.Lock()
	for m, t := range o.totals {
		r.Totals[m] = *t
	}
	o.mu.Unlock()

	var errList []error
	for _, m := range o.cfg.Methods {
		left, err := o.deps.Store.Remaining(ctx, m, o.universe)
		if err != nil {
			errList = append(errList, err)
			continue
		}
		r.Remaining[m] = len(left)
		if len(left) > 0 {
			r.Incomplete = true
		}
	}

	if o.deps.Journal != nil {
		if err := o.deps.Journal.Finish(journal, r.Incomplete); err != nil {
			o.logger.WithError(err).Warn("failed to record run outcome")
		}
	}
	return r, errors.Join(errList...)
}

type worker struct {
	index     int
	o         *Orchestrator
	client    collector.APIClient
	executors map[string]*collector.Executor
}

func (w *worker) run(ctx context.Context) error {
	b := w.o.shared.Barrier
	for {
		if err := b.Wait(w.o.beginPass); err != nil {
			return err
		}
		if w.o.done {
			return nil
		}

		for _, m := range w.o.cfg.Methods {
			if err := b.Wait(func() { w.o.assign(m) }); err != nil {
				return err
			}
			if err := w.collect(ctx, w.o.current); err != nil {
				return err
			}
		}

		if err := b.Wait(w.o.endPass); err != nil {
			return err
		}
	}
}

func (w *worker) collect(ctx context.Context, a assignment) error {
	if w.index >= len(a.tokens) {
		return nil
	}
	exec, err := w.executor(a.tokens[w.index])
	if err != nil {
		return err
	}
	sum, err := exec.RunMethod(ctx, a.method, a.chunks[w.index])
	w.o.addSummary(sum)
	return err
}

func (w *worker) executor(token string) (*collector.Executor, error) {
	if e, ok := w.executors[token]; ok {
		return e, nil
	}
	e, err := collector.NewExecutor(token, collector.Deps{
		Client:  w.client,
		Store:   w.o.deps.Store,
		Tracker: w.o.shared.Tracker,
		Retry:   w.o.shared.Retry,
		Metrics: w.o.deps.Metrics,
		OnRound: w.o.recordRound,
		Logger:  w.o.deps.Logger,
	}, collector.Options{
		Worker:        w.index,
		Checkpoint:    w.o.cfg.Checkpoint,
		MinInterval:   w.o.cfg.MinInterval,
		Pacing:        w.o.cfg.Pacing,
		Methods:       w.o.cfg.Methods,
		ProgressEvery: w.o.cfg.ProgressEvery,
	})
	if err != nil {
		return nil, err
	}
	w.executors[token] = e
	return e, nil
}
