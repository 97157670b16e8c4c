package collector

import (
	"context"
	"errors"
	"time"

	"github.com/alitto/pond/v2"

	errs "vkharvest/pkg/errors"
	"vkharvest/pkg/features"
	"vkharvest/pkg/schedule"
	"vkharvest/pkg/store"
	"vkharvest/pkg/vkapi"
)

type response struct {
	batch   schedule.Batch
	env     *vkapi.Envelope
	err     error
	skipped bool
}

// sendRound launches every batch of the round at once; the pacer orders
// their transmissions while the waits for responses overlap. The round runs
// on a context without cancellation so it always completes.
func (e *Executor) sendRound(ctx context.Context, m schedule.Method, round []schedule.Batch) []response {
	roundCtx := context.WithoutCancel(ctx)
	out := make([]response, len(round))
	pacer := e.pacer(len(round))

	// Exhaustion ends the pacing waits of the remaining tasks; calls already
	// sent still run on roundCtx.
	pacingCtx, stopPacing := context.WithCancel(roundCtx)
	defer stopPacing()

	pool := pond.NewPool(len(round))
	defer pool.StopAndWait()
	group := pool.NewGroupContext(roundCtx)

	for i, batch := range round {
		out[i].batch = batch
		group.Submit(func() {
			if e.deps.Tracker.Exhausted(e.token, m) {
				out[i].skipped = true
				return
			}
			if _, err := pacer.Acquire(pacingCtx, i); err != nil {
				if e.deps.Tracker.Exhausted(e.token, m) {
					out[i].skipped = true
					return
				}
				out[i].err = err
				return
			}
			if e.deps.Tracker.Exhausted(e.token, m) {
				out[i].skipped = true
				return
			}

			start := time.Now()
			env, err := e.deps.Client.Call(roundCtx, m, batch, e.token)
			e.deps.Metrics.Request(m.String(), time.Since(start))
			out[i].env, out[i].err = env, err

			if err == nil && env.Exhausted() {
				if e.deps.Tracker.Exhaust(e.token, m) {
					e.deps.Metrics.Exhausted(m.String())
				}
				stopPacing()
			}
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		e.logger.WithError(err).Warn("round task group ended with error")
	}
	return out
}

// classify decides a response's outcome and returns the payload to persist,
// nil when nothing should be written. An exhausted response keeps the
// entries the provider did return.
func (e *Executor) classify(m schedule.Method, r response) (Outcome, *vkapi.Envelope) {
	fields := map[string]interface{}{
		"method": m.String(),
		"first":  r.batch[0],
		"size":   len(r.batch),
	}

	if r.skipped {
		return Limited, nil
	}
	if r.err != nil {
		e.logger.WithError(r.err).WarnWithFields("batch failed", fields)
		return Failed, nil
	}

	switch r.env.Kind {
	case vkapi.KindSuccess:
		return Stored, r.env
	case vkapi.KindPartialErrors:
		if r.env.Exhausted() {
			if r.env.HasPayload() {
				return Limited, r.env
			}
			return Limited, nil
		}
		e.logger.WithError(r.env.Err()).WarnWithFields("batch returned execution errors", fields)
		if r.env.HasPayload() {
			return Stored, r.env
		}
		return Failed, nil
	case vkapi.KindHardError:
		if r.env.Exhausted() {
			return Limited, nil
		}
		e.logger.WithError(r.env.Err()).WarnWithFields("batch rejected", fields)
		return Failed, nil
	default:
		return Failed, nil
	}
}

// runRound sends, classifies, shapes and commits one round
func (e *Executor) runRound(ctx context.Context, m schedule.Method, round []schedule.Batch) (RoundReport, error) {
	start := time.Now()
	report := RoundReport{Worker: e.opts.Worker, Method: m}

	var w write
	for _, r := range e.sendRound(ctx, m, round) {
		outcome, env := e.classify(m, r)
		if outcome != Stored || r.env.Kind != vkapi.KindSuccess {
			e.deps.Retry.Set()
		}
		if env != nil {
			if err := w.add(m, env, outcome == Limited); err != nil {
				e.logger.WithError(err).WarnWithFields("payload could not be shaped", map[string]interface{}{
					"method": m.String(),
					"first":  r.batch[0],
				})
				e.deps.Retry.Set()
				if outcome == Stored {
					outcome = Failed
				}
			}
		}
		e.deps.Metrics.Batch(m.String(), string(outcome))
		switch outcome {
		case Stored:
			report.Stored++
		case Limited:
			report.Limited++
		case Failed:
			report.Failed++
		}
	}

	if w.skipped > 0 || len(w.purge) > 0 {
		e.deps.Retry.Set()
	}
	if err := e.deps.Store.Update(context.WithoutCancel(ctx), w.apply); err != nil {
		return report, err
	}

	report.Written = w.written()
	report.Purged = len(w.purge)
	report.Duration = time.Since(start)
	e.deps.Metrics.Round(m.String(), report.Duration, report.Written)
	e.deps.Metrics.Purged("vanished", len(w.purge))
	e.logger.InfoWithFields("round committed", map[string]interface{}{
		"method":   m.String(),
		"batches":  len(round),
		"stored":   report.Stored,
		"limited":  report.Limited,
		"failed":   report.Failed,
		"written":  report.Written,
		"purged":   report.Purged,
		"duration": report.Duration,
	})
	return report, nil
}

type profileWrite struct {
	id          int64
	deactivated bool
	closed      bool
	detail      *features.Row
}

// write accumulates the shaped results of a round. apply only reads it, so
// a replayed transaction writes the same rows.
type write struct {
	profiles []profileWrite
	groups   []features.Row
	walls    []features.Row
	purge    []int64
	skipped  int
}

func (w *write) written() int {
	return len(w.profiles) + len(w.groups) + len(w.walls)
}

// add shapes a payload. For an exhausted response a false entry may stand
// for a call the quota refused, so it is left for the next pass instead of
// purging the account.
func (w *write) add(m schedule.Method, env *vkapi.Envelope, limited bool) error {
	switch m {
	case schedule.Users:
		profiles, err := env.Profiles()
		if err != nil {
			return err
		}
		for _, p := range profiles {
			if err := w.addProfile(p); err != nil {
				w.skipped++
			}
		}
		return nil
	case schedule.Groups, schedule.Walls:
		items, err := env.Items()
		if err != nil {
			return err
		}
		for _, it := range items {
			if it.Vanished {
				if !limited {
					w.purge = append(w.purge, it.ID)
				}
				continue
			}
			if err := w.addItem(m, it); err != nil {
				w.skipped++
			}
		}
		return nil
	default:
		return errs.Newf(errs.ErrorTypeConfig, "unknown method %q", m)
	}
}

func (w *write) addProfile(p vkapi.Profile) error {
	id, err := p.ID()
	if err != nil {
		return err
	}
	pw := profileWrite{id: id, deactivated: p.Deactivated(), closed: p.Closed()}
	if !pw.deactivated {
		row, err := features.ProfileRow(p, features.VariantOf(p))
		if err != nil {
			return err
		}
		pw.detail = &row
	}
	w.profiles = append(w.profiles, pw)
	return nil
}

func (w *write) addItem(m schedule.Method, it vkapi.Item) error {
	if m == schedule.Groups {
		gl, err := it.Groups()
		if err != nil {
			return err
		}
		w.groups = append(w.groups, features.GroupSummary(it.ID, gl))
		return nil
	}
	wall, err := it.Wall()
	if err != nil {
		return err
	}
	w.walls = append(w.walls, features.WallSummary(it.ID, wall))
	return nil
}

func (w *write) apply(tx *store.Tx) error {
	for _, p := range w.profiles {
		if err := tx.InsertProfile(p.id, p.deactivated, p.closed); err != nil {
			return err
		}
		if p.detail == nil {
			continue
		}
		v := features.Open
		if p.closed {
			v = features.Closed
		}
		if err := tx.InsertDetail(v, *p.detail); err != nil {
			return err
		}
	}
	for _, row := range w.groups {
		if err := tx.InsertGroupSummary(row); err != nil {
			return err
		}
	}
	for _, row := range w.walls {
		if err := tx.InsertWallSummary(row); err != nil {
			return err
		}
	}
	for _, id := range w.purge {
		if err := tx.Purge(id); err != nil {
			return err
		}
	}
	return nil
}
