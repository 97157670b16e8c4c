// Package limits records which credentials the provider has exhausted for
// which collection method during one run.
package limits

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"vkharvest/pkg/schedule"
)

type flags struct {
	users  atomic.Bool
	groups atomic.Bool
	walls  atomic.Bool
}

func (f *flags) get(m schedule.Method) *atomic.Bool {
	switch m {
	case schedule.Users:
		return &f.users
	case schedule.Groups:
		return &f.groups
	case schedule.Walls:
		return &f.walls
	default:
		return nil
	}
}

// Tracker maps each credential to its per-method exhaustion flags. Flags only
// move from false to true; a new run needs a new Tracker.
type Tracker struct {
	order []string
	flags *xsync.Map[string, *flags]
}

// NewTracker registers the credentials in their configured order
func NewTracker(credentials []string) *Tracker {
	t := &Tracker{flags: xsync.NewMap[string, *flags]()}
	for _, c := range credentials {
		if _, loaded := t.flags.LoadOrStore(c, &flags{}); !loaded {
			t.order = append(t.order, c)
		}
	}
	return t
}

// Exhaust marks credential as exhausted for m and reports whether this call
// changed the flag
func (t *Tracker) Exhaust(credential string, m schedule.Method) bool {
	f, ok := t.flags.Load(credential)
	if !ok {
		return false
	}
	flag := f.get(m)
	if flag == nil {
		return false
	}
	return flag.CompareAndSwap(false, true)
}

// Exhausted reports whether credential may no longer be used for m. Unknown
// credentials and methods count as exhausted.
func (t *Tracker) Exhausted(credential string, m schedule.Method) bool {
	f, ok := t.flags.Load(credential)
	if !ok {
		return true
	}
	flag := f.get(m)
	return flag == nil || flag.Load()
}

// Available lists the credentials still usable for m in configured order
func (t *Tracker) Available(m schedule.Method) []string {
	out := make([]string, 0, len(t.order))
	for _, c := range t.order {
		if !t.Exhausted(c, m) {
			out = append(out, c)
		}
	}
	return out
}

// Credentials returns every tracked credential in configured order
func (t *Tracker) Credentials() []string {
	return append([]string(nil), t.order...)
}

// Snapshot copies the current flags
func (t *Tracker) Snapshot() map[string]map[schedule.Method]bool {
	out := make(map[string]map[schedule.Method]bool, len(t.order))
	for _, c := range t.order {
		row := make(map[schedule.Method]bool, len(schedule.Order))
		for _, m := range schedule.Order {
			row[m] = t.Exhausted(c, m)
		}
		out[c] = row
	}
	return out
}
