// Package schedule turns identifier lists into provider-sized batches and
// checkpoint-sized rounds, and partitions the identifier universe across workers.
package schedule

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	errs "vkharvest/pkg/errors"
)

// Method is one of the fixed collection methods supported by the provider
type Method string

const (
	Users  Method = "users"
	Groups Method = "groups"
	Walls  Method = "walls"
)

// Order is the fixed order in which a pass runs the methods
var Order = []Method{Users, Groups, Walls}

// SafetyMargin reserves 10% of the checkpoint window for jitter
const SafetyMargin = 1.1

// BatchSize returns the provider's maximum identifiers per call
func (m Method) BatchSize() int {
	switch m {
	case Walls:
		return 10
	case Users, Groups:
		return 25
	default:
		return 0
	}
}

// Latency returns the expected round trip of one call
func (m Method) Latency() time.Duration {
	switch m {
	case Users:
		return 5 * time.Second
	case Groups:
		return 4 * time.Second
	case Walls:
		return 15 * time.Second
	default:
		return 0
	}
}

// Valid reports whether m is a known method
func (m Method) Valid() bool {
	return m.BatchSize() > 0
}

func (m Method) String() string {
	return string(m)
}

// ParseMethod validates a method name
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", errs.Newf(errs.ErrorTypeConfig, "unknown method %q", s)
	}
	return m, nil
}

// RoundSize returns how many batches one worker can pace through inside a
// checkpoint window: floor((checkpoint - latency) / 1.1 / minInterval).
// A result of zero or less is a configuration error.
func RoundSize(checkpoint, latency, minInterval time.Duration) (int, error) {
	if minInterval <= 0 {
		return 0, errs.New(errs.ErrorTypeConfig, "minimum request interval must be positive")
	}
	size := int(math.Floor((checkpoint - latency).Seconds() / SafetyMargin / minInterval.Seconds()))
	if size <= 0 {
		return 0, errs.Newf(errs.ErrorTypeConfig,
			"checkpoint interval %s is too small for latency %s at %s spacing", checkpoint, latency, minInterval)
	}
	return size, nil
}

// Batch is a group of identifiers sent in one call
type Batch []int64

// Join renders the batch as the provider's comma separated list
func (b Batch) Join() string {
	parts := make([]string, len(b))
	for i, id := range b {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// Batches splits ids into consecutive groups of at most size
func Batches(ids []int64, size int) []Batch {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	out := make([]Batch, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, Batch(ids[start:end]))
	}
	return out
}

// Rounds groups batches into rounds of at most perRound batches
func Rounds(batches []Batch, perRound int) [][]Batch {
	if perRound <= 0 || len(batches) == 0 {
		return nil
	}
	out := make([][]Batch, 0, (len(batches)+perRound-1)/perRound)
	for start := 0; start < len(batches); start += perRound {
		end := min(start+perRound, len(batches))
		out = append(out, batches[start:end])
	}
	return out
}

// Plan is the round layout for one method over one identifier list
type Plan struct {
	Method    Method
	RoundSize int
	Rounds    [][]Batch
}

// NewPlan batches ids for m and groups the batches into checkpoint-sized rounds
func NewPlan(m Method, ids []int64, checkpoint, minInterval time.Duration) (Plan, error) {
	if !m.Valid() {
		return Plan{}, errs.Newf(errs.ErrorTypeConfig, "unknown method %q", m)
	}
	size, err := RoundSize(checkpoint, m.Latency(), minInterval)
	if err != nil {
		return Plan{}, fmt.Errorf("plan %s: %w", m, err)
	}
	return Plan{
		Method:    m,
		RoundSize: size,
		Rounds:    Rounds(Batches(ids, m.BatchSize()), size),
	}, nil
}

// Batches returns the total number of batches in the plan
func (p Plan) Batches() int {
	n := 0
	for _, r := range p.Rounds {
		n += len(r)
	}
	return n
}

// Universe deduplicates and sorts raw identifiers
func Universe(raw []int64) []int64 {
	seen := make(map[int64]struct{}, len(raw))
	out := make([]int64, 0, len(raw))
	for _, id := range raw {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Chunk splits ids into exactly n contiguous chunks of ceil(len/n) items.
// Trailing chunks may be empty when ids does not fill them.
func Chunk(ids []int64, n int) [][]int64 {
	if n <= 0 {
		return nil
	}
	size := (len(ids) + n - 1) / n
	out := make([][]int64, n)
	for i := range out {
		start := min(i*size, len(ids))
		end := min(start+size, len(ids))
		out[i] = ids[start:end]
	}
	return out
}
