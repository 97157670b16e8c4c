package limits

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"vkharvest/pkg/schedule"
)

func TestExhaustIsMonotonic(t *testing.T) {
	tr := NewTracker([]string{"a", "b"})

	assert.False(t, tr.Exhausted("a", schedule.Users))
	assert.True(t, tr.Exhaust("a", schedule.Users))
	assert.False(t, tr.Exhaust("a", schedule.Users), "second exhaust must not report a change")
	assert.True(t, tr.Exhausted("a", schedule.Users))

	assert.False(t, tr.Exhausted("a", schedule.Groups))
	assert.False(t, tr.Exhausted("b", schedule.Users))
}

func TestAvailableKeepsConfiguredOrder(t *testing.T) {
	tr := NewTracker([]string{"c", "a", "b", "a"})
	tr.Exhaust("a", schedule.Groups)

	assert.Equal(t, []string{"c", "a", "b"}, tr.Credentials())
	assert.Equal(t, []string{"c", "b"}, tr.Available(schedule.Groups))
	assert.Equal(t, []string{"c", "a", "b"}, tr.Available(schedule.Walls))
}

func TestUnknownCredentialIsExhausted(t *testing.T) {
	tr := NewTracker([]string{"a"})
	assert.True(t, tr.Exhausted("zzz", schedule.Users))
	assert.False(t, tr.Exhaust("zzz", schedule.Users))
	assert.True(t, tr.Exhausted("a", schedule.Method("friends")))
}

func TestSnapshot(t *testing.T) {
	tr := NewTracker([]string{"a", "b"})
	tr.Exhaust("b", schedule.Walls)

	snap := tr.Snapshot()
	assert.Equal(t, map[schedule.Method]bool{
		schedule.Users: false, schedule.Groups: false, schedule.Walls: true,
	}, snap["b"])
	assert.False(t, snap["a"][schedule.Walls])
}

func TestConcurrentExhaust(t *testing.T) {
	tr := NewTracker([]string{"a"})
	var wg sync.WaitGroup
	changed := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed <- tr.Exhaust("a", schedule.Users)
		}()
	}
	wg.Wait()
	close(changed)

	count := 0
	for c := range changed {
		if c {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
