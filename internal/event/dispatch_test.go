package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherFiltersAndSequences(t *testing.T) {
	d := NewDispatcher(DefaultRules())

	d.Emit(Event{Category: CategoryOtherSignal, Signal: "SIGUSR1"}) // filtered out
	d.Emit(Event{Category: CategoryExecSuccess})
	d.Emit(Event{Category: CategoryTraceeExit})
	d.Close()

	var got []Event
	for ev := range d.Events() {
		got = append(got, ev)
	}

	require.Len(t, got, 2)
	assert.Equal(t, CategoryExecSuccess, got[0].Category)
	assert.Equal(t, CategoryTraceeExit, got[1].Category)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, uint64(2), got[1].Seq)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestDispatcherCallbacks(t *testing.T) {
	d := NewDispatcher(DefaultRules())

	var seen []Category
	d.OnEvent(func(ev Event) {
		seen = append(seen, ev.Category)
	})

	d.Emit(Event{Category: CategoryExecFailure})
	d.Emit(Event{Category: CategoryOtherSignal}) // filtered, callback not invoked
	d.Close()

	assert.Equal(t, []Category{CategoryExecFailure}, seen)
}

func TestDispatcherDropsBacklogInsteadOfBlocking(t *testing.T) {
	d := NewDispatcher(DefaultRules())

	// Nobody reads the channel; overflow the buffer.
	for i := 0; i < defaultBuffer+10; i++ {
		d.Emit(Event{Category: CategoryExecSuccess})
	}

	assert.Greater(t, d.Dropped(), int64(0))

	// The warning about dropping is emitted exactly once.
	d.Close()
	warnings := 0
	for ev := range d.Events() {
		if ev.Category == CategoryWarning {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings)
}

func TestDispatcherEmitAfterClose(t *testing.T) {
	d := NewDispatcher(DefaultRules())
	d.Close()

	// Must not panic on send-after-close.
	d.Emit(Event{Category: CategoryExecSuccess})
}
