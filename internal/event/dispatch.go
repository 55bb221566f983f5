package event

import (
	"sync"
	"time"
)

// defaultBuffer is the per-dispatcher event buffer size. When a consumer lags
// this far behind, the oldest backlog is dropped rather than stalling tracing.
const defaultBuffer = 512

// Dispatcher applies filter rules, sequences events, and fans them out to a
// channel endpoint and registered callbacks. Sends never block the supervisor:
// a full channel drops the oldest buffered event and a one-time warning event
// records that it happened.
type Dispatcher struct {
	rules Rules

	mu        sync.Mutex
	seq       uint64
	events    chan Event
	callbacks []func(Event)
	closed    bool

	dropped    int64
	dropWarned bool
}

// NewDispatcher creates a dispatcher emitting events that pass the rules.
func NewDispatcher(rules Rules) *Dispatcher {
	return &Dispatcher{
		rules:  rules,
		events: make(chan Event, defaultBuffer),
	}
}

// Events returns the channel endpoint. It is closed by Close.
func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

// OnEvent registers a callback invoked for every emitted event. Callbacks run
// on the supervisor goroutine and must return promptly.
func (d *Dispatcher) OnEvent(cb func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks = append(d.callbacks, cb)
}

// Dropped returns how many events were discarded due to a full buffer.
func (d *Dispatcher) Dropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Emit filters, stamps and delivers an event.
func (d *Dispatcher) Emit(ev Event) {
	if !d.rules.Emit(ev.Category) {
		return
	}
	d.emit(ev)
}

func (d *Dispatcher) emit(ev Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	d.seq++
	ev.Seq = d.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	// Copy callbacks under lock, invoke outside it.
	cbs := make([]func(Event), len(d.callbacks))
	copy(cbs, d.callbacks)

	warnDrop := false
	select {
	case d.events <- ev:
	default:
		// Consumer is behind. Drop the oldest buffered event to make room so
		// tracing never stalls on a slow sink.
		select {
		case <-d.events:
			d.dropped++
		default:
		}
		select {
		case d.events <- ev:
		default:
			d.dropped++
		}
		if !d.dropWarned {
			d.dropWarned = true
			warnDrop = true
		}
	}
	d.mu.Unlock()

	for _, cb := range cbs {
		cb(ev)
	}

	if warnDrop && d.rules.Emit(CategoryWarning) {
		d.emit(Event{
			Category: CategoryWarning,
			Message:  "event consumer is too slow, dropping oldest backlog",
		})
	}
}

// Close closes the channel endpoint. Emit becomes a no-op afterwards.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.events)
}
