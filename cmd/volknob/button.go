package main

import (
	"sync"
	"time"
)

// Debouncer collapses button edges closer together than Window into one press.
//
// The window is measured from the last accepted edge, so a contact that keeps
// chattering for less than Window after a press produces nothing further.
type Debouncer struct {
	window time.Duration

	mu       sync.Mutex
	last     time.Time
	accepted bool
}

// NewDebouncer creates a debouncer. A zero window accepts every falling edge.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// OnButtonEdge reports a press for a falling edge observed at `at`, unless it
// falls inside the suppression window. The pin is registered for falling
// edges only, so every notification is a press; level is the raw reading
// taken after the edge and is carried along as-is.
func (d *Debouncer) OnButtonEdge(level Level, at time.Time) (ButtonPress, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.accepted && at.Sub(d.last) < d.window {
		return ButtonPress{}, false
	}
	d.last = at
	d.accepted = true
	return ButtonPress{Level: level}, true
}
