package main

import (
	"context"
	"sync"
)

// EventQueue is an unbounded FIFO shared by every producer and drained by a
// single consumer.
//
// The wake signal is a one-slot channel. Publish fills it after appending;
// ClearIfEmpty empties it only while holding the same lock that proves the
// queue is empty, so an event published during a drain always leaves the
// signal set for the next Wait.
type EventQueue struct {
	mu     sync.Mutex
	events []Event
	wake   chan struct{}
}

// NewEventQueue creates an empty queue with the wake signal cleared.
func NewEventQueue() *EventQueue {
	return &EventQueue{
		events: make([]Event, 0, 16),
		wake:   make(chan struct{}, 1),
	}
}

// Publish appends ev and sets the wake signal. It never blocks.
func (q *EventQueue) Publish(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(q.events, ev)
	select {
	case q.wake <- struct{}{}:
	default:
		// already signalled
	}
}

// Wait blocks until the wake signal is set or ctx is done. The signal stays
// set until ClearIfEmpty observes an empty queue.
func (q *EventQueue) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.wake:
		// Put the token back: clearing is ClearIfEmpty's job.
		select {
		case q.wake <- struct{}{}:
		default:
		}
		return nil
	}
}

// Pop removes and returns the oldest event.
func (q *EventQueue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil, false
	}
	ev := q.events[0]
	q.events[0] = nil
	q.events = q.events[1:]
	return ev, true
}

// ClearIfEmpty clears the wake signal if no events are queued and reports
// whether it did.
func (q *EventQueue) ClearIfEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) > 0 {
		return false
	}
	select {
	case <-q.wake:
	default:
	}
	return true
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Signalled reports whether the wake signal is currently set.
func (q *EventQueue) Signalled() bool {
	return len(q.wake) > 0
}
