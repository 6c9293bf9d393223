package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ============================================================================
// Dispatcher - single consumer of the event queue
// ============================================================================
//
// Design rules:
//   - Only the dispatcher goroutine talks to the mixer, so at most one mixer
//     command is in flight and changes are applied in queue order.
//   - Producers (GPIO watchers, IPC) only Publish; they never block on the mixer.
//   - A failed mixer command stops the dispatcher. The caller treats this as
//     fatal rather than continue with a mixer state it can no longer vouch for.
//
// ============================================================================

// RequestStateSnapshot asks the dispatcher for the current mixer state.
// It is queued like any other event so Volume stays single-owner.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// StateSnapshot is a point-in-time copy of the mixer state.
type StateSnapshot struct {
	Level int
	Muted bool
	At    time.Time
}

// StateBroadcast is a state change offered to the status feed.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastLevelChanged is emitted when the mixer reports a new level.
type BroadcastLevelChanged struct {
	Level int
	At    time.Time
}

func (BroadcastLevelChanged) broadcastMarker() {}

// BroadcastMuteChanged is emitted when the mixer reports a new mute state.
type BroadcastMuteChanged struct {
	Muted bool
	At    time.Time
}

func (BroadcastMuteChanged) broadcastMarker() {}

// Dispatcher drains the event queue and applies each event to the volume.
type Dispatcher struct {
	queue      *EventQueue
	volume     *Volume
	rotary     *rotaryState
	rotaryCfg  RotaryConfig
	broadcasts chan<- StateBroadcast // optional
	logger     *slog.Logger
	now        func() time.Time
}

// NewDispatcher creates a dispatcher. broadcasts may be nil.
func NewDispatcher(queue *EventQueue, volume *Volume, rotaryCfg RotaryConfig, broadcasts chan<- StateBroadcast, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:      queue,
		volume:     volume,
		rotary:     newRotaryState(),
		rotaryCfg:  rotaryCfg,
		broadcasts: broadcasts,
		logger:     logger,
		now:        time.Now,
	}
}

// Run waits for events and applies them until ctx is canceled (returns nil)
// or an event fails to apply (returns the error).
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if err := d.queue.Wait(ctx); err != nil {
			d.logger.Info("dispatcher stopping (context canceled)")
			return nil
		}
		if err := d.DrainAndApply(ctx); err != nil {
			if ctx.Err() != nil {
				// A command cut short by shutdown is not a mixer failure.
				d.logger.Info("dispatcher stopping (context canceled)", "interrupted", err)
				return nil
			}
			return err
		}
	}
}

// DrainAndApply applies queued events oldest first until the queue is empty,
// then clears the wake signal.
func (d *Dispatcher) DrainAndApply(ctx context.Context) error {
	for {
		ev, ok := d.queue.Pop()
		if !ok {
			if d.queue.ClearIfEmpty() {
				return nil
			}
			continue
		}
		if err := d.apply(ctx, ev); err != nil {
			return fmt.Errorf("apply %T: %w", ev, err)
		}
	}
}

func (d *Dispatcher) apply(ctx context.Context, ev Event) error {
	prevLevel, prevMuted := d.volume.Level(), d.volume.IsMuted()

	switch e := ev.(type) {
	case RotaryTurn:
		steps := e.Steps
		if steps == 1 || steps == -1 {
			steps = d.rotary.scaledSteps(steps, d.rotaryCfg, d.now())
		}
		level, err := d.volume.Step(ctx, steps)
		if err != nil {
			return err
		}
		if steps > 0 {
			d.logger.Debug("increase volume", "steps", steps, "level", level)
		} else {
			d.logger.Debug("decrease volume", "steps", steps, "level", level)
		}

	case ButtonPress, ToggleMute:
		muted, err := d.volume.ToggleMute(ctx)
		if err != nil {
			return err
		}
		d.logger.Debug("toggled mute", "muted", muted, "level", d.volume.Level())

	case SetLevel:
		level, err := d.volume.SetLevel(ctx, e.Percent)
		if err != nil {
			return err
		}
		d.logger.Debug("set volume", "requested", e.Percent, "level", level, "origin", e.Origin)

	case RequestStateSnapshot:
		if e.Reply == nil {
			d.logger.Warn("state snapshot requested with nil reply channel")
			return nil
		}
		// Never block the dispatcher on a slow requester.
		select {
		case e.Reply <- StateSnapshot{Level: d.volume.Level(), Muted: d.volume.IsMuted(), At: d.now()}:
		default:
			d.logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}
		return nil

	default:
		d.logger.Warn("unknown event type", "type", fmt.Sprintf("%T", ev))
		return nil
	}

	d.broadcastChanges(prevLevel, prevMuted)
	return nil
}

// broadcastChanges offers level/mute changes to the status feed without blocking.
func (d *Dispatcher) broadcastChanges(prevLevel int, prevMuted bool) {
	if d.broadcasts == nil {
		return
	}
	now := d.now()
	if muted := d.volume.IsMuted(); muted != prevMuted {
		d.offer(BroadcastMuteChanged{Muted: muted, At: now})
	}
	if level := d.volume.Level(); level != prevLevel {
		d.offer(BroadcastLevelChanged{Level: level, At: now})
	}
}

func (d *Dispatcher) offer(b StateBroadcast) {
	select {
	case d.broadcasts <- b:
	default:
		d.logger.Warn("state broadcast queue full, dropping", "type", fmt.Sprintf("%T", b))
	}
}
