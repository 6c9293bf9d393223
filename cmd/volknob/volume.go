package main

import (
	"context"
	"fmt"
	"log/slog"
)

// VolumeConfig holds the level policy applied on top of the mixer backend.
type VolumeConfig struct {
	Min       int
	Max       int
	Increment int
}

// Volume applies clamped level changes and mute/restore to a mixer backend.
//
// Level and mute state are refreshed from every backend reply. The level in
// force when muting is remembered and restored on unmute.
//
// Not thread-safe: owned by the dispatcher goroutine.
type Volume struct {
	backend MixerBackend
	cfg     VolumeConfig
	logger  *slog.Logger

	level           int
	levelBeforeMute int
	muted           bool
}

// NewVolume creates a Volume. Call Sync to load the mixer's current state.
func NewVolume(backend MixerBackend, cfg VolumeConfig, logger *slog.Logger) *Volume {
	return &Volume{
		backend:         backend,
		cfg:             cfg,
		logger:          logger,
		level:           cfg.Min,
		levelBeforeMute: cfg.Min,
	}
}

// Level returns the last level reported by the mixer.
func (v *Volume) Level() int { return v.level }

// IsMuted returns the last mute state reported by the mixer.
func (v *Volume) IsMuted() bool { return v.muted }

// Sync reloads level and mute state from the mixer. The observed level,
// clamped, becomes the level an unmute restores, so a control found muted
// comes back where it was.
func (v *Volume) Sync(ctx context.Context) error {
	st, err := v.backend.Get(ctx)
	if err != nil {
		return fmt.Errorf("get mixer state: %w", err)
	}
	v.observe(st)
	v.levelBeforeMute = v.clamp(v.level)
	return nil
}

// SetLevel clamps percent to [Min, Max], applies it (unmuting the control),
// and returns the level the mixer reports.
func (v *Volume) SetLevel(ctx context.Context, percent int) (int, error) {
	target := v.clamp(percent)
	st, err := v.backend.SetLevel(ctx, target)
	if err != nil {
		return v.level, fmt.Errorf("set level %d%%: %w", target, err)
	}
	v.observe(st)
	return v.level, nil
}

// Up raises the level by one increment.
func (v *Volume) Up(ctx context.Context) (int, error) {
	return v.Step(ctx, 1)
}

// Down lowers the level by one increment.
func (v *Volume) Down(ctx context.Context) (int, error) {
	return v.Step(ctx, -1)
}

// Step moves the level by steps increments (negative lowers). Turns past
// either limit saturate there.
func (v *Volume) Step(ctx context.Context, steps int) (int, error) {
	steps = max(-maxTurnSteps, min(steps, maxTurnSteps))
	return v.SetLevel(ctx, v.level+steps*v.cfg.Increment)
}

// Mute remembers the current level and mutes the control.
func (v *Volume) Mute(ctx context.Context) error {
	v.levelBeforeMute = v.level
	st, err := v.backend.Mute(ctx)
	if err != nil {
		return fmt.Errorf("mute: %w", err)
	}
	v.observe(st)
	return nil
}

// Unmute unmutes the control and restores the level remembered by Mute.
func (v *Volume) Unmute(ctx context.Context) error {
	st, err := v.backend.Unmute(ctx)
	if err != nil {
		return fmt.Errorf("unmute: %w", err)
	}
	v.observe(st)
	if _, err := v.SetLevel(ctx, v.levelBeforeMute); err != nil {
		return fmt.Errorf("restore level: %w", err)
	}
	return nil
}

// ToggleMute flips the mute state and returns the new state.
func (v *Volume) ToggleMute(ctx context.Context) (bool, error) {
	var err error
	if v.muted {
		err = v.Unmute(ctx)
	} else {
		err = v.Mute(ctx)
	}
	return v.muted, err
}

func (v *Volume) observe(st MixerState) {
	v.level = st.Level
	v.muted = st.Muted
	v.logger.Debug("mixer state", "level", v.level, "muted", v.muted)
}

func (v *Volume) clamp(percent int) int {
	if percent < v.cfg.Min {
		return v.cfg.Min
	}
	if percent > v.cfg.Max {
		return v.cfg.Max
	}
	return percent
}
