package main

import (
	"sync"
	"time"
)

// RotaryConfig controls "fast spin" scaling of rotary pulses.
type RotaryConfig struct {
	// VelocityWindow is how far back same-direction pulses are counted.
	VelocityWindow time.Duration

	// VelocityThreshold is the count (including the current pulse) at which
	// scaling kicks in. Zero disables scaling.
	VelocityThreshold int

	// VelocityMultiplier is how many increments one pulse moves once scaling
	// is active.
	VelocityMultiplier int
}

// rotaryState tracks recent encoder activity for velocity detection.
// This allows us to detect "fast spinning" and scale the step size accordingly.
//
// Thread-safe, though in practice only the dispatcher calls addStep.
type rotaryState struct {
	recentSteps []rotaryStep
	mu          sync.Mutex
}

// rotaryStep records a single encoder detent/step
type rotaryStep struct {
	timestamp time.Time
	direction int // +1 for up, -1 for down
}

// newRotaryState creates a new rotary state tracker
func newRotaryState() *rotaryState {
	return &rotaryState{
		recentSteps: make([]rotaryStep, 0, 16),
	}
}

// addStep records a new encoder step at now and returns the count of recent
// steps in the same direction within window.
func (r *rotaryState) addStep(direction int, window time.Duration, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-window)

	// Remove old steps outside the velocity window
	filtered := r.recentSteps[:0] // reuse underlying array
	for _, s := range r.recentSteps {
		if s.timestamp.After(cutoff) {
			filtered = append(filtered, s)
		}
	}

	filtered = append(filtered, rotaryStep{
		timestamp: now,
		direction: direction,
	})
	r.recentSteps = filtered

	sameDir := 0
	for _, s := range filtered {
		if s.direction == direction {
			sameDir++
		}
	}

	return sameDir
}

// scaledSteps returns how many increments a single pulse in direction should
// move, given the pulses seen so far.
func (r *rotaryState) scaledSteps(direction int, cfg RotaryConfig, now time.Time) int {
	if cfg.VelocityThreshold <= 0 || cfg.VelocityMultiplier <= 1 {
		return direction
	}
	if r.addStep(direction, cfg.VelocityWindow, now) >= cfg.VelocityThreshold {
		return direction * cfg.VelocityMultiplier
	}
	return direction
}
