package main

import (
	"context"
	"fmt"
	"time"
)

// Edge selects which transitions a pin reports.
type Edge int

const (
	BothEdges Edge = iota
	FallingEdge
)

func (e Edge) String() string {
	if e == FallingEdge {
		return "falling"
	}
	return "both"
}

// InputPin is one pull-up GPIO input with edge detection enabled.
type InputPin interface {
	String() string

	// WaitForEdge blocks until an edge is detected or timeout expires.
	// It returns false on timeout and after Halt.
	WaitForEdge(timeout time.Duration) (bool, error)

	// Read returns the current level of the pin.
	Read() (Level, error)

	// Halt makes pending and future WaitForEdge calls return false.
	Halt() error

	// Close disables edge detection and releases the pin.
	Close() error
}

// PinDriver opens numbered (BCM) pins as pull-up, edge-triggered inputs.
type PinDriver interface {
	Name() string
	Open(number int, edge Edge) (InputPin, error)
}

// newPinDriver returns the driver selected in config.
func newPinDriver(cfg GPIOConfig) (PinDriver, error) {
	switch cfg.Driver {
	case gpioDriverPeriph:
		return newPeriphDriver()
	case gpioDriverSysfs:
		return newSysfsDriver(cfg.SysfsBase), nil
	default:
		return nil, fmt.Errorf("unknown gpio driver %q", cfg.Driver)
	}
}

// watchPin calls onLevel with the pin's level after every detected edge,
// until ctx is canceled or the pin fails. It is the goroutine body that
// stands in for an interrupt handler: onLevel must not block.
func watchPin(ctx context.Context, pin InputPin, onLevel func(Level, time.Time)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		ok, err := pin.WaitForEdge(edgeWaitTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s: wait for edge: %w", pin, err)
		}
		if !ok {
			continue
		}

		level, err := pin.Read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s: read: %w", pin, err)
		}
		onLevel(level, time.Now())
	}
}
