package main

import "sync"

// Level is the logic level of a GPIO input line.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Pin identifies one of the two quadrature lines.
type Pin int

const (
	pinNone Pin = iota
	PinA
	PinB
)

func (p Pin) String() string {
	switch p {
	case PinA:
		return "A"
	case PinB:
		return "B"
	default:
		return "none"
	}
}

// Pulse is one decoded detent: +1 clockwise, -1 counter-clockwise.
type Pulse int

const (
	Clockwise        Pulse = 1
	CounterClockwise Pulse = -1
)

// Decoder turns raw level changes on lines A and B into pulses.
//
// A pulse fires when the line that just went high finds the other line already
// high: A last means clockwise, B last means counter-clockwise. Repeated
// notifications for the same line are treated as contact bounce and dropped
// until the other line changes.
//
// Thread-safe: the A and B watcher goroutines call OnPinChange concurrently.
type Decoder struct {
	mu          sync.Mutex
	levelA      Level
	levelB      Level
	lastChanged Pin
}

// NewDecoder returns a decoder with both lines assumed low.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// OnPinChange records the new level of pin and reports a pulse if this
// transition completes a detent.
func (d *Decoder) OnPinChange(pin Pin, level Level) (Pulse, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch pin {
	case PinA:
		d.levelA = level
	case PinB:
		d.levelB = level
	default:
		return 0, false
	}

	if pin == d.lastChanged {
		return 0, false
	}
	d.lastChanged = pin

	if level != High {
		return 0, false
	}
	if pin == PinA && d.levelB == High {
		return Clockwise, true
	}
	if pin == PinB && d.levelA == High {
		return CounterClockwise, true
	}
	return 0, false
}
