package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Events
// ============================================================================
// Events are produced by the GPIO watchers (decoder / debouncer) and by IPC
// clients, queued in arrival order, and applied by the dispatcher.
// ============================================================================

// Event is a marker interface for everything that can be queued.
type Event interface {
	eventMarker()
}

// RotaryTurn is a rotary movement. The decoder emits Steps = +1 or -1;
// IPC clients may request several steps at once.
type RotaryTurn struct {
	Steps int `json:"steps"` // positive=up, negative=down
}

func (RotaryTurn) eventMarker() {}

// ButtonPress is one debounced press of the encoder's push-button.
type ButtonPress struct {
	Level Level `json:"level"` // raw pin level when the press was accepted
}

func (ButtonPress) eventMarker() {}

// ToggleMute requests mute to be toggled (IPC equivalent of a press).
type ToggleMute struct{}

func (ToggleMute) eventMarker() {}

// SetLevel requests an absolute mixer level in percent.
type SetLevel struct {
	Percent int    `json:"percent"`
	Origin  string `json:"origin,omitempty"` // e.g. "ipc", "volknob-ctl"
}

func (SetLevel) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "rotary_turn":
		var e RotaryTurn
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal RotaryTurn: %w", err)
		}
		if e.Steps == 0 {
			return nil, fmt.Errorf("rotary_turn: steps must not be zero")
		}
		if e.Steps > maxTurnSteps || e.Steps < -maxTurnSteps {
			return nil, fmt.Errorf("rotary_turn: steps %d out of range [-%d, %d]", e.Steps, maxTurnSteps, maxTurnSteps)
		}
		return e, nil

	case "button_press":
		return ButtonPress{Level: Low}, nil

	case "toggle_mute":
		return ToggleMute{}, nil

	case "set_level":
		var e SetLevel
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal SetLevel: %w", err)
		}
		return e, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case RotaryTurn:
		env.Type = "rotary_turn"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal RotaryTurn: %w", err)
		}
		env.Data = data

	case ButtonPress:
		env.Type = "button_press"

	case ToggleMute:
		env.Type = "toggle_mute"

	case SetLevel:
		env.Type = "set_level"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetLevel: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
