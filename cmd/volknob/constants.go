package main

import "time"

// GPIO defaults (BCM numbering)
const (
	defaultPinA      = 23
	defaultPinB      = 24
	defaultPinButton = 12

	// pinDisabled turns off the optional button input.
	pinDisabled = -1

	// Minimum interval between accepted button presses.
	defaultButtonBounce = 500 * time.Millisecond

	// How long a watcher blocks in WaitForEdge before re-checking for shutdown.
	edgeWaitTimeout = 250 * time.Millisecond
)

// Mixer defaults
const (
	defaultMixerControl = "Digital"
	defaultAmixerPath   = "amixer"

	defaultLevelMin       = 10
	defaultLevelMax       = 96
	defaultLevelIncrement = 5

	// Hard limits for any percentage passed to amixer.
	levelFloor   = 0
	levelCeiling = 100

	defaultCommandTimeoutMS = 2000

	// Largest |steps| accepted in one rotary_turn; with Increment >= 1 it spans the whole range.
	maxTurnSteps = levelCeiling - levelFloor
)

// Rotary velocity ("fast spin") defaults. A zero threshold disables scaling.
const (
	defaultRotaryVelocityWindowMS   = 200
	defaultRotaryVelocityMultiplier = 2
	defaultRotaryVelocityThreshold  = 0
)

// IPC / status feed defaults
const (
	defaultIPCSocketPath = "/tmp/volknob.sock"
	defaultStatusListen  = "127.0.0.1:3011"
	defaultStatusPath    = "/ws/state"

	// Buffer for dispatcher -> websocket broadcaster hand-off.
	broadcastBuffer = 64
)
