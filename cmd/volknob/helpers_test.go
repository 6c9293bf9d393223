package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// testLogger discards output; flip to os.Stderr when debugging a test.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

var errFakeMixer = errors.New("fake mixer failure")

// fakeMixer is an in-memory MixerBackend that behaves like a real control:
// set unmutes, mute keeps the level.
type fakeMixer struct {
	mu     sync.Mutex
	state  MixerState
	calls  []string
	failAt int // 1-based call number that fails; 0 never fails
}

func newFakeMixer(level int, muted bool) *fakeMixer {
	return &fakeMixer{state: MixerState{Level: level, Muted: muted}}
}

func (m *fakeMixer) record(call string) error {
	m.calls = append(m.calls, call)
	if m.failAt != 0 && len(m.calls) == m.failAt {
		return errFakeMixer
	}
	return nil
}

func (m *fakeMixer) Get(ctx context.Context) (MixerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("get"); err != nil {
		return MixerState{}, err
	}
	return m.state, nil
}

func (m *fakeMixer) SetLevel(ctx context.Context, percent int) (MixerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(fmt.Sprintf("set %d", percent)); err != nil {
		return MixerState{}, err
	}
	m.state = MixerState{Level: percent, Muted: false}
	return m.state, nil
}

func (m *fakeMixer) Mute(ctx context.Context) (MixerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("mute"); err != nil {
		return MixerState{}, err
	}
	m.state.Muted = true
	return m.state, nil
}

func (m *fakeMixer) Unmute(ctx context.Context) (MixerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("unmute"); err != nil {
		return MixerState{}, err
	}
	m.state.Muted = false
	return m.state, nil
}

func (m *fakeMixer) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
