package main

import (
	"context"
	"errors"
	"testing"
)

func newTestVolume(m *fakeMixer) *Volume {
	return NewVolume(m, VolumeConfig{Min: 10, Max: 96, Increment: 5}, testLogger())
}

func TestVolume_Sync(t *testing.T) {
	m := newFakeMixer(55, true)
	v := newTestVolume(m)

	if err := v.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v.Level() != 55 || !v.IsMuted() {
		t.Fatalf("expected level 55 muted, got %d muted=%v", v.Level(), v.IsMuted())
	}
}

func TestVolume_SetLevelClamps(t *testing.T) {
	tests := []struct {
		request int
		want    int
	}{
		{40, 40},
		{10, 10},
		{96, 96},
		{97, 96},
		{150, 96},
		{9, 10},
		{-20, 10},
	}

	for _, tt := range tests {
		m := newFakeMixer(40, false)
		v := newTestVolume(m)

		got, err := v.SetLevel(context.Background(), tt.request)
		if err != nil {
			t.Fatalf("SetLevel(%d): %v", tt.request, err)
		}
		if got != tt.want {
			t.Errorf("SetLevel(%d): expected %d, got %d", tt.request, tt.want, got)
		}
	}
}

func TestVolume_UpDown(t *testing.T) {
	m := newFakeMixer(40, false)
	v := newTestVolume(m)
	ctx := context.Background()
	if err := v.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	if got, _ := v.Up(ctx); got != 45 {
		t.Fatalf("Up: expected 45, got %d", got)
	}
	if got, _ := v.Down(ctx); got != 40 {
		t.Fatalf("Down: expected 40, got %d", got)
	}
	if got, _ := v.Step(ctx, 3); got != 55 {
		t.Fatalf("Step(3): expected 55, got %d", got)
	}
}

func TestVolume_StepStopsAtLimits(t *testing.T) {
	m := newFakeMixer(94, false)
	v := newTestVolume(m)
	ctx := context.Background()
	if err := v.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := v.Up(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if v.Level() != 96 {
		t.Fatalf("expected level capped at 96, got %d", v.Level())
	}

	for i := 0; i < 30; i++ {
		if _, err := v.Down(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if v.Level() != 10 {
		t.Fatalf("expected level floored at 10, got %d", v.Level())
	}
}

func TestVolume_MuteRoundTrip(t *testing.T) {
	m := newFakeMixer(40, false)
	v := newTestVolume(m)
	ctx := context.Background()
	if err := v.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	muted, err := v.ToggleMute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !muted || !v.IsMuted() {
		t.Fatal("expected muted after first toggle")
	}

	muted, err = v.ToggleMute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if muted || v.IsMuted() {
		t.Fatal("expected unmuted after second toggle")
	}
	if v.Level() != 40 {
		t.Fatalf("expected level restored to 40, got %d", v.Level())
	}

	want := []string{"get", "mute", "unmute", "set 40"}
	if got := m.Calls(); !equalStrings(got, want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
}

func TestVolume_UnmuteRestoresPreMuteLevelAfterExternalChange(t *testing.T) {
	m := newFakeMixer(60, false)
	v := newTestVolume(m)
	ctx := context.Background()
	if err := v.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	if err := v.Mute(ctx); err != nil {
		t.Fatal(err)
	}

	// Someone else lowers the control while muted.
	m.mu.Lock()
	m.state.Level = 20
	m.mu.Unlock()

	if err := v.Unmute(ctx); err != nil {
		t.Fatal(err)
	}
	if v.Level() != 60 {
		t.Fatalf("expected level 60 restored, got %d", v.Level())
	}
}

func TestVolume_SetLevelUnmutes(t *testing.T) {
	m := newFakeMixer(40, true)
	v := newTestVolume(m)
	ctx := context.Background()
	if err := v.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := v.SetLevel(ctx, 50); err != nil {
		t.Fatal(err)
	}
	if v.IsMuted() {
		t.Fatal("expected set level to unmute")
	}
}

func TestVolume_BackendErrorKeepsState(t *testing.T) {
	m := newFakeMixer(40, false)
	v := newTestVolume(m)
	ctx := context.Background()
	if err := v.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	m.failAt = 2
	got, err := v.Up(ctx)
	if !errors.Is(err, errFakeMixer) {
		t.Fatalf("expected fake mixer error, got %v", err)
	}
	if got != 40 || v.Level() != 40 {
		t.Fatalf("expected level unchanged at 40, got %d / %d", got, v.Level())
	}
}

func TestVolume_UnmuteAfterSyncRestoresObservedLevel(t *testing.T) {
	m := newFakeMixer(55, true)
	v := newTestVolume(m)
	if err := v.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	muted, err := v.ToggleMute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if muted || v.Level() != 55 {
		t.Fatalf("expected unmuted at 55, got %d muted=%v", v.Level(), muted)
	}
	if got, want := m.Calls(), []string{"get", "unmute", "set 55"}; !equalStrings(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestVolume_SyncOutOfRangeRestoresClamped(t *testing.T) {
	m := newFakeMixer(100, true)
	v := newTestVolume(m)
	if err := v.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v.Level() != 100 {
		t.Fatalf("expected observed level kept as is, got %d", v.Level())
	}

	if _, err := v.ToggleMute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v.Level() != 96 {
		t.Fatalf("expected restore clamped to 96, got %d", v.Level())
	}
}

func TestVolume_HugeStepSaturates(t *testing.T) {
	for _, tc := range []struct {
		steps int
		want  int
	}{
		{1 << 62, 96},
		{-(1 << 62), 10},
		{3689348814741910324, 96}, // wraps to +4 when multiplied by 5 unchecked
	} {
		m := newFakeMixer(40, false)
		v := newTestVolume(m)
		if err := v.Sync(context.Background()); err != nil {
			t.Fatal(err)
		}
		got, err := v.Step(context.Background(), tc.steps)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("Step(%d) = %d, want %d", tc.steps, got, tc.want)
		}
	}
}
