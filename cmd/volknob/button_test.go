package main

import (
	"testing"
	"time"
)

func TestDebouncer_FirstEdgeAccepted(t *testing.T) {
	d := NewDebouncer(500 * time.Millisecond)

	press, ok := d.OnButtonEdge(Low, time.Unix(1000, 0))
	if !ok {
		t.Fatal("first edge was rejected")
	}
	if press.Level != Low {
		t.Fatalf("expected level low, got %v", press.Level)
	}
}

func TestDebouncer_EdgesInsideWindowCollapse(t *testing.T) {
	d := NewDebouncer(500 * time.Millisecond)
	t0 := time.Unix(1000, 0)

	presses := 0
	for _, offset := range []time.Duration{0, 10 * time.Millisecond, 20 * time.Millisecond, 499 * time.Millisecond} {
		if _, ok := d.OnButtonEdge(Low, t0.Add(offset)); ok {
			presses++
		}
	}
	if presses != 1 {
		t.Fatalf("expected 1 press, got %d", presses)
	}
}

func TestDebouncer_EdgesOutsideWindowAreSeparatePresses(t *testing.T) {
	d := NewDebouncer(500 * time.Millisecond)
	t0 := time.Unix(1000, 0)

	if _, ok := d.OnButtonEdge(Low, t0); !ok {
		t.Fatal("first press rejected")
	}
	if _, ok := d.OnButtonEdge(Low, t0.Add(600*time.Millisecond)); !ok {
		t.Fatal("second press 600ms later rejected")
	}
}

func TestDebouncer_WindowMeasuredFromAcceptedEdge(t *testing.T) {
	d := NewDebouncer(500 * time.Millisecond)
	t0 := time.Unix(1000, 0)

	d.OnButtonEdge(Low, t0)
	d.OnButtonEdge(Low, t0.Add(400*time.Millisecond)) // rejected, does not extend the window

	if _, ok := d.OnButtonEdge(Low, t0.Add(500*time.Millisecond)); !ok {
		t.Fatal("edge exactly one window after the accepted press was rejected")
	}
}

func TestDebouncer_LevelIsCarried(t *testing.T) {
	d := NewDebouncer(0)

	press, ok := d.OnButtonEdge(High, time.Unix(1000, 0))
	if !ok || press.Level != High {
		t.Fatalf("expected press with level high, got %+v ok=%v", press, ok)
	}
}

func TestDebouncer_ZeroWindowAcceptsEverything(t *testing.T) {
	d := NewDebouncer(0)
	t0 := time.Unix(1000, 0)

	for i := 0; i < 5; i++ {
		if _, ok := d.OnButtonEdge(Low, t0); !ok {
			t.Fatalf("edge %d rejected with zero window", i)
		}
	}
}
