package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// startIPC runs the IPC server on a short socket path (sun_path is limited
// to ~108 bytes, so t.TempDir can be too long).
func startIPC(t *testing.T) (string, *EventQueue, context.CancelFunc, <-chan error) {
	t.Helper()

	dir, err := os.MkdirTemp("", "vk")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	socketPath := filepath.Join(dir, "ipc.sock")

	q := NewEventQueue()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errc := make(chan error, 1)
	go func() { errc <- runIPCServer(ctx, socketPath, q, testLogger()) }()

	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, "IPC socket not created")

	return socketPath, q, cancel, errc
}

func TestIPC_SendEventQueuesIt(t *testing.T) {
	socketPath, q, _, _ := startIPC(t)

	if err := SendIPCEvent(socketPath, RotaryTurn{Steps: -2}); err != nil {
		t.Fatalf("SendIPCEvent: %v", err)
	}
	if err := SendIPCEvent(socketPath, SetLevel{Percent: 40}); err != nil {
		t.Fatalf("SendIPCEvent: %v", err)
	}

	ev, ok := q.Pop()
	if !ok || ev != (RotaryTurn{Steps: -2}) {
		t.Fatalf("expected rotary turn, got %#v", ev)
	}
	ev, ok = q.Pop()
	if !ok || ev != (SetLevel{Percent: 40, Origin: "ipc"}) {
		t.Fatalf("expected set level tagged with ipc origin, got %#v", ev)
	}
	if !q.Signalled() {
		t.Fatal("IPC publish did not set the wake signal")
	}
}

func TestIPC_BadLineGetsErrorAndConnectionSurvives(t *testing.T) {
	socketPath, q, _, _ := startIPC(t)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	r := bufio.NewReader(conn)
	readResp := func() IPCResponse {
		t.Helper()
		line, err := r.ReadBytes('\n')
		if err != nil {
			t.Fatalf("read response: %v", err)
		}
		var resp IPCResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			t.Fatalf("bad response %q: %v", line, err)
		}
		return resp
	}

	if _, err := conn.Write([]byte(`{"type":"explode"}` + "\n")); err != nil {
		t.Fatal(err)
	}
	if resp := readResp(); resp.Status != "error" || resp.Error == "" {
		t.Fatalf("expected error response, got %+v", resp)
	}

	if _, err := conn.Write([]byte(`{"type":"toggle_mute"}` + "\n")); err != nil {
		t.Fatal(err)
	}
	if resp := readResp(); resp.Status != "ok" {
		t.Fatalf("expected ok response, got %+v", resp)
	}

	if q.Len() != 1 {
		t.Fatalf("expected one queued event, got %d", q.Len())
	}
}

func TestIPC_ShutdownRemovesSocket(t *testing.T) {
	socketPath, _, cancel, errc := startIPC(t)

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("IPC server did not stop")
	}

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Fatalf("socket not removed: %v", err)
	}
}
