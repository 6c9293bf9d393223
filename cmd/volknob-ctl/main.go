package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// volknob-ctl - Command-line client for the volknob daemon
// ============================================================================
// Usage:
//   volknob-ctl up [N]
//   volknob-ctl down [N]
//   volknob-ctl mute
//   volknob-ctl set 40
//   volknob-ctl watch
// ============================================================================

const (
	defaultSocketPath = "/tmp/volknob.sock"
	defaultStatusURL  = "ws://127.0.0.1:3011/ws/state"
)

// Event types (duplicated from the daemon package for a standalone binary)
type Event interface{}

type RotaryTurn struct {
	Steps int `json:"steps"`
}

type ToggleMute struct{}

type SetLevel struct {
	Percent int    `json:"percent"`
	Origin  string `json:"origin,omitempty"`
}

// EventEnvelope wraps events for JSON
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// statusFrame is one message from the state websocket.
type statusFrame struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	socketPath := defaultSocketPath
	statusURL := defaultStatusURL

	args := os.Args[1:]
flags:
	for len(args) > 0 {
		switch args[0] {
		case "-socket", "--socket":
			if len(args) < 2 {
				fatalf("-socket requires an argument")
			}
			socketPath = args[1]
			args = args[2:]
		case "-url", "--url":
			if len(args) < 2 {
				fatalf("-url requires an argument")
			}
			statusURL = args[1]
			args = args[2:]
		default:
			break flags
		}
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var ev Event

	switch args[0] {
	case "up", "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				fatalf("%s: step count must be a positive integer", args[0])
			}
			steps = n
		}
		if args[0] == "down" {
			steps = -steps
		}
		ev = RotaryTurn{Steps: steps}

	case "mute", "toggle-mute":
		ev = ToggleMute{}

	case "set":
		if len(args) < 2 {
			fatalf("set requires a level in percent")
		}
		pct, err := strconv.Atoi(args[1])
		if err != nil {
			fatalf("invalid level: %v", err)
		}
		ev = SetLevel{Percent: pct, Origin: "volknob-ctl"}

	case "watch":
		if err := watch(statusURL); err != nil {
			fatalf("%v", err)
		}
		return

	case "help", "-h", "--help":
		printUsage()
		return

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err := sendEvent(socketPath, ev); err != nil {
		fatalf("%v", err)
	}
	fmt.Println("ok")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func sendEvent(socketPath string, ev Event) error {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := marshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if response.Status == "error" {
		return fmt.Errorf("daemon error: %s", response.Error)
	}
	return nil
}

func marshalEvent(ev Event) ([]byte, error) {
	var env EventEnvelope

	switch e := ev.(type) {
	case RotaryTurn:
		env.Type = "rotary_turn"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal RotaryTurn: %w", err)
		}
		env.Data = data

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
		return nil, fmt.Errorf("unknown event type: %T", ev)
	}

	return json.Marshal(env)
}

// watch prints state changes from the daemon's status feed until interrupted.
func watch(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", u, err)
	}
	defer conn.Close()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					done <- err
					return
				}
				done <- nil
				return
			}
			printFrame(message)
		}
	}()

	select {
	case <-sigc:
		err := conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
		return nil
	case err := <-done:
		return err
	}
}

func printFrame(message []byte) {
	var f statusFrame
	if err := json.Unmarshal(message, &f); err != nil {
		fmt.Printf("[TEXT] %s\n", message)
		return
	}

	switch f.Type {
	case "state_init":
		var d struct {
			Level int  `json:"level"`
			Muted bool `json:"muted"`
		}
		if json.Unmarshal(f.Data, &d) == nil {
			fmt.Printf("[STATE] level=%d%% muted=%t\n", d.Level, d.Muted)
			return
		}
	case "level_changed":
		var d struct {
			Level int `json:"level"`
		}
		if json.Unmarshal(f.Data, &d) == nil {
			fmt.Printf("[LEVEL] %d%%\n", d.Level)
			return
		}
	case "mute_changed":
		var d struct {
			Muted bool `json:"muted"`
		}
		if json.Unmarshal(f.Data, &d) == nil {
			if d.Muted {
				fmt.Println("[MUTE] MUTED")
			} else {
				fmt.Println("[MUTE] UNMUTED")
			}
			return
		}
	}
	fmt.Printf("[%s] %s\n", f.Type, f.Data)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `volknob-ctl - Control the volknob daemon

Usage:
  volknob-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s)
  -url URL        State websocket URL for watch (default: %s)

Commands:
  up [N]              Step the level up N increments (default 1)
  down [N]            Step the level down N increments (default 1)
  mute, toggle-mute   Toggle mute
  set <percent>       Set an absolute level (clamped by the daemon)
  watch               Print level and mute changes until interrupted
  help, -h, --help    Show this help message

Examples:
  volknob-ctl up
  volknob-ctl set 40
  volknob-ctl -url ws://pi.local:3011/ws/state watch
`, defaultSocketPath, defaultStatusURL)
}
