package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// amixer backend
// ============================================================================
// Every query and mutation shells out to `amixer` and re-reads the control's
// state from the command's own output, so the daemon never trusts a value it
// did not see the mixer report.
// ============================================================================

// ErrParse is returned when amixer output does not contain the expected
// "[NN%] ... [on|off]" fields on its last line.
var ErrParse = errors.New("unexpected amixer output")

// MixerState is the level and mute state reported by the mixer.
type MixerState struct {
	Level int
	Muted bool
}

// MixerBackend applies raw commands to a mixer control. Each call returns the
// state reported by the mixer after the command.
//
// This allows for mocking in tests.
type MixerBackend interface {
	Get(ctx context.Context) (MixerState, error)
	SetLevel(ctx context.Context, percent int) (MixerState, error) // also unmutes
	Mute(ctx context.Context) (MixerState, error)
	Unmute(ctx context.Context) (MixerState, error)
}

// CommandError reports a mixer command that exited with a non-zero status.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// commandRunner runs an external command and returns its stdout.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// execRunner is the production commandRunner.
func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), &CommandError{
				Args:     append([]string{name}, args...),
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return stdout.Bytes(), fmt.Errorf("run %s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// Amixer controls one simple mixer control through the amixer utility.
type Amixer struct {
	path    string
	card    string
	control string
	timeout time.Duration
	run     commandRunner
	logger  *slog.Logger
}

// NewAmixer creates an amixer backend for the given control.
func NewAmixer(cfg MixerConfig, logger *slog.Logger) *Amixer {
	return &Amixer{
		path:    cfg.AmixerPath,
		card:    cfg.Card,
		control: cfg.Control,
		timeout: time.Duration(cfg.CommandTimeoutMS) * time.Millisecond,
		run:     execRunner,
		logger:  logger,
	}
}

func (a *Amixer) Get(ctx context.Context) (MixerState, error) {
	return a.exec(ctx, "get", a.control)
}

func (a *Amixer) SetLevel(ctx context.Context, percent int) (MixerState, error) {
	return a.exec(ctx, "set", a.control, "unmute", fmt.Sprintf("%d%%", percent))
}

func (a *Amixer) Mute(ctx context.Context) (MixerState, error) {
	return a.exec(ctx, "set", a.control, "mute")
}

func (a *Amixer) Unmute(ctx context.Context) (MixerState, error) {
	return a.exec(ctx, "set", a.control, "unmute")
}

// exec runs one amixer command and parses the resulting state.
func (a *Amixer) exec(ctx context.Context, args ...string) (MixerState, error) {
	if a.card != "" {
		args = append([]string{"-c", a.card}, args...)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	a.logger.Debug("amixer", "args", args)

	out, err := a.run(ctx, a.path, args...)
	if err != nil {
		return MixerState{}, err
	}

	st, err := parseAmixerOutput(out)
	if err != nil {
		return MixerState{}, fmt.Errorf("%s %s: %w", a.path, strings.Join(args, " "), err)
	}
	return st, nil
}

// parseAmixerOutput reads the level and mute state from the last line of
// amixer output, e.g.
//
//	Front Right: Playback 207 [81%] [-9.50dB] [on]
//
// The level is the first bracket holding a percentage; the mute switch is the
// last bracket, where "off" means muted.
func parseAmixerOutput(out []byte) (MixerState, error) {
	line := lastLine(string(out))
	if line == "" {
		return MixerState{}, fmt.Errorf("%w: empty output", ErrParse)
	}

	fields := bracketFields(line)
	if len(fields) < 2 {
		return MixerState{}, fmt.Errorf("%w: %q", ErrParse, line)
	}

	var st MixerState
	switch fields[len(fields)-1] {
	case "off":
		st.Muted = true
	case "on":
		st.Muted = false
	default:
		return MixerState{}, fmt.Errorf("%w: no mute switch in %q", ErrParse, line)
	}

	found := false
	for _, f := range fields {
		pct, ok := strings.CutSuffix(f, "%")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(pct)
		if err != nil {
			return MixerState{}, fmt.Errorf("%w: bad level %q", ErrParse, f)
		}
		st.Level = n
		found = true
		break
	}
	if !found {
		return MixerState{}, fmt.Errorf("%w: no level in %q", ErrParse, line)
	}

	return st, nil
}

// lastLine returns the last non-blank line of s, trimmed.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// bracketFields returns the contents of every [...] pair in line, in order.
func bracketFields(line string) []string {
	var fields []string
	for {
		open := strings.IndexByte(line, '[')
		if open < 0 {
			return fields
		}
		end := strings.IndexByte(line[open:], ']')
		if end < 0 {
			return fields
		}
		fields = append(fields, line[open+1:open+end])
		line = line[open+end+1:]
	}
}
