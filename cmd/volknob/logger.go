package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// logLevels maps the accepted logging.level spellings to slog levels.
var logLevels = map[string]slog.Level{
	"error":   slog.LevelError,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"info":    slog.LevelInfo,
	"debug":   slog.LevelDebug,
}

func parseLogLevel(s string) (slog.Level, error) {
	level, ok := logLevels[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("invalid log level %q (must be error, warn, info, or debug)", s)
	}
	return level, nil
}

// newLogger builds the daemon's text logger on w. Records carry the service
// name; at debug level they also carry the source position.
func newLogger(w io.Writer, cfg LoggingConfig) (*slog.Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	})
	return slog.New(handler).With("service", "volknob"), nil
}
