package logger

import (
	"fmt"
	"log/slog"
	"os"
)

// Loggers bundles the level-specific loggers used across the service.
// Info and debug go to stdout, errors to stderr.
type Loggers struct {
	InfoLogger  *slog.Logger
	DebugLogger *slog.Logger
	ErrorLogger *slog.Logger
}

func SetupLogger(level string) (*Loggers, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	stdout := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	stderr := slog.New(slog.NewJSONHandler(os.Stderr, opts))

	return &Loggers{
		InfoLogger:  stdout,
		DebugLogger: stdout,
		ErrorLogger: stderr,
	}, nil
}
