// Package logging configures the process-wide slog default logger,
// grounded on the teacher's internal/utils/configurelogger.go, carried
// forward unchanged in approach per the "ambient stack regardless of
// non-goals" rule: every daemon still needs structured logging even
// though the spec's non-goals exclude a metrics/observability surface.
package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

// Configure sets the slog default logger for the given level ("none",
// "error", "warn", "info", "debug") and optional log file path (empty
// string means stdout). Returns the opened file, if any, so callers can
// defer its Close.
func Configure(level string, logFile string, opts slog.HandlerOptions) (*os.File, error) {
	switch level {
	case "none":
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil, nil
	case "error":
		opts.Level = slog.LevelError
	case "warn":
		opts.Level = slog.LevelWarn
	case "info":
		opts.Level = slog.LevelInfo
	case "debug":
		opts.Level = slog.LevelDebug
	default:
		return nil, errors.New("logging: unexpected log level " + level)
	}

	var f *os.File
	var handler slog.Handler
	if logFile == "" {
		handler = slog.NewTextHandler(os.Stdout, &opts)
	} else {
		var err error
		f, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, err
		}
		handler = slog.NewJSONHandler(f, &opts)
	}

	slog.SetDefault(slog.New(handler))
	return f, nil
}
