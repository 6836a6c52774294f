// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures the logger behavior.
type Options struct {
	// Level sets the minimum log level. Defaults to info.
	Level slog.Level
	// Output defaults to os.Stderr.
	Output io.Writer
	// JSON switches from text to JSON output.
	JSON bool
}

// New creates a logger with the given options.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	}
	return slog.New(handler)
}

// ParseLevel maps a config string to a level. Unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds a logger from config values and installs it as slog's default.
func Setup(level string, json bool) *slog.Logger {
	logger := New(Options{Level: ParseLevel(level), JSON: json})
	slog.SetDefault(logger)
	return logger
}
