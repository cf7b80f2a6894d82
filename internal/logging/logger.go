package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Options describes logger construction parameters.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Component tags every record and names the log file.
	Component string
	// LogDir receives <component>.log when File is set.
	LogDir string
	// Console enables human-readable output on stderr.
	Console bool
	// File enables the per-component log file.
	File bool
	// JSONFormat switches the file handler from text to JSON.
	JSONFormat bool
}

// New constructs a logger per opts. Every record carries the component name
// and a run_id generated for this process.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)

	var handlers []slog.Handler
	if opts.Console {
		handlers = append(handlers, newConsoleHandler(os.Stderr, level))
	}
	if opts.File && opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		path := filepath.Join(opts.LogDir, opts.Component+".log")
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		handlers = append(handlers, newFileHandler(file, level, opts.JSONFormat))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = NoopHandler{}
	case 1:
		handler = handlers[0]
	default:
		handler = newFanoutHandler(handlers...)
	}

	logger := slog.New(handler).With(
		String(FieldComponent, opts.Component),
		String(FieldRunID, uuid.NewString()),
	)
	return logger, nil
}

func newFileHandler(w io.Writer, level slog.Level, jsonFormat bool) slog.Handler {
	handlerOpts := &slog.HandlerOptions{Level: level}
	if jsonFormat {
		return slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.NewTextHandler(w, handlerOpts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}
