// Package logging provides structured leveled logging built on log/slog,
// with a custom trace level and a "none" level that silences all output.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace is a custom log level below Debug for wire-level forensics
// (raw transport frames, SQL statements, rate-limiter ticks).
const LevelTrace = slog.Level(-8)

// levelNone is above Error; used internally to suppress all records when
// LOG_LEVEL=none is configured.
const levelNone = slog.Level(64)

// ParseLevel converts a string to a slog.Level. Supported values: trace,
// debug, info, warn, error, none (case-insensitive). Unknown values fall
// back to info and return an error so callers can log the mistake.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "none":
		return levelNone, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error, none)", s)
	}
}

// replaceLevelNames renders LevelTrace as "TRACE" instead of slog's default
// "DEBUG-8" rendering.
func replaceLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// New builds the process-wide logger from a LOG_LEVEL string, writing
// structured text records to stdout. An invalid level string is logged as
// a warning and treated as info.
func New(levelStr string) *slog.Logger {
	level, err := ParseLevel(levelStr)
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelNames,
	})
	logger := slog.New(handler)
	if err != nil {
		logger.Warn("invalid log level, defaulting to info", "value", levelStr, "error", err)
	}
	return logger
}

// With returns a child-scope logger tagging every subsequent record with
// the given key/value pairs. This is the idiom used to scope a logger to
// a component: logging.With(base, "component", "dispatcher").
func With(logger *slog.Logger, tags ...any) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(tags...)
}
