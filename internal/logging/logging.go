// Package logging configures the process-wide slog logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelCritical sits above slog.LevelError and marks failures nobody handled.
const LevelCritical = slog.Level(12)

// ParseLevel maps debug|info|warn|error|critical onto slog levels.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical":
		return LevelCritical
	default:
		return slog.LevelInfo
	}
}

// New returns a JSON logger writing to stderr.
func New(level string) *slog.Logger {
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter returns a JSON logger writing to w.
func NewWithWriter(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: replaceLevel,
	}))
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}

// Critical logs msg at LevelCritical.
func Critical(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Log(ctx, LevelCritical, msg, args...)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
