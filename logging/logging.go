// Package logging builds the slog loggers used across depsync.
//
// Components take a *slog.Logger and never touch the global default. This
// package adds a trace level below debug for per-call detail, a parser for
// the CLI's --log-level flag and a helper for logging backend operations with
// timing.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmgilman/depsync/errors"
)

// LevelTrace is below slog.LevelDebug and used for per-invocation detail.
const LevelTrace = slog.Level(-8)

// Config holds configuration for NewLogger.
type Config struct {
	// Level sets the minimum log level
	Level slog.Level
	// EnableCallerInfo includes file and line number in logs
	EnableCallerInfo bool
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level: slog.LevelInfo,
	}
}

// NewLogger creates a text logger writing to w.
func NewLogger(config Config, w io.Writer) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     config.Level,
		AddSource: config.EnableCallerInfo,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	})
	return slog.New(handler)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Trace logs msg at LevelTrace. A nil logger is a no-op.
func Trace(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	if logger == nil {
		return
	}
	logger.Log(ctx, LevelTrace, msg, args...)
}

// ParseLevel parses a level name into a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.Newf(errors.CodeInvalidInput, "invalid log level: %s", level)
	}
}

// Operation names a backend operation for LogOperation.
type Operation string

// Operation constants for backend operations
const (
	OpPull Operation = "pull"
	OpPush Operation = "push"
)

// LogOperation logs the outcome of a backend operation with its duration.
// Failures are logged at warn; the caller decides whether they are fatal.
func LogOperation(ctx context.Context, logger *slog.Logger, operation Operation, duration time.Duration, err error) {
	if logger == nil {
		return
	}

	fields := []any{
		"operation", string(operation),
		"duration_ms", duration.Milliseconds(),
		"success", err == nil,
	}

	if err != nil {
		fields = append(fields, "error", err.Error())
		logger.WarnContext(ctx, "backend operation failed", fields...)
		return
	}
	logger.InfoContext(ctx, "backend operation completed", fields...)
}
