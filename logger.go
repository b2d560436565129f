package kpool

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with pool-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithPool tags every record with the pool name and serial.
func (l *Logger) WithPool(name string, serial uint32) *Logger {
	return &Logger{
		Logger: l.Logger.With("pool", name, "serial", serial),
	}
}

// LogPageAlloc logs a page allocation.
func (l *Logger) LogPageAlloc(ctx context.Context, pageSize int, npages int, err error) {
	if err != nil {
		l.DebugContext(ctx, "page allocation failed",
			"page_size", pageSize,
			"npages", npages,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "page allocated",
			"page_size", pageSize,
			"npages", npages,
		)
	}
}

// LogReclaim logs pages returned to the page source.
func (l *Logger) LogReclaim(ctx context.Context, reason string, freed, npages int) {
	if freed == 0 {
		return
	}
	l.DebugContext(ctx, "idle pages reclaimed",
		"reason", reason,
		"freed", freed,
		"npages", npages,
	)
}

// LogHardLimit logs the configured hard-limit warning.
func (l *Logger) LogHardLimit(ctx context.Context, warning string, limit int) {
	l.WarnContext(ctx, warning,
		"hard_limit", limit,
	)
}

// LogCorruption logs a detected integrity failure before the pool aborts.
func (l *Logger) LogCorruption(ctx context.Context, err *CorruptionError) {
	l.ErrorContext(ctx, "pool corruption detected",
		"kind", err.Kind.String(),
		"page", err.Page,
		"item", err.Item,
		"offset", err.Offset,
		"expected", err.Expected,
		"observed", err.Observed,
	)
}

// LogDestroy logs a pool teardown.
func (l *Logger) LogDestroy(ctx context.Context, pagesFreed int, err error) {
	if err != nil {
		l.WarnContext(ctx, "destroy refused",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "pool destroyed",
			"pages_freed", pagesFreed,
		)
	}
}
