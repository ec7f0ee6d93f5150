// Package logging provides audit logging for helper bus operations.
package logging

import (
	"context"
	"log/slog"

	"github.com/halcyon-im/gtkbridge/internal/procutil"
)

// Logger wraps slog for structured audit logging of bus method calls.
type Logger struct {
	*slog.Logger
	service string
}

// New creates an audit logger for the helper registered under service.
// It writes through the process-wide slog handler.
func New(service string) *Logger {
	return &Logger{
		Logger:  slog.Default(),
		service: service,
	}
}

// LogMethod logs a bus method call with its result.
func (l *Logger) LogMethod(ctx context.Context, method, sender string, args map[string]any, err error) {
	attrs := []slog.Attr{
		slog.String("service", l.service),
		slog.String("method", method),
		slog.String("sender", sender),
	}
	for k, v := range args {
		attrs = append(attrs, slog.Any(k, v))
	}
	level := slog.LevelInfo
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		level = slog.LevelWarn
	}

	l.LogAttrs(ctx, level, "bus_call", attrs...)
}

// LogDenied logs a rejected caller with its bus-resolved credentials and
// the user-facing program behind it.
func (l *Logger) LogDenied(ctx context.Context, method, sender string, pid, uid uint32) {
	attrs := []slog.Attr{
		slog.String("service", l.service),
		slog.String("method", method),
		slog.String("sender", sender),
		slog.Any("pid", pid),
		slog.Any("uid", uid),
	}
	if comm, invokerPID := procutil.ResolveInvoker(pid); comm != "" {
		attrs = append(attrs,
			slog.String("invoker", comm),
			slog.Any("invoker_pid", invokerPID))
	}

	l.LogAttrs(ctx, slog.LevelWarn, "bus_call_denied", attrs...)
}
