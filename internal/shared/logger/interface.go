package logger

import (
	"io"
	"log/slog"
)

// Interface is the logger handed to every component. The w-suffixed methods
// take alternating key/value pairs.
type Interface interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Interface
	Named(name string) Interface

	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

// slogLogger keeps base free of the name attribute so nested Named calls
// replace the name instead of repeating it.
type slogLogger struct {
	logger *slog.Logger
	base   *slog.Logger
	name   string
}

func newSlogLogger(base *slog.Logger, name string) *slogLogger {
	l := base
	if name != "" {
		l = base.With("logger", name)
	}
	return &slogLogger{logger: l, base: base, name: name}
}

// NewLogger wraps the process-wide logger configured by Init
func NewLogger() Interface {
	return newSlogLogger(Get(), "")
}

// FromSlog wraps an existing slog logger
func FromSlog(l *slog.Logger) Interface {
	return newSlogLogger(l, "")
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Interface {
	return FromSlog(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *slogLogger) With(args ...any) Interface {
	return newSlogLogger(l.base.With(args...), l.name)
}

// Named nests name under the current one, so Named("reconcile").Named("writer")
// logs as logger=reconcile.writer.
func (l *slogLogger) Named(name string) Interface {
	if l.name != "" {
		name = l.name + "." + name
	}
	return newSlogLogger(l.base, name)
}

func (l *slogLogger) Debugw(msg string, keysAndValues ...any) { l.logger.Debug(msg, keysAndValues...) }
func (l *slogLogger) Infow(msg string, keysAndValues ...any)  { l.logger.Info(msg, keysAndValues...) }
func (l *slogLogger) Warnw(msg string, keysAndValues ...any)  { l.logger.Warn(msg, keysAndValues...) }
func (l *slogLogger) Errorw(msg string, keysAndValues ...any) { l.logger.Error(msg, keysAndValues...) }
