package logging

import (
	"context"
	"errors"
)

// ErrNoActiveLogger is returned when no logger is bound to the context.
var ErrNoActiveLogger = errors.New("no active logger")

type loggerKey struct{}

// WithActiveLogger returns a copy of ctx in which l is the active logger. It
// shadows any logger bound by an outer scope.
func WithActiveLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// RunWithActiveLogger calls fn with a context in which l is active.
func RunWithActiveLogger(ctx context.Context, l *Logger, fn func(context.Context) error) error {
	return fn(WithActiveLogger(ctx, l))
}

// ActiveLogger returns the innermost logger bound to ctx.
func ActiveLogger(ctx context.Context) (*Logger, error) {
	l, ok := ctx.Value(loggerKey{}).(*Logger)
	if !ok || l == nil {
		return nil, ErrNoActiveLogger
	}
	return l, nil
}

// MustActiveLogger is ActiveLogger that panics with ErrNoActiveLogger.
func MustActiveLogger(ctx context.Context) *Logger {
	l, err := ActiveLogger(ctx)
	if err != nil {
		panic(err)
	}
	return l
}

func logActive(ctx context.Context, level Level, msg string, attrs []Attr) {
	if l, err := ActiveLogger(ctx); err == nil {
		l.Log(ctx, level, msg, attrs...)
	}
}

// Debug logs through the active logger; without one it does nothing.
func Debug(ctx context.Context, msg string, attrs ...Attr) {
	logActive(ctx, LevelDebug, msg, attrs)
}

// Query logs an executed statement through the active logger.
func Query(ctx context.Context, msg string, attrs ...Attr) {
	logActive(ctx, LevelQuery, msg, attrs)
}

func Info(ctx context.Context, msg string, attrs ...Attr) {
	logActive(ctx, LevelInfo, msg, attrs)
}

func Warn(ctx context.Context, msg string, attrs ...Attr) {
	logActive(ctx, LevelWarn, msg, attrs)
}

func Error(ctx context.Context, msg string, attrs ...Attr) {
	logActive(ctx, LevelError, msg, attrs)
}
