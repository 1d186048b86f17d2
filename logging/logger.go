// Package logging is the request-scoped log pipeline: events flow from a
// Logger through composable sinks and filters into console formatters or an
// in-memory capture returned with the response.
package logging

import "context"

// Logger writes events to a single root sink.
type Logger struct {
	sink Sink
}

// NewLogger returns a Logger writing to sink. A nil sink drops everything.
func NewLogger(sink Sink) *Logger {
	if sink == nil {
		sink = DroppingSink{}
	}
	return &Logger{sink: sink}
}

// Config describes a console logger.
type Config struct {
	Level  Level
	Format Format

	// Options are applied to the console sink.
	Options []ConsoleOption
}

// New builds a console logger that keeps events at cfg.Level or above. A
// level of LevelOff returns a logger that drops everything.
func New(cfg Config) *Logger {
	if cfg.Level >= LevelOff {
		return NewLogger(DroppingSink{})
	}
	console := NewConsoleSink(NewFormatter(cfg.Format), cfg.Options...)
	return NewLogger(NewFilteringSink(console, ThresholdFilter(cfg.Level)))
}

// Sink returns the root sink.
func (l *Logger) Sink() Sink {
	return l.sink
}

// Log writes one event.
func (l *Logger) Log(ctx context.Context, level Level, msg string, attrs ...Attr) {
	if _, drop := l.sink.(DroppingSink); drop {
		return
	}
	l.sink.Write(NewLogEvent(ctx, level, msg, attrs...))
}

func (l *Logger) Debug(ctx context.Context, msg string, attrs ...Attr) {
	l.Log(ctx, LevelDebug, msg, attrs...)
}

func (l *Logger) Query(ctx context.Context, msg string, attrs ...Attr) {
	l.Log(ctx, LevelQuery, msg, attrs...)
}

func (l *Logger) Info(ctx context.Context, msg string, attrs ...Attr) {
	l.Log(ctx, LevelInfo, msg, attrs...)
}

func (l *Logger) Warn(ctx context.Context, msg string, attrs ...Attr) {
	l.Log(ctx, LevelWarn, msg, attrs...)
}

func (l *Logger) Error(ctx context.Context, msg string, attrs ...Attr) {
	l.Log(ctx, LevelError, msg, attrs...)
}
