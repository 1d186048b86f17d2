package logging

import (
	"io"
	"os"
	"sync"
)

// ConsoleSink formats events and writes them to the stream matching their
// level. Query events go to the general "log" stream, and so do info events
// unless WithInfoStream gives them their own.
type ConsoleSink struct {
	formatter Formatter

	mu    sync.Mutex
	debug io.Writer
	log   io.Writer
	info  io.Writer
	warn  io.Writer
	err   io.Writer
}

// ConsoleOption configures a ConsoleSink.
type ConsoleOption func(*ConsoleSink)

// WithStreams overrides the output streams. Nil writers keep their default.
func WithStreams(debug, log, warn, err io.Writer) ConsoleOption {
	return func(c *ConsoleSink) {
		if debug != nil {
			c.debug = debug
		}
		if log != nil {
			c.log = log
		}
		if warn != nil {
			c.warn = warn
		}
		if err != nil {
			c.err = err
		}
	}
}

// WithInfoStream splits info events off the log stream.
func WithInfoStream(w io.Writer) ConsoleOption {
	return func(c *ConsoleSink) {
		c.info = w
	}
}

// WithWriter sends every level to w.
func WithWriter(w io.Writer) ConsoleOption {
	return WithStreams(w, w, w, w)
}

// NewConsoleSink writes debug, query and info to stdout and warn and error to
// stderr unless overridden.
func NewConsoleSink(formatter Formatter, opts ...ConsoleOption) *ConsoleSink {
	if formatter == nil {
		formatter = &TextFormatter{}
	}
	c := &ConsoleSink{
		formatter: formatter,
		debug:     os.Stdout,
		log:       os.Stdout,
		warn:      os.Stderr,
		err:       os.Stderr,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ConsoleSink) Write(ev LogEvent) {
	line := c.formatter.Format(ev)

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.streamFor(ev.Level).Write(line)
}

func (c *ConsoleSink) streamFor(level Level) io.Writer {
	switch level {
	case LevelDebug:
		return c.debug
	case LevelInfo:
		if c.info != nil {
			return c.info
		}
		return c.log
	case LevelWarn:
		return c.warn
	case LevelError:
		return c.err
	default:
		return c.log
	}
}
