package logging

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Format selects a Formatter by name.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat parses "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown log format %q", s)
	}
}

// Formatter renders an event as one line, newline included.
type Formatter interface {
	Format(LogEvent) []byte
}

// NewFormatter returns the formatter for f.
func NewFormatter(f Format) Formatter {
	if f == FormatJSON {
		return JSONFormatter{}
	}
	return &TextFormatter{}
}

// TextFormatter renders tab separated, colorized lines for a terminal:
//
//	LEVEL	timestamp	message	key=value	key=value
type TextFormatter struct {
	// NoColor disables ANSI colors even on a terminal.
	NoColor bool

	// TimeFormat defaults to time.RFC3339Nano.
	TimeFormat string
}

var levelColors = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelQuery: color.New(color.FgMagenta),
	LevelInfo:  color.New(color.FgCyan),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed, color.Bold),
}

var keyColor = color.New(color.Faint)

func (f *TextFormatter) Format(ev LogEvent) []byte {
	layout := f.TimeFormat
	if layout == "" {
		layout = time.RFC3339Nano
	}

	var b bytes.Buffer
	b.WriteString(f.paint(levelColors[ev.Level], strings.ToUpper(ev.Level.String())))
	b.WriteByte('\t')
	b.WriteString(ev.Timestamp.Format(layout))
	b.WriteByte('\t')
	b.WriteString(ev.Message)

	for _, attr := range ev.Attributes {
		b.WriteByte('\t')
		b.WriteString(f.paint(keyColor, attr.Key+"="))
		b.WriteString(textValue(attr.Value))
	}

	b.WriteByte('\n')
	return b.Bytes()
}

func (f *TextFormatter) paint(c *color.Color, s string) string {
	if f.NoColor || c == nil {
		return s
	}
	return c.Sprint(s)
}

func textValue(v any) string {
	switch val := sanitize(v, make(map[uintptr]struct{})).(type) {
	case string:
		return val
	case nil:
		return "null"
	default:
		out, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(out)
	}
}

// JSONFormatter renders the exported form of the event as a single JSON line.
type JSONFormatter struct{}

func (JSONFormatter) Format(ev LogEvent) []byte {
	out, err := json.Marshal(ev.Export())
	if err != nil {
		log.Error().Err(err).Str("message", ev.Message).Msg("failed to encode log event")
		out, _ = json.Marshal(ExportedEvent{
			SpanID:     ev.Export().SpanID,
			Level:      ev.Level,
			Message:    ev.Message,
			Attributes: Attrs{String("encodeError", err.Error())},
		})
	}
	return append(out, '\n')
}
