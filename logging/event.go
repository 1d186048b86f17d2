package logging

import (
	"context"
	"slices"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/sentinel-executor/tracing"
)

// LogEvent is a single log record. It is built once per log call and never
// modified afterwards.
type LogEvent struct {
	Level      Level
	Message    string
	Attributes Attrs
	Timestamp  time.Time
	TraceID    trace.TraceID
	SpanID     trace.SpanID
}

// NewLogEvent builds an event stamped with the current time and the span
// active in ctx.
func NewLogEvent(ctx context.Context, level Level, msg string, attrs ...Attr) LogEvent {
	sc := trace.SpanContextFromContext(ctx)
	return LogEvent{
		Level:      level,
		Message:    msg,
		Attributes: slices.Clone(Attrs(attrs)),
		Timestamp:  time.Now(),
		TraceID:    sc.TraceID(),
		SpanID:     sc.SpanID(),
	}
}

// ExportedEvent is the form in which captured events are returned to clients.
type ExportedEvent struct {
	SpanID     string         `json:"spanId"`
	Timestamp  tracing.HrTime `json:"timestamp"`
	Level      Level          `json:"level"`
	Message    string         `json:"message"`
	Attributes Attrs          `json:"attributes"`
}

// Export converts e into its wire form. The trace and span ids are joined
// into a single "traceId-spanId" string.
func (e LogEvent) Export() ExportedEvent {
	attrs := e.Attributes
	if attrs == nil {
		attrs = Attrs{}
	}
	return ExportedEvent{
		SpanID:     e.TraceID.String() + "-" + e.SpanID.String(),
		Timestamp:  tracing.HrTimeFromTime(e.Timestamp),
		Level:      e.Level,
		Message:    e.Message,
		Attributes: attrs,
	}
}
