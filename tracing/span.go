package tracing

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SpanNamePrefix namespaces every span handed back to clients.
const SpanNamePrefix = "prisma:engine:"

// HrTime is a high-resolution timestamp: whole seconds since the Unix epoch
// and the nanosecond remainder. It marshals as a two element JSON array.
type HrTime [2]int64

// HrTimeFromTime converts t to an HrTime.
func HrTimeFromTime(t time.Time) HrTime {
	return HrTime{t.Unix(), int64(t.Nanosecond())}
}

// Time converts h back to a time.Time.
func (h HrTime) Time() time.Time {
	return time.Unix(h[0], h[1])
}

// SpanKind is the client-facing name of a trace.SpanKind.
type SpanKind string

const (
	SpanKindInternal SpanKind = "internal"
	SpanKindServer   SpanKind = "server"
	SpanKindClient   SpanKind = "client"
	SpanKindProducer SpanKind = "producer"
	SpanKindConsumer SpanKind = "consumer"
)

// spanKindFrom maps an OTel span kind; unspecified kinds export as internal.
func spanKindFrom(kind trace.SpanKind) SpanKind {
	switch kind {
	case trace.SpanKindServer:
		return SpanKindServer
	case trace.SpanKindClient:
		return SpanKindClient
	case trace.SpanKindProducer:
		return SpanKindProducer
	case trace.SpanKindConsumer:
		return SpanKindConsumer
	default:
		return SpanKindInternal
	}
}

// Link is the exported form of a trace.Link.
type Link struct {
	TraceID string `json:"traceId"`
	SpanID  string `json:"spanId"`
}

// ExportableSpan is the shape in which a finished span is returned to the
// client. ParentID is nil exactly when the span is a request root.
type ExportableSpan struct {
	ID         string         `json:"id"`
	ParentID   *string        `json:"parentId"`
	Name       string         `json:"name"`
	StartTime  HrTime         `json:"startTime"`
	EndTime    HrTime         `json:"endTime"`
	Kind       SpanKind       `json:"kind"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Links      []Link         `json:"links,omitempty"`
}

func exportAttributes(kvs []attribute.KeyValue) map[string]any {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func exportLinks(links []trace.Link) []Link {
	if len(links) == 0 {
		return nil
	}
	out := make([]Link, 0, len(links))
	for _, l := range links {
		out = append(out, Link{
			TraceID: l.SpanContext.TraceID().String(),
			SpanID:  l.SpanContext.SpanID().String(),
		})
	}
	return out
}
