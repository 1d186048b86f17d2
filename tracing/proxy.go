package tracing

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Compile-time interface check.
var _ trace.Span = (*SpanProxy)(nil)

// SpanProxy wraps a span started by the underlying tracer. Every call is
// forwarded, while the proxy keeps its own copy of the state needed to export
// the span: the OTel API offers no way to read attributes, links or the start
// instant back before the span is handed to an exporter.
type SpanProxy struct {
	// embedding forwards every trace.Span method we do not override.
	trace.Span

	id       string
	parentID *string
	kind     SpanKind

	mu        sync.Mutex
	name      string
	start     time.Time
	end       time.Time
	ended     bool
	attrs     []attribute.KeyValue
	attrIndex map[attribute.Key]int
	links     []trace.Link
}

func newSpanProxy(
	span trace.Span,
	name string,
	parentID string,
	kind trace.SpanKind,
	start time.Time,
	attrs []attribute.KeyValue,
	links []trace.Link,
) *SpanProxy {
	p := &SpanProxy{
		Span:      span,
		id:        proxySpanID(span, parentID),
		kind:      spanKindFrom(kind),
		name:      name,
		start:     start,
		attrIndex: make(map[attribute.Key]int),
	}
	if parentID != "" {
		p.parentID = &parentID
	}
	p.setAttributes(attrs)
	p.links = append(p.links, links...)
	return p
}

// proxySpanID returns the underlying span's id. A no-op tracer hands back the
// parent's span context, so in that case a fresh random id is generated to
// keep exported ids unique.
func proxySpanID(span trace.Span, parentID string) string {
	sc := span.SpanContext()
	if sc.HasSpanID() && sc.SpanID().String() != parentID {
		return sc.SpanID().String()
	}
	var id [8]byte
	_, _ = rand.Read(id[:])
	return hex.EncodeToString(id[:])
}

// ID returns the exported span id.
func (s *SpanProxy) ID() string {
	return s.id
}

// SetAttributes implements trace.Span.
func (s *SpanProxy) SetAttributes(kv ...attribute.KeyValue) {
	s.mu.Lock()
	s.setAttributes(kv)
	s.mu.Unlock()
	s.Span.SetAttributes(kv...)
}

func (s *SpanProxy) setAttributes(kv []attribute.KeyValue) {
	for _, attr := range kv {
		if !attr.Valid() {
			continue
		}
		if i, ok := s.attrIndex[attr.Key]; ok {
			s.attrs[i] = attr
			continue
		}
		s.attrIndex[attr.Key] = len(s.attrs)
		s.attrs = append(s.attrs, attr)
	}
}

// AddLink implements trace.Span.
func (s *SpanProxy) AddLink(link trace.Link) {
	s.mu.Lock()
	s.links = append(s.links, link)
	s.mu.Unlock()
	s.Span.AddLink(link)
}

// SetName implements trace.Span. The namespace prefix is kept.
func (s *SpanProxy) SetName(name string) {
	s.mu.Lock()
	s.name = SpanNamePrefix + name
	full := s.name
	s.mu.Unlock()
	s.Span.SetName(full)
}

// End implements trace.Span. Only the first call has an effect.
func (s *SpanProxy) End(options ...trace.SpanEndOption) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	cfg := trace.NewSpanEndConfig(options...)
	s.end = cfg.Timestamp()
	if s.end.IsZero() {
		s.end = time.Now()
	}
	end := s.end
	s.mu.Unlock()

	s.Span.End(append(options, trace.WithTimestamp(end))...)
}

// Export returns the client-facing form of the span. Spans that have not
// ended yet export with an end time equal to their start time.
func (s *SpanProxy) Export() ExportableSpan {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := s.end
	if !s.ended {
		end = s.start
	}

	return ExportableSpan{
		ID:         s.id,
		ParentID:   s.parentID,
		Name:       s.name,
		StartTime:  HrTimeFromTime(s.start),
		EndTime:    HrTimeFromTime(end),
		Kind:       s.kind,
		Attributes: exportAttributes(s.attrs),
		Links:      exportLinks(s.links),
	}
}

// spanIDOf returns the id a child of span should report as its parent, or ""
// when span is not a real span.
func spanIDOf(span trace.Span) string {
	if p, ok := span.(*SpanProxy); ok {
		return p.id
	}
	sc := span.SpanContext()
	if !sc.HasSpanID() {
		return ""
	}
	return sc.SpanID().String()
}
