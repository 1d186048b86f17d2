package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Collector accumulates the spans exported during one request. Spans whose
// parent is the request boundary are re-rooted so the client never sees the
// server's own infrastructure spans as parents.
type Collector struct {
	rootFromSpanID string

	mu    sync.Mutex
	spans []ExportableSpan
}

// NewCollector returns a Collector that re-roots children of rootFromSpanID.
// An empty id disables re-rooting.
func NewCollector(rootFromSpanID string) *Collector {
	return &Collector{rootFromSpanID: rootFromSpanID}
}

// NewCollectorInCurrentContext uses the span active in ctx as the boundary.
func NewCollectorInCurrentContext(ctx context.Context) *Collector {
	return NewCollector(spanIDOf(trace.SpanFromContext(ctx)))
}

// RootFromSpanID returns the re-rooting boundary.
func (c *Collector) RootFromSpanID() string {
	return c.rootFromSpanID
}

// CollectSpan appends span. It is safe for concurrent use.
func (c *Collector) CollectSpan(span ExportableSpan) {
	if span.ParentID != nil && c.rootFromSpanID != "" && *span.ParentID == c.rootFromSpanID {
		span.ParentID = nil
	}

	c.mu.Lock()
	c.spans = append(c.spans, span)
	c.mu.Unlock()
}

// Spans returns a copy of the collected spans in collection order.
func (c *Collector) Spans() []ExportableSpan {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ExportableSpan, len(c.spans))
	copy(out, c.spans)
	return out
}
