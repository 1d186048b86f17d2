package tracing

import "context"

type collectorKey struct{}

// WithActiveCollector returns a copy of ctx carrying c.
func WithActiveCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// ActiveCollector returns the collector bound to ctx.
func ActiveCollector(ctx context.Context) (*Collector, bool) {
	c, ok := ctx.Value(collectorKey{}).(*Collector)
	return c, ok && c != nil
}
