package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope used when no tracer is supplied.
const ScopeName = "github.com/kroma-labs/sentinel-executor/tracing"

// SpanOptions describes a child span.
type SpanOptions struct {
	// Name is the operation name; SpanNamePrefix is prepended.
	Name string

	// Kind defaults to internal.
	Kind trace.SpanKind

	Attributes []attribute.KeyValue
	Links      []trace.Link

	// Root exports the span without a parent and starts a new trace.
	Root bool
}

// Named is shorthand for SpanOptions{Name: name}.
func Named(name string) SpanOptions {
	return SpanOptions{Name: name}
}

// Handler starts child spans and hands their exported form to the collector
// bound to the request context, if any.
type Handler struct {
	tracer trace.Tracer
	now    func() time.Time
}

// NewHandler returns a Handler backed by tracer. A nil tracer falls back to
// the global provider.
func NewHandler(tracer trace.Tracer) *Handler {
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(ScopeName)
	}
	return &Handler{tracer: tracer, now: time.Now}
}

// NewHandlerFromProvider returns a Handler using a tracer from tp.
func NewHandlerFromProvider(tp trace.TracerProvider) *Handler {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return NewHandler(tp.Tracer(ScopeName))
}

// InChildSpan runs fn inside a new child span of the span active in ctx. The
// span is ended and exported exactly once when fn returns, fails or panics.
func InChildSpan[T any](
	ctx context.Context,
	h *Handler,
	opts SpanOptions,
	fn func(context.Context, *SpanProxy) (T, error),
) (result T, err error) {
	ctx, span := h.start(ctx, opts)

	defer func() {
		if r := recover(); r != nil {
			span.fail(fmt.Errorf("panic: %v", r))
			h.finish(ctx, span)
			panic(r)
		}
		if err != nil {
			span.fail(err)
		}
		h.finish(ctx, span)
	}()

	return fn(ctx, span)
}

// RunInChildSpan is InChildSpan for callbacks without a result.
func (h *Handler) RunInChildSpan(
	ctx context.Context,
	opts SpanOptions,
	fn func(context.Context, *SpanProxy) error,
) error {
	_, err := InChildSpan(ctx, h, opts, func(ctx context.Context, span *SpanProxy) (struct{}, error) {
		return struct{}{}, fn(ctx, span)
	})
	return err
}

func (h *Handler) start(ctx context.Context, opts SpanOptions) (context.Context, *SpanProxy) {
	parentID := ""
	if !opts.Root {
		parentID = spanIDOf(trace.SpanFromContext(ctx))
	}

	kind := opts.Kind
	if kind == trace.SpanKindUnspecified {
		kind = trace.SpanKindInternal
	}

	name := SpanNamePrefix + opts.Name
	start := h.now()

	startOpts := []trace.SpanStartOption{
		trace.WithSpanKind(kind),
		trace.WithTimestamp(start),
		trace.WithAttributes(opts.Attributes...),
		trace.WithLinks(opts.Links...),
	}
	if opts.Root {
		startOpts = append(startOpts, trace.WithNewRoot())
	}

	ctx, underlying := h.tracer.Start(ctx, name, startOpts...)
	proxy := newSpanProxy(underlying, name, parentID, kind, start, opts.Attributes, opts.Links)

	return trace.ContextWithSpan(ctx, proxy), proxy
}

func (h *Handler) finish(ctx context.Context, span *SpanProxy) {
	span.End(trace.WithTimestamp(h.now()))
	if c, ok := ActiveCollector(ctx); ok {
		c.CollectSpan(span.Export())
	}
}

func (s *SpanProxy) fail(err error) {
	s.RecordError(err)
	s.SetStatus(codes.Error, err.Error())
}
