package tracing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	return tp, exporter
}

// startRequest opens a server span standing in for the HTTP request span.
func startRequest(t *testing.T, tp trace.TracerProvider) (context.Context, *Collector) {
	t.Helper()

	ctx, span := tp.Tracer("test").Start(context.Background(), "request",
		trace.WithSpanKind(trace.SpanKindServer))
	t.Cleanup(func() { span.End() })

	c := NewCollectorInCurrentContext(ctx)
	return WithActiveCollector(ctx, c), c
}

func TestHandler_Reroots(t *testing.T) {
	t.Parallel()

	tp, _ := newTestProvider(t)
	h := NewHandlerFromProvider(tp)
	ctx, collector := startRequest(t, tp)

	err := h.RunInChildSpan(ctx, Named("query"), func(ctx context.Context, _ *SpanProxy) error {
		return h.RunInChildSpan(ctx, Named("db_query"), func(context.Context, *SpanProxy) error {
			return nil
		})
	})
	require.NoError(t, err)

	spans := collector.Spans()
	require.Len(t, spans, 2)

	child, parent := spans[0], spans[1]
	assert.Equal(t, "prisma:engine:db_query", child.Name)
	assert.Equal(t, "prisma:engine:query", parent.Name)

	assert.Nil(t, parent.ParentID, "direct child of the request span must be re-rooted")
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)
	assert.NotEqual(t, parent.ID, child.ID)
}

func TestHandler_Export(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		fn         func(context.Context, *SpanProxy) (int, error)
		wantErr    assert.ErrorAssertionFunc
		wantStatus codes.Code
	}{
		{
			name: "given successful callback, then exports span and returns result",
			fn: func(context.Context, *SpanProxy) (int, error) {
				return 42, nil
			},
			wantErr:    assert.NoError,
			wantStatus: codes.Unset,
		},
		{
			name: "given failing callback, then exports span with error status",
			fn: func(context.Context, *SpanProxy) (int, error) {
				return 0, errors.New("boom")
			},
			wantErr:    assert.Error,
			wantStatus: codes.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tp, exporter := newTestProvider(t)
			h := NewHandlerFromProvider(tp)
			ctx, collector := startRequest(t, tp)

			_, err := InChildSpan(ctx, h, Named("op"), tt.fn)
			tt.wantErr(t, err)

			require.Len(t, collector.Spans(), 1)

			ended := exporter.GetSpans()
			require.Len(t, ended, 1)
			assert.Equal(t, "prisma:engine:op", ended[0].Name)
			assert.Equal(t, tt.wantStatus, ended[0].Status.Code)
		})
	}
}

func TestHandler_PanicStillExports(t *testing.T) {
	t.Parallel()

	tp, exporter := newTestProvider(t)
	h := NewHandlerFromProvider(tp)
	ctx, collector := startRequest(t, tp)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = h.RunInChildSpan(ctx, Named("op"), func(context.Context, *SpanProxy) error {
			panic("kaboom")
		})
	})

	assert.Len(t, collector.Spans(), 1)
	require.Len(t, exporter.GetSpans(), 1)
	assert.Equal(t, codes.Error, exporter.GetSpans()[0].Status.Code)
}

func TestHandler_RootOption(t *testing.T) {
	t.Parallel()

	tp, _ := newTestProvider(t)
	h := NewHandlerFromProvider(tp)
	ctx, collector := startRequest(t, tp)

	err := h.RunInChildSpan(ctx, Named("outer"), func(ctx context.Context, _ *SpanProxy) error {
		return h.RunInChildSpan(ctx, SpanOptions{Name: "detached", Root: true},
			func(context.Context, *SpanProxy) error { return nil })
	})
	require.NoError(t, err)

	spans := collector.Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, "prisma:engine:detached", spans[0].Name)
	assert.Nil(t, spans[0].ParentID)
}

func TestHandler_MirrorsSpanState(t *testing.T) {
	t.Parallel()

	tp, _ := newTestProvider(t)
	h := NewHandlerFromProvider(tp)
	ctx, collector := startRequest(t, tp)

	linked := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1},
		SpanID:  trace.SpanID{2},
	})

	opts := SpanOptions{
		Name:       "db_query",
		Kind:       trace.SpanKindClient,
		Attributes: []attribute.KeyValue{attribute.String("db.system", "postgresql")},
	}
	err := h.RunInChildSpan(ctx, opts, func(_ context.Context, span *SpanProxy) error {
		span.SetAttributes(attribute.Int("rows", 3), attribute.String("db.system", "mysql"))
		span.AddLink(trace.Link{SpanContext: linked})
		span.SetName("renamed")
		return nil
	})
	require.NoError(t, err)

	spans := collector.Spans()
	require.Len(t, spans, 1)

	got := spans[0]
	assert.Equal(t, "prisma:engine:renamed", got.Name)
	assert.Equal(t, SpanKindClient, got.Kind)
	assert.Equal(t, map[string]any{"db.system": "mysql", "rows": int64(3)}, got.Attributes)
	assert.Equal(t, []Link{{TraceID: linked.TraceID().String(), SpanID: linked.SpanID().String()}}, got.Links)
	assert.False(t, got.EndTime.Time().Before(got.StartTime.Time()))
}

func TestHandler_WithoutCollector(t *testing.T) {
	t.Parallel()

	tp, exporter := newTestProvider(t)
	h := NewHandlerFromProvider(tp)

	got, err := InChildSpan(context.Background(), h, Named("op"),
		func(context.Context, *SpanProxy) (string, error) { return "ok", nil })

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Len(t, exporter.GetSpans(), 1)
}

func TestHandler_NoopTracerKeepsIDsUnique(t *testing.T) {
	t.Parallel()

	h := NewHandler(noop.NewTracerProvider().Tracer("test"))
	collector := NewCollector("")
	ctx := WithActiveCollector(context.Background(), collector)

	err := h.RunInChildSpan(ctx, Named("parent"), func(ctx context.Context, _ *SpanProxy) error {
		return h.RunInChildSpan(ctx, Named("child"), func(context.Context, *SpanProxy) error {
			return nil
		})
	})
	require.NoError(t, err)

	spans := collector.Spans()
	require.Len(t, spans, 2)
	assert.NotEqual(t, spans[0].ID, spans[1].ID)
	require.NotNil(t, spans[0].ParentID)
	assert.Equal(t, spans[1].ID, *spans[0].ParentID)
}

func TestHandler_ConcurrentChildren(t *testing.T) {
	t.Parallel()

	tp, _ := newTestProvider(t)
	h := NewHandlerFromProvider(tp)
	ctx, collector := startRequest(t, tp)

	const n = 16
	err := h.RunInChildSpan(ctx, Named("batch"), func(ctx context.Context, parent *SpanProxy) error {
		var wg sync.WaitGroup
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = h.RunInChildSpan(ctx, Named("item"), func(context.Context, *SpanProxy) error {
					return nil
				})
			}()
		}
		wg.Wait()
		return nil
	})
	require.NoError(t, err)

	spans := collector.Spans()
	require.Len(t, spans, n+1)

	batch := spans[n]
	for _, s := range spans[:n] {
		require.NotNil(t, s.ParentID)
		assert.Equal(t, batch.ID, *s.ParentID)
	}
}

func TestCollector_CollectSpan(t *testing.T) {
	t.Parallel()

	root := "aaaa"
	other := "bbbb"

	tests := []struct {
		name       string
		rootFrom   string
		parentID   *string
		wantParent *string
	}{
		{
			name:       "given parent equal to boundary, then clears parent",
			rootFrom:   root,
			parentID:   &root,
			wantParent: nil,
		},
		{
			name:       "given other parent, then keeps parent",
			rootFrom:   root,
			parentID:   &other,
			wantParent: &other,
		},
		{
			name:       "given empty boundary, then keeps parent",
			rootFrom:   "",
			parentID:   &root,
			wantParent: &root,
		},
		{
			name:       "given no parent, then stays root",
			rootFrom:   root,
			parentID:   nil,
			wantParent: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewCollector(tt.rootFrom)
			c.CollectSpan(ExportableSpan{ID: "cccc", ParentID: tt.parentID})

			spans := c.Spans()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.wantParent, spans[0].ParentID)
		})
	}
}

func TestActiveCollector(t *testing.T) {
	t.Parallel()

	_, ok := ActiveCollector(context.Background())
	assert.False(t, ok)

	c := NewCollector("")
	got, ok := ActiveCollector(WithActiveCollector(context.Background(), c))
	assert.True(t, ok)
	assert.Same(t, c, got)
}

func TestHrTime(t *testing.T) {
	t.Parallel()

	h := HrTime{1700000000, 123456789}
	assert.Equal(t, h, HrTimeFromTime(h.Time()))
}
