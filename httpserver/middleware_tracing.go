package httpserver

import (
	"context"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/kroma-labs/sentinel-executor/httpserver"

// TracingConfig configures the tracing middleware.
type TracingConfig struct {
	// TracerProvider defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// Propagator defaults to otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator

	// serviceName is set internally by the server.
	serviceName string

	// SkipPaths are paths that should not be traced.
	SkipPaths []string

	// SpanNameFormatter names the span when the handler reports no route
	// through SetRoute. Default: "HTTP {method} {path}"
	SpanNameFormatter func(r *http.Request) string
}

type routeKey struct{}

// routeInfo is filled by the handler once routing is done.
type routeInfo struct {
	mu    sync.Mutex
	route string
	attrs []attribute.KeyValue
}

// SetRoute reports the route pattern that served the request in ctx, plus
// attributes only known after routing, such as a transaction id taken from
// the path. The server span is renamed "HTTP {method} {route}" when the
// handler returns. SetRoute is a no-op outside the Tracing middleware.
func SetRoute(ctx context.Context, route string, attrs ...attribute.KeyValue) {
	info, ok := ctx.Value(routeKey{}).(*routeInfo)
	if !ok {
		return
	}
	info.mu.Lock()
	defer info.mu.Unlock()
	info.route = route
	info.attrs = append(info.attrs, attrs...)
}

func (i *routeInfo) apply(span trace.Span, method string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.route != "" {
		span.SetName("HTTP " + method + " " + i.route)
		span.SetAttributes(semconv.HTTPRoute(i.route))
	}
	span.SetAttributes(i.attrs...)
}

// Tracing returns middleware that starts a server span per request. The
// span is the parent of every span the request handler creates, and the
// boundary at which captured spans are re-rooted.
//
// Incoming W3C trace context is honored, and 5xx responses mark the span as
// failed.
func Tracing(cfg TracingConfig) Middleware {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	if cfg.SpanNameFormatter == nil {
		cfg.SpanNameFormatter = func(r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}
	}

	tracer := cfg.TracerProvider.Tracer(scopeName)

	skipPaths := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ctx := cfg.Propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, cfg.SpanNameFormatter(r),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.ServiceName(cfg.serviceName),
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.ServerAddress(r.Host),
					semconv.UserAgentOriginal(r.UserAgent()),
					semconv.ClientAddress(r.RemoteAddr),
				),
			)
			defer span.End()

			if requestID := RequestIDFromContext(ctx); requestID != "" {
				span.SetAttributes(attribute.String("request.id", requestID))
			}

			route := &routeInfo{}
			ctx = context.WithValue(ctx, routeKey{}, route)

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			route.apply(span, r.Method)
			status := wrapped.Status()
			span.SetAttributes(semconv.HTTPResponseStatusCode(status))
			if status >= 500 {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
		})
	}
}
