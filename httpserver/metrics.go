package httpserver

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records HTTP server metrics using OpenTelemetry.
type Metrics struct {
	serviceName     string
	route           func(*http.Request) string
	requestDuration metric.Float64Histogram
	responseSize    metric.Int64Histogram
	activeRequests  metric.Int64UpDownCounter
}

// MetricsConfig configures the metrics middleware.
type MetricsConfig struct {
	// MeterProvider defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider

	// serviceName is set internally by the server.
	serviceName string

	// Route returns the low-cardinality route of a request, read after the
	// handler ran. Default: the URL path.
	Route func(*http.Request) string

	// DurationBuckets for the request duration histogram, in seconds.
	DurationBuckets []float64
}

var defaultDurationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates the instruments.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = defaultDurationBuckets
	}
	if cfg.Route == nil {
		cfg.Route = func(r *http.Request) string { return r.URL.Path }
	}

	meter := cfg.MeterProvider.Meter(scopeName)

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cfg.DurationBuckets...),
	)
	if err != nil {
		return nil, err
	}

	responseSize, err := meter.Int64Histogram(
		"http.server.response.body.size",
		metric.WithDescription("Size of HTTP response bodies in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		serviceName:     cfg.serviceName,
		route:           cfg.Route,
		requestDuration: requestDuration,
		responseSize:    responseSize,
		activeRequests:  activeRequests,
	}, nil
}

// WithServiceName returns a copy of m that labels measurements with name.
func (m *Metrics) WithServiceName(name string) *Metrics {
	cp := *m
	cp.serviceName = name
	return &cp
}

// Middleware returns middleware that records:
//   - http.server.request.duration
//   - http.server.response.body.size
//   - http.server.active_requests
func (m *Metrics) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			active := metric.WithAttributes(
				attribute.String("service.name", m.serviceName),
				attribute.String("http.request.method", r.Method),
			)
			m.activeRequests.Add(ctx, 1, active)
			defer m.activeRequests.Add(ctx, -1, active)

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			attrs := metric.WithAttributes(
				attribute.String("service.name", m.serviceName),
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", m.route(r)),
				attribute.Int("http.response.status_code", wrapped.Status()),
			)
			m.requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
			m.responseSize.Record(ctx, int64(wrapped.BytesWritten()), attrs)
		})
	}
}
