// Package sqladapter implements adapter.Adapter on top of database/sql and
// sqlx for postgres, mysql and sqlserver. Every raw statement runs in a
// db_query span captured for the client and is recorded in the
// db.client.operation.duration histogram.
//
// Usage:
//
//	f, err := adapter.CreateAdapter(databaseURL, sqladapter.ProtocolTable(
//	    sqladapter.WithTracerProvider(tp),
//	    sqladapter.WithMeterProvider(mp),
//	))
//	a, err := f.Connect(ctx)
package sqladapter

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/sentinel-executor/tracing"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/sentinel-executor/adapter/sqladapter"
)

// config holds the configuration for an adapter.
type config struct {
	// TracerProvider defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// MeterProvider defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider

	// Meter is the meter instance created from MeterProvider.
	Meter metric.Meter

	// Metrics holds the metric instruments.
	Metrics *metrics

	// handler starts db_query spans through TracerProvider.
	handler *tracing.Handler

	// DBSystem identifies the database product, e.g. "postgresql".
	DBSystem string

	// DBName is the database (namespace) being accessed.
	DBName string

	// InstanceName distinguishes connections to the same database, such as
	// "primary" and "replica".
	InstanceName string

	// QuerySanitizer rewrites statements before they are put on spans.
	QuerySanitizer func(query string) string

	// DisableQuery drops the statement text from spans entirely.
	DisableQuery bool

	// ConnectTimeout bounds how long Connect keeps retrying the first ping.
	ConnectTimeout time.Duration

	// ConnectAttempts caps the number of pings Connect makes.
	ConnectAttempts uint
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		TracerProvider:  otel.GetTracerProvider(),
		MeterProvider:   otel.GetMeterProvider(),
		QuerySanitizer:  DefaultQuerySanitizer,
		ConnectTimeout:  30 * time.Second,
		ConnectAttempts: 10,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.handler = tracing.NewHandler(cfg.TracerProvider.Tracer(scope))
	cfg.Meter = cfg.MeterProvider.Meter(scope)

	// a nil Metrics only disables recording
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	return cfg
}

// Option configures an adapter.
type Option func(*config)

// WithTracerProvider sets the tracer provider used for db_query spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider used for query and pool metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *config) {
		cfg.MeterProvider = mp
	}
}

// WithDBSystem overrides the "db.system" attribute. Factories set it from
// the URL scheme.
func WithDBSystem(system string) Option {
	return func(cfg *config) {
		cfg.DBSystem = system
	}
}

// WithDBName overrides the "db.namespace" attribute.
func WithDBName(name string) Option {
	return func(cfg *config) {
		cfg.DBName = name
	}
}

// WithInstanceName sets the "db.instance" attribute.
func WithInstanceName(name string) Option {
	return func(cfg *config) {
		cfg.InstanceName = name
	}
}

// WithQuerySanitizer replaces DefaultQuerySanitizer. A nil function records
// statements as is.
func WithQuerySanitizer(fn func(string) string) Option {
	return func(cfg *config) {
		cfg.QuerySanitizer = fn
	}
}

// WithDisableQuery keeps statement text off spans.
func WithDisableQuery() Option {
	return func(cfg *config) {
		cfg.DisableQuery = true
	}
}

// WithConnectRetry bounds the initial connection attempts.
func WithConnectRetry(timeout time.Duration, attempts uint) Option {
	return func(cfg *config) {
		cfg.ConnectTimeout = timeout
		cfg.ConnectAttempts = attempts
	}
}
