package sqladapter

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the metric instruments for database operations.
type metrics struct {
	queryDuration metric.Float64Histogram

	openConnections metric.Int64ObservableGauge
	idleConnections metric.Int64ObservableGauge
	usedConnections metric.Int64ObservableGauge
	maxConnections  metric.Int64ObservableGauge
	waitCount       metric.Int64ObservableCounter
	waitDuration    metric.Float64ObservableCounter

	registration metric.Registration
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	m.queryDuration, err = meter.Float64Histogram(
		"db.client.operation.duration",
		metric.WithDescription("Duration of database client operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.001, 0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 10,
		),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// registerPoolMetrics observes db.Stats() lazily on every collection.
func (m *metrics) registerPoolMetrics(meter metric.Meter, db *sql.DB, attrs []attribute.KeyValue) error {
	if m == nil {
		return nil
	}

	var err error
	if m.openConnections, err = meter.Int64ObservableGauge(
		"db.client.connections.open",
		metric.WithDescription("Number of open connections in the pool"),
		metric.WithUnit("{connection}"),
	); err != nil {
		return err
	}
	if m.idleConnections, err = meter.Int64ObservableGauge(
		"db.client.connections.idle",
		metric.WithDescription("Number of idle connections in the pool"),
		metric.WithUnit("{connection}"),
	); err != nil {
		return err
	}
	if m.usedConnections, err = meter.Int64ObservableGauge(
		"db.client.connections.used",
		metric.WithDescription("Number of connections currently in use"),
		metric.WithUnit("{connection}"),
	); err != nil {
		return err
	}
	if m.maxConnections, err = meter.Int64ObservableGauge(
		"db.client.connections.max",
		metric.WithDescription("Maximum number of connections allowed in the pool"),
		metric.WithUnit("{connection}"),
	); err != nil {
		return err
	}
	if m.waitCount, err = meter.Int64ObservableCounter(
		"db.client.connections.wait_count",
		metric.WithDescription("Total number of times waited for a connection"),
		metric.WithUnit("{connection}"),
	); err != nil {
		return err
	}
	if m.waitDuration, err = meter.Float64ObservableCounter(
		"db.client.connections.wait_duration",
		metric.WithDescription("Total time waited for connections in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}

	m.registration, err = meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			stats := db.Stats()
			opt := metric.WithAttributes(attrs...)

			o.ObserveInt64(m.openConnections, int64(stats.OpenConnections), opt)
			o.ObserveInt64(m.idleConnections, int64(stats.Idle), opt)
			o.ObserveInt64(m.usedConnections, int64(stats.InUse), opt)
			o.ObserveInt64(m.maxConnections, int64(stats.MaxOpenConnections), opt)
			o.ObserveInt64(m.waitCount, stats.WaitCount, opt)
			o.ObserveFloat64(m.waitDuration, stats.WaitDuration.Seconds(), opt)
			return nil
		},
		m.openConnections,
		m.idleConnections,
		m.usedConnections,
		m.maxConnections,
		m.waitCount,
		m.waitDuration,
	)
	return err
}

// unregisterPoolMetrics stops observing a disposed pool.
func (m *metrics) unregisterPoolMetrics() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}

func (m *metrics) recordQueryDuration(
	ctx context.Context,
	duration time.Duration,
	operation string,
	attrs []attribute.KeyValue,
	err error,
) {
	if m == nil || m.queryDuration == nil {
		return
	}

	all := make([]attribute.KeyValue, 0, len(attrs)+2)
	all = append(all, attrs...)
	if operation != "" {
		all = append(all, attribute.String("db.operation.name", operation))
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	all = append(all, attribute.String("status", status))

	m.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(all...))
}
