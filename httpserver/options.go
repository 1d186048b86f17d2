package httpserver

import (
	"net/http"

	"github.com/rs/zerolog"
)

// Option configures the server.
type Option func(*Config)

// WithConfig replaces the whole configuration. Apply it before the other
// options.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithServiceName sets the service name used by tracing and metrics.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithHandler sets the HTTP handler for the server.
func WithHandler(h http.Handler) Option {
	return func(c *Config) {
		c.Handler = h
	}
}

// WithLogger sets the logger for lifecycle events.
//
// Per-request logs go through the request logger instead, see Logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMiddleware adds middleware around the handler. The first one wraps
// outermost.
func WithMiddleware(ms ...Middleware) Option {
	return func(c *Config) {
		c.Middleware = append(c.Middleware, ms...)
	}
}

// WithTracing enables the server span middleware. The server's ServiceName
// is applied automatically.
func WithTracing(cfg TracingConfig) Option {
	return func(c *Config) {
		c.TracingConfig = &cfg
	}
}

// WithMetrics enables the HTTP metrics middleware.
func WithMetrics(cfg MetricsConfig) Option {
	return func(c *Config) {
		c.MetricsConfig = &cfg
	}
}

// WithRateLimit enables global rate limiting for all requests.
//
//	server := httpserver.New(
//	    httpserver.WithRateLimit(httpserver.RateLimitConfig{Limit: 100, Burst: 200}),
//	    httpserver.WithHandler(router),
//	)
func WithRateLimit(cfg RateLimitConfig) Option {
	return func(c *Config) {
		c.RateLimitConfig = &cfg
	}
}

// WithShutdownHook registers a hook that runs during graceful shutdown,
// after in-flight requests have drained.
func WithShutdownHook(hook ShutdownHook) Option {
	return func(c *Config) {
		c.ShutdownHooks = append(c.ShutdownHooks, hook)
	}
}
