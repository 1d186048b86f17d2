package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownHook runs after the listener stopped accepting requests and all
// in-flight requests finished. It shares the server's shutdown deadline.
type ShutdownHook func(ctx context.Context) error

// Config holds the HTTP server configuration.
//
// Start from DefaultConfig and override what you need:
//
//	cfg := httpserver.DefaultConfig()
//	cfg.Addr = "127.0.0.1:8000"
//	cfg.ShutdownTimeout = 15 * time.Second
type Config struct {
	// Addr is the TCP address to listen on (default: ":8080").
	Addr string

	// ServiceName is attached to server spans and metrics.
	// Default: "query-executor"
	ServiceName string

	// ReadTimeout bounds reading the whole request including the body.
	ReadTimeout time.Duration

	// ReadHeaderTimeout bounds reading the request headers.
	ReadHeaderTimeout time.Duration

	// WriteTimeout bounds writing the response. Zero means no timeout;
	// query execution is bounded by the per-request query timeout instead.
	WriteTimeout time.Duration

	// IdleTimeout is how long a keep-alive connection may stay idle.
	IdleTimeout time.Duration

	MaxHeaderBytes int

	// Logger receives lifecycle events (start, stop, panics).
	Logger zerolog.Logger

	// Middleware wraps Handler inside the built-in middleware.
	Middleware []Middleware

	// Handler serves requests. Required.
	Handler http.Handler

	// ShutdownTimeout bounds the whole graceful shutdown: draining
	// in-flight requests and running every ShutdownHook.
	//
	// Default: 10s
	ShutdownTimeout time.Duration

	// ShutdownHooks run in order once the listener is closed.
	ShutdownHooks []ShutdownHook

	TracingConfig   *TracingConfig
	MetricsConfig   *MetricsConfig
	RateLimitConfig *RateLimitConfig
}

// DefaultConfig returns the configuration used by the executor.
//
// Timeout values:
//   - ReadTimeout: 15s
//   - WriteTimeout: 0 (bounded per request by the query timeout)
//   - IdleTimeout: 60s
//   - ShutdownTimeout: 10s
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ServiceName:       "query-executor",
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
		ShutdownTimeout:   10 * time.Second,
	}
}
