// Package api exposes the executor over HTTP.
//
// Every endpoint accepts the resource limit headers (X-Query-Timeout,
// X-Max-Transaction-Timeout, X-Max-Response-Size) and X-Capture-Telemetry.
// Telemetry captured for a request is returned in the "extensions" member
// of both success and error bodies.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kroma-labs/sentinel-executor/executor"
	"github.com/kroma-labs/sentinel-executor/httpserver"
	"github.com/kroma-labs/sentinel-executor/limits"
	"github.com/kroma-labs/sentinel-executor/logging"
	"github.com/kroma-labs/sentinel-executor/txmanager"
)

// Executor is the subset of executor.App served over HTTP.
type Executor interface {
	Query(ctx context.Context, req executor.QueryRequest, lim limits.ResourceLimits, txID string) (any, error)
	StartTransaction(ctx context.Context, opts txmanager.Options, lim limits.ResourceLimits) (txmanager.Info, error)
	CommitTransaction(ctx context.Context, id string) error
	RollbackTransaction(ctx context.Context, id string) error
	ConnectionInfo(ctx context.Context) executor.ConnectionInfo
}

// Options configures the router.
type Options struct {
	// Limits are the server-wide defaults the request headers override.
	Limits limits.ResourceLimits

	// Logger is the server logger every request logger writes through.
	Logger *logging.Logger

	// Health serves GET /health. Optional.
	Health http.Handler

	// Metrics records per-route HTTP metrics. Optional.
	Metrics *httpserver.Metrics

	// MetricsHandler serves GET /metrics. Optional.
	MetricsHandler http.Handler
}

type handler struct {
	exec   Executor
	limits limits.ResourceLimits
	logger *logging.Logger
}

// NewRouter returns the HTTP handler for exec.
func NewRouter(exec Executor, opts Options) http.Handler {
	h := &handler{
		exec:   exec,
		limits: opts.Limits,
		logger: opts.Logger,
	}
	if h.logger == nil {
		h.logger = logging.NewLogger(nil)
	}

	r := chi.NewRouter()
	r.Use(traceRoute)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware())
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpserver.WriteError(w, http.StatusNotFound, httpserver.ErrorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpserver.WriteError(w, http.StatusMethodNotAllowed, httpserver.ErrorBody{Error: "method not allowed"})
	})

	if opts.Health != nil {
		r.Method(http.MethodGet, "/health", opts.Health)
	}
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(
			h.telemetry,
			httpserver.Logger(httpserver.LoggerConfig{Logger: h.logger}),
			h.resourceLimits,
		)

		r.Get("/connection-info", h.connectionInfo)
		r.Post("/query", h.query)
		r.Post("/transaction/start", h.startTransaction)
		r.Post("/transaction/{id}/query", h.query)
		r.Post("/transaction/{id}/commit", h.commitTransaction)
		r.Post("/transaction/{id}/rollback", h.rollbackTransaction)
	})

	return r
}

// RoutePattern returns the chi route pattern that served r. It is meant for
// httpserver.MetricsConfig.Route and only has a value once routing is done.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// AttrTransactionID is the server span attribute holding the transaction a
// request operated on.
const AttrTransactionID = attribute.Key("db.transaction.id")

// traceRoute names the server span after the chi route pattern and tags it
// with the transaction id, from the path or from a started transaction.
func traceRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		rctx := chi.RouteContext(r.Context())
		if rctx == nil || rctx.RoutePattern() == "" {
			return
		}
		var attrs []attribute.KeyValue
		id := chi.URLParam(r, "id")
		if id == "" {
			id = w.Header().Get(HeaderTransactionID)
		}
		if id != "" {
			attrs = append(attrs, AttrTransactionID.String(id))
		}
		httpserver.SetRoute(r.Context(), rctx.RoutePattern(), attrs...)
	})
}
