// Package httpserver provides the executor's HTTP server: graceful shutdown
// with hooks, lifecycle logging and the observability middleware.
//
// # Quick Start
//
//	server := httpserver.New(
//	    httpserver.WithConfig(httpserver.DefaultConfig()),
//	    httpserver.WithTracing(httpserver.TracingConfig{SkipPaths: []string{"/health"}}),
//	    httpserver.WithHandler(router),
//	    httpserver.WithShutdownHook(app.Shutdown),
//	)
//
//	if err := server.ListenAndServe(ctx); errors.Is(err, httpserver.ErrForcedShutdown) {
//	    os.Exit(2)
//	}
//
// # Middleware
//
// RequestID and Recovery are always installed. Tracing, Metrics and
// RateLimit are enabled through their options. Logger is meant to run inside
// the handler, after the request logger has been bound to the context.
//
// # Responses
//
// Successful bodies are written as Response[T] ({"data": ...}) and errors as
// ErrorBody ({"error": ..., "code": ..., "meta": ...}).
package httpserver
