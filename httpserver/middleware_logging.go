package httpserver

import (
	"net/http"
	"time"

	"github.com/kroma-labs/sentinel-executor/logging"
)

// LoggerConfig configures the request logging middleware.
type LoggerConfig struct {
	// Logger is used when no request logger is active in the request
	// context. If both are missing the request is not logged.
	Logger *logging.Logger

	// SkipPaths are paths that should not be logged.
	SkipPaths []string
}

// Logger returns middleware that logs one event per request through the
// request logger bound to the context, so the entry is also captured when
// the client asked for its logs.
//
// 5xx responses log at error level, 4xx at warn, everything else at info.
func Logger(cfg LoggerConfig) Middleware {
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

			start := time.Now()
			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			ctx := r.Context()
			logger, err := logging.ActiveLogger(ctx)
			if err != nil {
				logger = cfg.Logger
			}
			if logger == nil {
				return
			}

			level := logging.LevelInfo
			switch status := wrapped.Status(); {
			case status >= 500:
				level = logging.LevelError
			case status >= 400:
				level = logging.LevelWarn
			}

			attrs := []logging.Attr{
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", wrapped.Status()),
				logging.Duration("duration_ms", time.Since(start)),
				logging.Int("bytes", wrapped.BytesWritten()),
			}
			if id := RequestIDFromContext(ctx); id != "" {
				attrs = append(attrs, logging.String("request_id", id))
			}
			logger.Log(ctx, level, "request completed", attrs...)
		})
	}
}
