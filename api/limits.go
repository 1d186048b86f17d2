package api

import (
	"context"
	"net/http"

	"github.com/kroma-labs/sentinel-executor/limits"
	"github.com/kroma-labs/sentinel-executor/parse"
)

const (
	HeaderQueryTimeout          = "X-Query-Timeout"
	HeaderMaxTransactionTimeout = "X-Max-Transaction-Timeout"
	HeaderMaxResponseSize       = "X-Max-Response-Size"
)

type limitsKey struct{}

// limitsFromHeaders overrides defaults with the limit headers present on r.
func limitsFromHeaders(r *http.Request, defaults limits.ResourceLimits) (limits.ResourceLimits, error) {
	lim := defaults

	if v := r.Header.Get(HeaderQueryTimeout); v != "" {
		d, err := parse.Duration(v)
		if err != nil {
			return lim, badRequest("invalid "+HeaderQueryTimeout+" header", err)
		}
		lim = lim.WithQueryTimeout(d)
	}

	if v := r.Header.Get(HeaderMaxTransactionTimeout); v != "" {
		d, err := parse.Duration(v)
		if err != nil {
			return lim, badRequest("invalid "+HeaderMaxTransactionTimeout+" header", err)
		}
		lim = lim.WithMaxTransactionTimeout(d)
	}

	if v := r.Header.Get(HeaderMaxResponseSize); v != "" {
		n, err := parse.Size(v)
		if err != nil {
			return lim, badRequest("invalid "+HeaderMaxResponseSize+" header", err)
		}
		lim = lim.WithMaxResponseSize(n)
	}

	return lim, nil
}

// resourceLimits parses the limit headers into the request context.
func (h *handler) resourceLimits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lim, err := limitsFromHeaders(r, h.limits)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), limitsKey{}, lim)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *handler) limitsFrom(ctx context.Context) limits.ResourceLimits {
	if lim, ok := ctx.Value(limitsKey{}).(limits.ResourceLimits); ok {
		return lim
	}
	return h.limits
}
