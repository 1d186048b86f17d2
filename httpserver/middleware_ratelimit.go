package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// Limit is the rate limit in requests per second.
	Limit rate.Limit

	// Burst is the token bucket capacity. Defaults to Limit rounded up.
	Burst int
}

// RateLimit returns middleware that rejects requests above the configured
// rate with 429 and a Retry-After header. The limit applies to the whole
// process: the executor serves a single client.
func RateLimit(cfg RateLimitConfig) Middleware {
	burst := cfg.Burst
	if burst <= 0 {
		burst = max(1, int(cfg.Limit+0.5))
	}
	limiter := rate.NewLimiter(cfg.Limit, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := limiter.Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(int(delay/time.Second)+1))
				WriteError(w, http.StatusTooManyRequests, ErrorBody{
					Error: "rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
