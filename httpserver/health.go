package httpserver

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// CheckResult is the outcome of one HealthCheck.
type CheckResult struct {
	Status              string `json:"status"`
	Latency             string `json:"latency"`
	Message             string `json:"message,omitempty"`
	ConsecutiveFailures int    `json:"consecutiveFailures,omitempty"`
}

// HealthResponse is the body of the health endpoint. Checks are only
// reported when one of them failed.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type checkState struct {
	check               HealthCheck
	consecutiveFailures int
}

// HealthHandler serves the health endpoint.
//
//	health := httpserver.NewHealthHandler(2 * time.Second)
//	health.AddCheck("database", app.Ping)
//	router.Get("/health", health.ServeHTTP)
type HealthHandler struct {
	timeout time.Duration

	mu     sync.Mutex
	checks map[string]*checkState
}

// NewHealthHandler returns a HealthHandler running every check with the
// given timeout. A zero timeout only uses the request context.
func NewHealthHandler(timeout time.Duration) *HealthHandler {
	return &HealthHandler{
		timeout: timeout,
		checks:  make(map[string]*checkState),
	}
}

// AddCheck registers a named readiness check.
func (h *HealthHandler) AddCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = &checkState{check: check}
}

// ServeHTTP runs all checks. It responds 200 {"status":"ok"} when every
// check passes and 503 {"status":"fail","checks":{...}} otherwise.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]CheckResult, len(names))
	healthy := true
	for _, name := range names {
		state := h.checks[name]

		start := time.Now()
		err := state.check(ctx)
		result := CheckResult{
			Status:  "ok",
			Latency: time.Since(start).String(),
		}
		if err != nil {
			state.consecutiveFailures++
			result.Status = "fail"
			result.Message = err.Error()
			result.ConsecutiveFailures = state.consecutiveFailures
			healthy = false
		} else {
			state.consecutiveFailures = 0
		}
		results[name] = result
	}

	if healthy {
		WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}
	WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{
		Status: "fail",
		Checks: results,
	})
}
