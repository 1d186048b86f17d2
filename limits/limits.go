// Package limits defines the per-operation resource ceilings enforced by the
// executor and the error reported when one of them is exceeded.
package limits

import (
	"fmt"
	"time"
)

// ResourceLimits are the time and size ceilings applied to a single
// operation. Server-wide defaults are overridden per request through headers;
// a value is never mutated once built.
type ResourceLimits struct {
	// QueryTimeout bounds the wall-clock time of one query plan execution.
	QueryTimeout time.Duration

	// MaxTransactionTimeout caps the timeout a client may request for an
	// interactive transaction.
	MaxTransactionTimeout time.Duration

	// MaxResponseSize caps the serialized size of a query response in bytes.
	MaxResponseSize int64
}

// Default returns the limits used when neither flags nor headers override
// them: 30s query timeout, 5m max transaction timeout, 128MiB responses.
func Default() ResourceLimits {
	return ResourceLimits{
		QueryTimeout:          30 * time.Second,
		MaxTransactionTimeout: 5 * time.Minute,
		MaxResponseSize:       128 << 20,
	}
}

// WithQueryTimeout returns a copy of l with the query timeout replaced.
func (l ResourceLimits) WithQueryTimeout(d time.Duration) ResourceLimits {
	l.QueryTimeout = d
	return l
}

// WithMaxTransactionTimeout returns a copy of l with the transaction timeout
// ceiling replaced.
func (l ResourceLimits) WithMaxTransactionTimeout(d time.Duration) ResourceLimits {
	l.MaxTransactionTimeout = d
	return l
}

// WithMaxResponseSize returns a copy of l with the response size ceiling
// replaced.
func (l ResourceLimits) WithMaxResponseSize(n int64) ResourceLimits {
	l.MaxResponseSize = n
	return l
}

// ClampTransactionTimeout returns min(requested, MaxTransactionTimeout). A
// zero MaxTransactionTimeout means no ceiling.
func (l ResourceLimits) ClampTransactionTimeout(requested time.Duration) time.Duration {
	if l.MaxTransactionTimeout > 0 && requested > l.MaxTransactionTimeout {
		return l.MaxTransactionTimeout
	}
	return requested
}

// Resource names the limit that was exceeded.
type Resource string

const (
	ResourceQueryTime    Resource = "query_timeout"
	ResourceResponseSize Resource = "response_size"
)

// ResourceLimitError reports that an operation exceeded one of its limits.
type ResourceLimitError struct {
	Resource Resource
	Limit    string
	Message  string
}

func (e *ResourceLimitError) Error() string {
	return e.Message
}

// NewQueryTimeoutError reports a query that did not finish within d.
func NewQueryTimeoutError(d time.Duration) *ResourceLimitError {
	return &ResourceLimitError{
		Resource: ResourceQueryTime,
		Limit:    d.String(),
		Message:  fmt.Sprintf("Query timeout exceeded (limit: %s)", d),
	}
}

// NewResponseSizeError reports a response whose serialized size is larger
// than limit bytes.
func NewResponseSizeError(size, limit int64) *ResourceLimitError {
	return &ResourceLimitError{
		Resource: ResourceResponseSize,
		Limit:    fmt.Sprintf("%d", limit),
		Message: fmt.Sprintf(
			"Response size exceeded (size: %d bytes, limit: %d bytes)", size, limit,
		),
	}
}
