// Package executor runs query plans and interactive transaction commands
// against one database adapter under per-request resource limits.
package executor

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/multierr"

	"github.com/kroma-labs/sentinel-executor/adapter"
	"github.com/kroma-labs/sentinel-executor/limits"
	"github.com/kroma-labs/sentinel-executor/logging"
	"github.com/kroma-labs/sentinel-executor/tracing"
	"github.com/kroma-labs/sentinel-executor/txmanager"
)

// Interpreter runs a compiled query plan against q.
type Interpreter interface {
	Run(ctx context.Context, q adapter.Queryable, plan json.RawMessage, params map[string]any) (any, error)
}

// TransactionManager owns interactive transactions. The App looks every
// transaction up by id and keeps no state of its own.
type TransactionManager interface {
	StartTransaction(ctx context.Context, opts txmanager.Options) (txmanager.Info, error)
	GetTransaction(id, operation string) (adapter.Queryable, error)
	CommitTransaction(ctx context.Context, id string) error
	RollbackTransaction(ctx context.Context, id string) error
	CancelAll(ctx context.Context) error
}

// QueryRequest is one plan execution.
type QueryRequest struct {
	Model     string          `json:"model,omitempty"`
	Operation string          `json:"operation"`
	Plan      json.RawMessage `json:"plan"`
	Params    map[string]any  `json:"params"`
	Comments  map[string]any  `json:"comments,omitempty"`
}

// ConnectionInfo is the response of App.ConnectionInfo.
type ConnectionInfo struct {
	Provider       adapter.Provider       `json:"provider"`
	ConnectionInfo adapter.ConnectionInfo `json:"connectionInfo"`
}

// App ties the adapter, the transaction manager and the interpreter
// together.
type App struct {
	adapter     adapter.Adapter
	txManager   TransactionManager
	interpreter Interpreter
	tracer      *tracing.Handler
}

// New returns an App. A nil handler traces with the global tracer provider.
func New(a adapter.Adapter, tm TransactionManager, interp Interpreter, h *tracing.Handler) *App {
	if h == nil {
		h = tracing.NewHandler(nil)
	}
	return &App{
		adapter:     a,
		txManager:   tm,
		interpreter: interp,
		tracer:      h,
	}
}

// Query runs req, inside transaction txID when it is not empty. The plan is
// abandoned once lim.QueryTimeout elapses.
func (a *App) Query(
	ctx context.Context,
	req QueryRequest,
	lim limits.ResourceLimits,
	txID string,
) (any, error) {
	return tracing.InChildSpan(ctx, a.tracer, tracing.Named("query"),
		func(ctx context.Context, _ *tracing.SpanProxy) (any, error) {
			var q adapter.Queryable = a.adapter
			if txID != "" {
				tx, err := a.txManager.GetTransaction(txID, "query")
				if err != nil {
					return nil, err
				}
				q = tx
			}

			logging.Debug(ctx, "executing query plan",
				logging.String("model", req.Model),
				logging.String("operation", req.Operation),
			)
			return a.runWithTimeout(ctx, q, req, lim.QueryTimeout)
		})
}

type runResult struct {
	value any
	err   error
}

func (a *App) runWithTimeout(
	ctx context.Context,
	q adapter.Queryable,
	req QueryRequest,
	timeout time.Duration,
) (any, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// buffered so an abandoned run never blocks
	ch := make(chan runResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- runResult{err: fmt.Errorf("interpreter panic: %v", r)}
			}
		}()
		v, err := a.interpreter.Run(ctx, q, req.Plan, req.Params)
		ch <- runResult{value: v, err: err}
	}()

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case r := <-ch:
		return r.value, userFacing(r.err)
	case <-timeoutC:
		return nil, limits.NewQueryTimeoutError(timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StartTransaction opens a transaction. The requested timeout, or the
// manager default when unset, is clamped to lim.MaxTransactionTimeout.
func (a *App) StartTransaction(
	ctx context.Context,
	opts txmanager.Options,
	lim limits.ResourceLimits,
) (txmanager.Info, error) {
	return tracing.InChildSpan(ctx, a.tracer, tracing.Named("start_transaction"),
		func(ctx context.Context, _ *tracing.SpanProxy) (txmanager.Info, error) {
			timeout := opts.Timeout
			if timeout <= 0 {
				timeout = txmanager.DefaultTimeout
			}
			opts.Timeout = lim.ClampTransactionTimeout(timeout)
			return a.txManager.StartTransaction(ctx, opts)
		})
}

// CommitTransaction commits transaction id.
func (a *App) CommitTransaction(ctx context.Context, id string) error {
	return a.tracer.RunInChildSpan(ctx, tracing.Named("commit_transaction"),
		func(ctx context.Context, _ *tracing.SpanProxy) error {
			return a.txManager.CommitTransaction(ctx, id)
		})
}

// RollbackTransaction rolls transaction id back.
func (a *App) RollbackTransaction(ctx context.Context, id string) error {
	return a.tracer.RunInChildSpan(ctx, tracing.Named("rollback_transaction"),
		func(ctx context.Context, _ *tracing.SpanProxy) error {
			return a.txManager.RollbackTransaction(ctx, id)
		})
}

// ConnectionInfo reports the provider and adapter connection metadata.
func (a *App) ConnectionInfo(ctx context.Context) ConnectionInfo {
	info, _ := tracing.InChildSpan(ctx, a.tracer, tracing.Named("connection_info"),
		func(ctx context.Context, _ *tracing.SpanProxy) (ConnectionInfo, error) {
			return ConnectionInfo{
				Provider:       a.adapter.Provider(),
				ConnectionInfo: adapter.ConnectionInfoOf(ctx, a.adapter),
			}, nil
		})
	return info
}

// Ping checks the database connection when the adapter supports it.
func (a *App) Ping(ctx context.Context) error {
	if p, ok := a.adapter.(adapter.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Shutdown rolls back every open transaction and then disposes the adapter.
// It returns ctx.Err() if ctx ends first.
func (a *App) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		err := a.txManager.CancelAll(ctx)
		done <- multierr.Append(err, a.adapter.Dispose())
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
