package sqladapter

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kroma-labs/sentinel-executor/adapter"
	"github.com/kroma-labs/sentinel-executor/tracing"
)

var _ adapter.Transaction = (*Transaction)(nil)

// Transaction is an open *sqlx.Tx.
type Transaction struct {
	tx       *sqlx.Tx
	provider adapter.Provider
	cfg      *config
}

func (t *Transaction) Provider() adapter.Provider {
	return t.provider
}

func (t *Transaction) QueryRaw(ctx context.Context, q adapter.Query) (*adapter.ResultSet, error) {
	return t.cfg.queryRaw(ctx, t.tx, q)
}

func (t *Transaction) ExecuteRaw(ctx context.Context, q adapter.Query) (int64, error) {
	return t.cfg.executeRaw(ctx, t.tx, q)
}

func (t *Transaction) Commit(ctx context.Context) error {
	return t.finish(ctx, "COMMIT", t.tx.Commit)
}

func (t *Transaction) Rollback(ctx context.Context) error {
	return t.finish(ctx, "ROLLBACK", t.tx.Rollback)
}

func (t *Transaction) finish(ctx context.Context, operation string, fn func() error) error {
	return t.cfg.handler.RunInChildSpan(ctx, t.cfg.spanOptions(operation),
		func(ctx context.Context, _ *tracing.SpanProxy) error {
			start := time.Now()
			err := fn()
			t.cfg.Metrics.recordQueryDuration(ctx, time.Since(start), operation, t.cfg.baseAttributes(), err)
			return convertError(err)
		})
}
