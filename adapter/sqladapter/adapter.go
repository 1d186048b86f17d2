package sqladapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/sentinel-executor/adapter"
	"github.com/kroma-labs/sentinel-executor/tracing"
)

// Compile-time interface checks.
var (
	_ adapter.Adapter                = (*Adapter)(nil)
	_ adapter.ConnectionInfoProvider = (*Adapter)(nil)
	_ adapter.Pinger                 = (*Adapter)(nil)
)

// ErrUnsupportedIsolationLevel is returned for isolation levels database/sql
// cannot express.
var ErrUnsupportedIsolationLevel = errors.New("unsupported isolation level")

// Adapter runs raw statements on a *sqlx.DB pool.
type Adapter struct {
	db       *sqlx.DB
	provider adapter.Provider
	info     adapter.ConnectionInfo
	cfg      *config
}

// New wraps an open pool. Pool metrics are registered on cfg's meter until
// Dispose.
func New(db *sqlx.DB, provider adapter.Provider, info adapter.ConnectionInfo, opts ...Option) (*Adapter, error) {
	cfg := newConfig(opts...)
	if err := cfg.Metrics.registerPoolMetrics(cfg.Meter, db.DB, cfg.baseAttributes()); err != nil {
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}
	return &Adapter{db: db, provider: provider, info: info, cfg: cfg}, nil
}

func (a *Adapter) Provider() adapter.Provider {
	return a.provider
}

func (a *Adapter) QueryRaw(ctx context.Context, q adapter.Query) (*adapter.ResultSet, error) {
	return a.cfg.queryRaw(ctx, a.db, q)
}

func (a *Adapter) ExecuteRaw(ctx context.Context, q adapter.Query) (int64, error) {
	return a.cfg.executeRaw(ctx, a.db, q)
}

// ExecuteScript runs script as a single statement without arguments.
func (a *Adapter) ExecuteScript(ctx context.Context, script string) error {
	_, err := a.cfg.executeRaw(ctx, a.db, adapter.Query{SQL: script})
	return err
}

// StartTransaction begins a transaction that outlives ctx's cancellation; it
// stays open until Commit or Rollback.
func (a *Adapter) StartTransaction(
	ctx context.Context,
	isolation adapter.IsolationLevel,
) (adapter.Transaction, error) {
	level, err := sqlIsolation(isolation)
	if err != nil {
		return nil, err
	}

	return tracing.InChildSpan(ctx, a.cfg.handler, a.cfg.spanOptions("BEGIN"),
		func(ctx context.Context, _ *tracing.SpanProxy) (adapter.Transaction, error) {
			start := time.Now()
			tx, err := a.db.BeginTxx(context.WithoutCancel(ctx), &sql.TxOptions{Isolation: level})
			a.cfg.Metrics.recordQueryDuration(ctx, time.Since(start), "BEGIN", a.cfg.baseAttributes(), err)
			if err != nil {
				return nil, convertError(err)
			}
			return &Transaction{tx: tx, provider: a.provider, cfg: a.cfg}, nil
		})
}

// Dispose closes the pool.
func (a *Adapter) Dispose() error {
	return errors.Join(a.cfg.Metrics.unregisterPoolMetrics(), a.db.Close())
}

func (a *Adapter) ConnectionInfo(context.Context) adapter.ConnectionInfo {
	return a.info
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func sqlIsolation(level adapter.IsolationLevel) (sql.IsolationLevel, error) {
	switch level {
	case adapter.IsolationDefault:
		return sql.LevelDefault, nil
	case adapter.IsolationReadUncommitted:
		return sql.LevelReadUncommitted, nil
	case adapter.IsolationReadCommitted:
		return sql.LevelReadCommitted, nil
	case adapter.IsolationRepeatableRead:
		return sql.LevelRepeatableRead, nil
	case adapter.IsolationSnapshot:
		return sql.LevelSnapshot, nil
	case adapter.IsolationSerializable:
		return sql.LevelSerializable, nil
	default:
		return sql.LevelDefault, fmt.Errorf("%w: %s", ErrUnsupportedIsolationLevel, level)
	}
}

type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

func (cfg *config) spanOptions(query string) tracing.SpanOptions {
	return tracing.SpanOptions{
		Name:       "db_query",
		Kind:       trace.SpanKindClient,
		Attributes: cfg.queryAttributes(query),
	}
}

func (cfg *config) queryRaw(ctx context.Context, db queryer, q adapter.Query) (*adapter.ResultSet, error) {
	return tracing.InChildSpan(ctx, cfg.handler, cfg.spanOptions(q.SQL),
		func(ctx context.Context, _ *tracing.SpanProxy) (*adapter.ResultSet, error) {
			start := time.Now()
			rs, err := scan(ctx, db, q)
			cfg.Metrics.recordQueryDuration(ctx, time.Since(start), extractOperation(q.SQL), cfg.baseAttributes(), err)
			if err != nil {
				return nil, convertError(err)
			}
			return rs, nil
		})
}

func (cfg *config) executeRaw(ctx context.Context, db queryer, q adapter.Query) (int64, error) {
	return tracing.InChildSpan(ctx, cfg.handler, cfg.spanOptions(q.SQL),
		func(ctx context.Context, _ *tracing.SpanProxy) (int64, error) {
			start := time.Now()
			res, err := db.ExecContext(ctx, q.SQL, q.Args...)
			cfg.Metrics.recordQueryDuration(ctx, time.Since(start), extractOperation(q.SQL), cfg.baseAttributes(), err)
			if err != nil {
				return 0, convertError(err)
			}
			return res.RowsAffected()
		})
}

func scan(ctx context.Context, db queryer, q adapter.Query) (*adapter.ResultSet, error) {
	rows, err := db.QueryxContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	rs := &adapter.ResultSet{
		ColumnNames: names,
		ColumnTypes: make([]string, len(types)),
		Rows:        [][]any{},
	}
	for i, ct := range types {
		rs.ColumnTypes[i] = ct.DatabaseTypeName()
	}

	for rows.Next() {
		row, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, rows.Err()
}
