package sqladapter

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kroma-labs/sentinel-executor/adapter"
	"github.com/kroma-labs/sentinel-executor/tracing"
)

type fixture struct {
	adapter  *Adapter
	mock     sqlmock.Sqlmock
	reader   *sdkmetric.ManualReader
	exporter *tracetest.InMemoryExporter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
		_ = tp.Shutdown(context.Background())
	})

	a, err := New(sqlx.NewDb(mockDB, "sqlmock"), adapter.ProviderPostgres,
		adapter.ConnectionInfo{SupportsRelationJoins: true},
		WithDBSystem("postgresql"),
		WithTracerProvider(tp),
		WithMeterProvider(mp),
	)
	require.NoError(t, err)

	return &fixture{adapter: a, mock: mock, reader: reader, exporter: exporter}
}

func metricNames(t *testing.T, reader *sdkmetric.ManualReader) []string {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var names []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names = append(names, m.Name)
		}
	}
	return names
}

func TestAdapter_QueryRaw(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM users WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), []byte("alice")))

	collector := tracing.NewCollector("")
	ctx := tracing.WithActiveCollector(context.Background(), collector)

	rs, err := f.adapter.QueryRaw(ctx, adapter.Query{
		SQL:  "SELECT id, name FROM users WHERE id = $1",
		Args: []any{int64(7)},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name"}, rs.ColumnNames)
	assert.Equal(t, [][]any{{int64(7), "alice"}}, rs.Rows)

	spans := collector.Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, "prisma:engine:db_query", spans[0].Name)
	assert.Equal(t, tracing.SpanKindClient, spans[0].Kind)
	assert.Equal(t, "postgresql", spans[0].Attributes["db.system"])
	assert.Equal(t, "SELECT id, name FROM users WHERE id = $1", spans[0].Attributes["db.query.text"])

	assert.Len(t, f.exporter.GetSpans(), 1)
	assert.Contains(t, metricNames(t, f.reader), "db.client.operation.duration")
	assert.Contains(t, metricNames(t, f.reader), "db.client.connections.open")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAdapter_QueryRawEmpty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rs, err := f.adapter.QueryRaw(context.Background(), adapter.Query{SQL: "SELECT id FROM users"})
	require.NoError(t, err)
	assert.NotNil(t, rs.Rows)
	assert.Empty(t, rs.Rows)
}

func TestAdapter_ExecuteRaw(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		setup    func(sqlmock.Sqlmock)
		want     int64
		wantErr  assert.ErrorAssertionFunc
		wantCode string
	}{
		{
			name: "given successful update, then returns affected rows",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 3))
			},
			want:    3,
			wantErr: assert.NoError,
		},
		{
			name: "given unique violation, then returns driver error",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec("UPDATE users").WillReturnError(&pq.Error{
					Code:       "23505",
					Message:    "duplicate key value violates unique constraint",
					Constraint: "users_email_key",
				})
			},
			wantErr:  assert.Error,
			wantCode: "23505",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			tt.setup(f.mock)

			got, err := f.adapter.ExecuteRaw(context.Background(), adapter.Query{SQL: "UPDATE users SET active = true"})
			tt.wantErr(t, err)
			assert.Equal(t, tt.want, got)

			if tt.wantCode != "" {
				var driverErr *adapter.DriverError
				require.ErrorAs(t, err, &driverErr)
				assert.Equal(t, tt.wantCode, driverErr.Code)
				assert.Equal(t, "users_email_key", driverErr.Meta["constraint"])
			}
			require.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestAdapter_Transaction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		commit bool
	}{
		{name: "given commit, then commits the transaction", commit: true},
		{name: "given rollback, then rolls the transaction back", commit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.mock.ExpectBegin()
			f.mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
			if tt.commit {
				f.mock.ExpectCommit()
			} else {
				f.mock.ExpectRollback()
			}

			ctx, cancel := context.WithCancel(context.Background())
			tx, err := f.adapter.StartTransaction(ctx, adapter.IsolationSerializable)
			require.NoError(t, err)
			// the transaction must survive the cancellation of the request
			// that opened it
			cancel()

			n, err := tx.ExecuteRaw(context.Background(), adapter.Query{SQL: "INSERT INTO users (name) VALUES ('bob')"})
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			if tt.commit {
				require.NoError(t, tx.Commit(context.Background()))
			} else {
				require.NoError(t, tx.Rollback(context.Background()))
			}
			require.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestAdapter_StartTransactionUnknownIsolation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.adapter.StartTransaction(context.Background(), adapter.IsolationLevel("Chaos"))
	require.ErrorIs(t, err, ErrUnsupportedIsolationLevel)
}

func TestAdapter_Dispose(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mock.ExpectClose()

	require.NoError(t, f.adapter.Dispose())
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, adapter.ConnectionInfo{SupportsRelationJoins: true}, f.adapter.ConnectionInfo(context.Background()))
}
