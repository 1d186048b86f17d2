package interpreter

import (
	"context"
	"errors"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kroma-labs/sentinel-executor/adapter"
	"github.com/kroma-labs/sentinel-executor/executor"
	"github.com/kroma-labs/sentinel-executor/logging"
)

type recordingQueryable struct {
	queries []adapter.Query
	result  *adapter.ResultSet
	err     error
}

func (r *recordingQueryable) Provider() adapter.Provider { return adapter.ProviderPostgres }

func (r *recordingQueryable) QueryRaw(_ context.Context, q adapter.Query) (*adapter.ResultSet, error) {
	r.queries = append(r.queries, q)
	return r.result, r.err
}

func (r *recordingQueryable) ExecuteRaw(_ context.Context, q adapter.Query) (int64, error) {
	r.queries = append(r.queries, q)
	return 3, r.err
}

func TestBasic_Run(t *testing.T) {
	t.Parallel()

	users := &adapter.ResultSet{
		ColumnNames: []string{"id", "email"},
		ColumnTypes: []string{"int", "string"},
		Rows:        [][]any{{int64(1), "a@example.com"}, {int64(2), "b@example.com"}},
	}

	tests := []struct {
		name        string
		plan        string
		params      map[string]any
		want        any
		wantQueries []adapter.Query
		wantCode    string
	}{
		{
			name: "given query node with placeholder, then returns rows as objects",
			plan: `{"type":"query","args":{"sql":"SELECT id, email FROM users WHERE id > $1",
				"params":[{"prisma__type":"param","prisma__value":{"name":"min"}}]}}`,
			params: map[string]any{"min": float64(0)},
			want: []map[string]any{
				{"id": int64(1), "email": "a@example.com"},
				{"id": int64(2), "email": "b@example.com"},
			},
			wantQueries: []adapter.Query{
				{SQL: "SELECT id, email FROM users WHERE id > $1", Args: []any{float64(0)}},
			},
		},
		{
			name:   "given execute node, then returns affected rows",
			plan:   `{"type":"execute","args":{"sql":"DELETE FROM users","params":[]}}`,
			want:   int64(3),
			params: map[string]any{},
			wantQueries: []adapter.Query{
				{SQL: "DELETE FROM users", Args: []any{}},
			},
		},
		{
			name: "given seq node, then runs children and returns last",
			plan: `{"type":"seq","args":[
				{"type":"execute","args":{"sql":"UPDATE users SET active = true"}},
				{"type":"value","args":{"done":true}}]}`,
			want: map[string]any{"done": true},
			wantQueries: []adapter.Query{
				{SQL: "UPDATE users SET active = true", Args: []any{}},
			},
		},
		{
			name:   "given value node with nested placeholder, then resolves it",
			plan:   `{"type":"value","args":[1,{"prisma__type":"param","prisma__value":{"name":"x"}}]}`,
			params: map[string]any{"x": "y"},
			want:   []any{float64(1), "y"},
		},
		{
			name:     "given missing parameter, then returns invalid plan error",
			plan:     `{"type":"value","args":{"prisma__type":"param","prisma__value":{"name":"x"}}}`,
			wantCode: executor.CodeInvalidPlan,
		},
		{
			name:     "given unknown node type, then returns invalid plan error",
			plan:     `{"type":"join","args":{}}`,
			wantCode: executor.CodeInvalidPlan,
		},
		{
			name:     "given query node without sql, then returns invalid plan error",
			plan:     `{"type":"query","args":{}}`,
			wantCode: executor.CodeInvalidPlan,
		},
		{
			name:     "given empty plan, then returns invalid plan error",
			plan:     ``,
			wantCode: executor.CodeInvalidPlan,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := &recordingQueryable{result: users}
			got, err := NewBasic().Run(context.Background(), q, json.RawMessage(tt.plan), tt.params)
			if tt.wantCode != "" {
				var ufe *executor.UserFacingError
				require.ErrorAs(t, err, &ufe)
				assert.Equal(t, tt.wantCode, ufe.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantQueries, q.queries)
		})
	}
}

func TestBasic_RunPropagatesDriverErrors(t *testing.T) {
	t.Parallel()

	driverErr := &adapter.DriverError{Code: "23505", Message: "duplicate key"}
	q := &recordingQueryable{err: driverErr}

	_, err := NewBasic().Run(context.Background(), q,
		json.RawMessage(`{"type":"query","args":{"sql":"INSERT INTO t VALUES (1)"}}`), nil)
	assert.ErrorIs(t, err, driverErr)
}

func TestBasic_RunLogsQueries(t *testing.T) {
	t.Parallel()

	sink := logging.NewCapturingSink()
	ctx := logging.WithActiveLogger(context.Background(), logging.NewLogger(sink))
	q := &recordingQueryable{result: &adapter.ResultSet{}}

	_, err := NewBasic().Run(ctx, q,
		json.RawMessage(`{"type":"query","args":{"sql":"SELECT 1","params":[42]}}`), nil)
	require.NoError(t, err)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, logging.LevelQuery, events[0].Level)
	assert.Equal(t, "SELECT 1", events[0].Message)
	assert.Equal(t, "params", events[0].Attributes[0].Key)
	assert.Equal(t, "[42]", events[0].Attributes[0].Value)
}

func TestBasic_RunLogsAffectedRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantAttrs []string
	}{
		{
			name:      "given successful execute node, then logs affected rows",
			wantAttrs: []string{"params", "duration_ms", "rows_affected"},
		},
		{
			name:      "given failing execute node, then logs without affected rows",
			err:       errors.New("deadlock"),
			wantAttrs: []string{"params", "duration_ms"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sink := logging.NewCapturingSink()
			ctx := logging.WithActiveLogger(context.Background(), logging.NewLogger(sink))
			q := &recordingQueryable{err: tt.err}

			_, _ = NewBasic().Run(ctx, q,
				json.RawMessage(`{"type":"execute","args":{"sql":"DELETE FROM users","params":[]}}`), nil)

			events := sink.Events()
			require.Len(t, events, 1)
			keys := make([]string, 0, len(events[0].Attributes))
			for _, a := range events[0].Attributes {
				keys = append(keys, a.Key)
			}
			assert.Equal(t, tt.wantAttrs, keys)
			if tt.err == nil {
				assert.Equal(t, int64(3), events[0].Attributes[2].Value)
			}
		})
	}
}

func TestBasic_RunStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := &recordingQueryable{}
	_, err := NewBasic().Run(ctx, q, json.RawMessage(`{"type":"value","args":1}`), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, q.queries)
}
