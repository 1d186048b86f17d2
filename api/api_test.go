package api_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/sentinel-executor/adapter"
	"github.com/kroma-labs/sentinel-executor/api"
	"github.com/kroma-labs/sentinel-executor/executor"
	"github.com/kroma-labs/sentinel-executor/httpserver"
	"github.com/kroma-labs/sentinel-executor/interpreter"
	"github.com/kroma-labs/sentinel-executor/limits"
	"github.com/kroma-labs/sentinel-executor/tracing"
	"github.com/kroma-labs/sentinel-executor/txmanager"
)

type memoryTx struct {
	adapter.Queryable
}

func (memoryTx) Commit(context.Context) error   { return nil }
func (memoryTx) Rollback(context.Context) error { return nil }

// memoryAdapter answers every query with a single row {"n": 1} unless
// queryErr is set.
type memoryAdapter struct {
	queryErr error
}

func (m *memoryAdapter) Provider() adapter.Provider { return adapter.ProviderPostgres }

func (m *memoryAdapter) QueryRaw(context.Context, adapter.Query) (*adapter.ResultSet, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return &adapter.ResultSet{
		ColumnNames: []string{"n"},
		ColumnTypes: []string{"int"},
		Rows:        [][]any{{int64(1)}},
	}, nil
}

func (m *memoryAdapter) ExecuteRaw(context.Context, adapter.Query) (int64, error) {
	return 1, m.queryErr
}

func (m *memoryAdapter) ExecuteScript(context.Context, string) error { return nil }

func (m *memoryAdapter) StartTransaction(context.Context, adapter.IsolationLevel) (adapter.Transaction, error) {
	return memoryTx{Queryable: m}, nil
}

func (m *memoryAdapter) Dispose() error { return nil }

func (m *memoryAdapter) ConnectionInfo(context.Context) adapter.ConnectionInfo {
	return adapter.ConnectionInfo{SchemaName: "public", MaxBindValues: 32766, SupportsRelationJoins: true}
}

type slowInterpreter struct{}

func (slowInterpreter) Run(ctx context.Context, _ adapter.Queryable, _ json.RawMessage, _ map[string]any) (any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

const selectPlan = `{"operation":"findMany","plan":{"type":"query","args":{"sql":"SELECT 1 AS n"}},"params":{}}`

func newServer(t *testing.T, a adapter.Adapter, interp executor.Interpreter) *httptest.Server {
	t.Helper()

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	app := executor.New(a, txmanager.New(a), interp, tracing.NewHandlerFromProvider(tp))
	router := api.NewRouter(app, api.Options{Limits: limits.Default()})
	handler := httpserver.Chain(
		httpserver.RequestID(),
		httpserver.Tracing(httpserver.TracingConfig{TracerProvider: tp}),
	)(router)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

type response struct {
	status int
	header http.Header
	body   map[string]any
	raw    string
}

func do(t *testing.T, srv *httptest.Server, path, body string, headers map[string]string) response {
	t.Helper()

	method := http.MethodPost
	if body == "" && !strings.HasPrefix(path, "/transaction") {
		method = http.MethodGet
	}
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := response{status: resp.StatusCode, header: resp.Header, raw: string(raw)}
	require.NoError(t, json.Unmarshal(raw, &out.body), string(raw))
	return out
}

func TestQuery(t *testing.T) {
	t.Parallel()

	srv := newServer(t, &memoryAdapter{}, interpreter.NewBasic())
	resp := do(t, srv, "/query", selectPlan, nil)

	require.Equal(t, http.StatusOK, resp.status, resp.raw)
	assert.JSONEq(t, `{"data":[{"n":1}]}`, resp.raw)
	assert.NotEmpty(t, resp.header.Get(httpserver.RequestIDHeader))
}

func TestQuery_Timeout(t *testing.T) {
	t.Parallel()

	srv := newServer(t, &memoryAdapter{}, slowInterpreter{})
	resp := do(t, srv, "/query", selectPlan, map[string]string{api.HeaderQueryTimeout: "1"})

	assert.Equal(t, http.StatusUnprocessableEntity, resp.status)
	assert.Contains(t, resp.body["error"], "Query timeout exceeded")
}

func TestQuery_ResponseTooLarge(t *testing.T) {
	t.Parallel()

	srv := newServer(t, &memoryAdapter{}, interpreter.NewBasic())
	resp := do(t, srv, "/query", selectPlan, map[string]string{api.HeaderMaxResponseSize: "8"})

	assert.Equal(t, http.StatusUnprocessableEntity, resp.status)
	assert.Contains(t, resp.body["error"], "Response size exceeded")
}

func TestQuery_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		queryErr   error
		body       string
		headers    map[string]string
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{
			name: "given driver error, then returns 400 with code",
			queryErr: &adapter.DriverError{
				Code:    "23505",
				Message: "duplicate key value violates unique constraint",
			},
			body:       selectPlan,
			wantStatus: http.StatusBadRequest,
			wantCode:   executor.CodeRawQueryFailed,
			wantError:  "Raw query failed. Code: `23505`",
		},
		{
			name:       "given unexpected error with credentials, then returns 500 redacted",
			queryErr:   errors.New("dial postgres://admin:hunter2@db:5432/app failed"),
			body:       selectPlan,
			wantStatus: http.StatusInternalServerError,
			wantError:  "dial [REDACTED] failed",
		},
		{
			name:       "given malformed body, then returns 400",
			body:       `{"plan":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "given unknown plan node, then returns 400 with code",
			body:       `{"plan":{"type":"merge"}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   executor.CodeInvalidPlan,
			wantError:  "unknown plan node type",
		},
		{
			name:       "given malformed limit header, then returns 400",
			body:       selectPlan,
			headers:    map[string]string{api.HeaderQueryTimeout: "soon"},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid X-Query-Timeout header",
		},
		{
			name:       "given unknown telemetry token, then returns 400",
			body:       selectPlan,
			headers:    map[string]string{api.HeaderCaptureTelemetry: "tracing,verbose"},
			wantStatus: http.StatusBadRequest,
			wantError:  `"verbose"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newServer(t, &memoryAdapter{queryErr: tt.queryErr}, interpreter.NewBasic())
			resp := do(t, srv, "/query", tt.body, tt.headers)

			assert.Equal(t, tt.wantStatus, resp.status, resp.raw)
			assert.Contains(t, resp.body["error"], tt.wantError)
			assert.NotContains(t, resp.raw, "hunter2")
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, resp.body["code"])
			}
		})
	}
}

func TestTransactionLifecycle(t *testing.T) {
	t.Parallel()

	srv := newServer(t, &memoryAdapter{}, interpreter.NewBasic())

	started := do(t, srv, "/transaction/start", `{"timeout":5000,"maxWait":2000,"isolationLevel":"Serializable"}`, nil)
	require.Equal(t, http.StatusOK, started.status, started.raw)
	id, ok := started.body["id"].(string)
	require.True(t, ok)
	assert.Equal(t, id, started.header.Get(api.HeaderTransactionID))

	queried := do(t, srv, "/transaction/"+id+"/query", selectPlan, nil)
	require.Equal(t, http.StatusOK, queried.status, queried.raw)
	assert.JSONEq(t, `{"data":[{"n":1}]}`, queried.raw)

	committed := do(t, srv, "/transaction/"+id+"/commit", "", nil)
	require.Equal(t, http.StatusOK, committed.status, committed.raw)
	assert.JSONEq(t, `{}`, committed.raw)

	again := do(t, srv, "/transaction/"+id+"/commit", "", nil)
	assert.Equal(t, http.StatusConflict, again.status)
	assert.Equal(t, txmanager.Code, again.body["code"])
	assert.Contains(t, again.body["error"], "committed transaction")

	afterCommit := do(t, srv, "/transaction/"+id+"/query", selectPlan, nil)
	assert.Equal(t, http.StatusConflict, afterCommit.status)
}

func TestTransaction_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{
			name:       "given unknown transaction, then returns 409",
			path:       "/transaction/does-not-exist/rollback",
			wantStatus: http.StatusConflict,
		},
		{
			name:       "given invalid isolation level, then returns 409",
			path:       "/transaction/start",
			body:       `{"isolationLevel":"Sometimes"}`,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "given negative timeout, then returns 400",
			path:       "/transaction/start",
			body:       `{"timeout":-1}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newServer(t, &memoryAdapter{}, interpreter.NewBasic())
			resp := do(t, srv, tt.path, tt.body, nil)
			assert.Equal(t, tt.wantStatus, resp.status, resp.raw)
		})
	}
}

func TestCaptureTelemetry(t *testing.T) {
	t.Parallel()

	srv := newServer(t, &memoryAdapter{}, interpreter.NewBasic())
	resp := do(t, srv, "/query", selectPlan, map[string]string{api.HeaderCaptureTelemetry: "tracing, query"})
	require.Equal(t, http.StatusOK, resp.status, resp.raw)

	ext, ok := resp.body["extensions"].(map[string]any)
	require.True(t, ok, resp.raw)

	spans, ok := ext["spans"].([]any)
	require.True(t, ok)
	require.Len(t, spans, 1)
	span := spans[0].(map[string]any)
	assert.Equal(t, "prisma:engine:query", span["name"])
	assert.Nil(t, span["parentId"], "direct child of the request span must be re-rooted")

	logs, ok := ext["logs"].([]any)
	require.True(t, ok)
	require.Len(t, logs, 1)
	event := logs[0].(map[string]any)
	assert.Equal(t, "query", event["level"])
	assert.Equal(t, "SELECT 1 AS n", event["message"])
	assert.True(t, strings.HasSuffix(event["spanId"].(string), "-"+span["id"].(string)))
}

func TestCaptureTelemetry_OnError(t *testing.T) {
	t.Parallel()

	srv := newServer(t, &memoryAdapter{}, interpreter.NewBasic())
	resp := do(t, srv, "/transaction/nope/commit", "", map[string]string{api.HeaderCaptureTelemetry: "tracing"})

	require.Equal(t, http.StatusConflict, resp.status)
	ext, ok := resp.body["extensions"].(map[string]any)
	require.True(t, ok, resp.raw)
	spans, ok := ext["spans"].([]any)
	require.True(t, ok)
	require.Len(t, spans, 1)
	assert.Equal(t, "prisma:engine:commit_transaction", spans[0].(map[string]any)["name"])
	assert.Equal(t, []any{}, ext["logs"])
}

func TestConnectionInfo(t *testing.T) {
	t.Parallel()

	srv := newServer(t, &memoryAdapter{}, interpreter.NewBasic())
	resp := do(t, srv, "/connection-info", "", nil)

	require.Equal(t, http.StatusOK, resp.status)
	assert.JSONEq(t,
		`{"provider":"postgres","connectionInfo":{"schemaName":"public","maxBindValues":32766,"supportsRelationJoins":true}}`,
		resp.raw)
}

func TestRouter_HealthAndNotFound(t *testing.T) {
	t.Parallel()

	router := api.NewRouter(nil, api.Options{
		Health: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			httpserver.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		}),
	})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{
			name:       "given health route, then serves health handler",
			method:     http.MethodGet,
			path:       "/health",
			wantStatus: http.StatusOK,
		},
		{
			name:       "given unknown path, then returns 404",
			method:     http.MethodGet,
			path:       "/nope",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "given wrong method, then returns 405",
			method:     http.MethodGet,
			path:       "/query",
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestServerSpan_Route(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	a := &memoryAdapter{}
	app := executor.New(a, txmanager.New(a), interpreter.NewBasic(), tracing.NewHandlerFromProvider(tp))
	srv := httptest.NewServer(httpserver.Tracing(httpserver.TracingConfig{TracerProvider: tp})(
		api.NewRouter(app, api.Options{Limits: limits.Default()}),
	))
	t.Cleanup(srv.Close)

	started := do(t, srv, "/transaction/start", `{}`, nil)
	require.Equal(t, http.StatusOK, started.status, started.raw)
	id := started.header.Get(api.HeaderTransactionID)
	require.NotEmpty(t, id)

	serverSpan := func(t *testing.T) *tracetest.SpanStub {
		t.Helper()

		var server *tracetest.SpanStub
		require.Eventually(t, func() bool {
			for _, s := range exporter.GetSpans() {
				if s.SpanKind == trace.SpanKindServer {
					server = &s
					return true
				}
			}
			return false
		}, time.Second, 5*time.Millisecond)
		return server
	}

	start := serverSpan(t)
	assert.Equal(t, "HTTP POST /transaction/start", start.Name)
	assert.Contains(t, start.Attributes, api.AttrTransactionID.String(id))

	tests := []struct {
		name     string
		path     string
		body     string
		wantName string
		wantTxID string
	}{
		{
			name:     "given transaction query, then span is named after the route and tagged",
			path:     "/transaction/" + id + "/query",
			body:     selectPlan,
			wantName: "HTTP POST /transaction/{id}/query",
			wantTxID: id,
		},
		{
			name:     "given shared connection query, then span is untagged",
			path:     "/query",
			body:     selectPlan,
			wantName: "HTTP POST /query",
		},
		{
			name:     "given unknown path, then span keeps the request path",
			path:     "/nope",
			wantName: "HTTP GET /nope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()
			do(t, srv, tt.path, tt.body, nil)

			server := serverSpan(t)
			assert.Equal(t, tt.wantName, server.Name)

			var txID string
			for _, kv := range server.Attributes {
				if kv.Key == api.AttrTransactionID {
					txID = kv.Value.AsString()
				}
			}
			assert.Equal(t, tt.wantTxID, txID)
		})
	}
}

func TestRoutePattern(t *testing.T) {
	t.Parallel()

	var got string
	r := chi.NewRouter()
	r.Post("/transaction/{id}/commit", func(_ http.ResponseWriter, req *http.Request) {
		got = api.RoutePattern(req)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/transaction/abc/commit", nil))
	assert.Equal(t, "/transaction/{id}/commit", got)

	assert.Equal(t, "unmatched", api.RoutePattern(httptest.NewRequest(http.MethodGet, "/", nil)))
}
