// Package interpreter runs JSON query plans.
//
// A plan is a tree of nodes of the form {"type": ..., "args": ...}:
//
//	query    {"sql": "...", "params": [...]}  rows as objects
//	execute  {"sql": "...", "params": [...]}  affected row count
//	seq      [node, ...]                      result of the last node
//	value    any JSON value                   the value, placeholders resolved
//
// A placeholder {"prisma__type":"param","prisma__value":{"name":"x"}} is
// replaced by the request parameter x wherever a value is expected.
package interpreter

import (
	"bytes"
	"context"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kroma-labs/sentinel-executor/adapter"
	"github.com/kroma-labs/sentinel-executor/executor"
	"github.com/kroma-labs/sentinel-executor/logging"
)

// Compile-time interface check.
var _ executor.Interpreter = (*Basic)(nil)

const (
	NodeQuery   = "query"
	NodeExecute = "execute"
	NodeSeq     = "seq"
	NodeValue   = "value"

	placeholderType = "param"
)

// Basic is the default Interpreter.
type Basic struct{}

// NewBasic returns a Basic interpreter.
func NewBasic() *Basic {
	return &Basic{}
}

type node struct {
	Type string          `json:"type"`
	Args json.RawMessage `json:"args"`
}

type statement struct {
	SQL      string   `json:"sql"`
	Params   []any    `json:"params"`
	ArgTypes []string `json:"argTypes,omitempty"`
}

// Run implements executor.Interpreter.
func (b *Basic) Run(
	ctx context.Context,
	q adapter.Queryable,
	plan json.RawMessage,
	params map[string]any,
) (any, error) {
	if len(bytes.TrimSpace(plan)) == 0 {
		return nil, executor.NewInvalidPlanError("query plan is empty")
	}
	return b.eval(ctx, q, plan, params)
}

func (b *Basic) eval(
	ctx context.Context,
	q adapter.Queryable,
	raw json.RawMessage,
	params map[string]any,
) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var n node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, executor.NewInvalidPlanError("malformed plan node: %s", err)
	}

	switch n.Type {
	case NodeValue:
		var v any
		if err := decode(n.Args, &v); err != nil {
			return nil, err
		}
		return resolve(v, params)

	case NodeSeq:
		var children []json.RawMessage
		if err := decode(n.Args, &children); err != nil {
			return nil, err
		}
		var last any
		for _, child := range children {
			v, err := b.eval(ctx, q, child, params)
			if err != nil {
				return nil, err
			}
			last = v
		}
		return last, nil

	case NodeQuery, NodeExecute:
		query, err := buildQuery(n.Args, params)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		if n.Type == NodeExecute {
			affected, err := q.ExecuteRaw(ctx, query)
			if err != nil {
				logQuery(ctx, query, time.Since(start))
				return nil, err
			}
			logQuery(ctx, query, time.Since(start), logging.Int64("rows_affected", affected))
			return affected, nil
		}
		rs, err := q.QueryRaw(ctx, query)
		logQuery(ctx, query, time.Since(start))
		if err != nil {
			return nil, err
		}
		return rowsAsObjects(rs), nil

	default:
		return nil, executor.NewInvalidPlanError("unknown plan node type %q", n.Type)
	}
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return executor.NewInvalidPlanError("malformed plan arguments: %s", err)
	}
	return nil
}

func buildQuery(raw json.RawMessage, params map[string]any) (adapter.Query, error) {
	var st statement
	if err := decode(raw, &st); err != nil {
		return adapter.Query{}, err
	}
	if st.SQL == "" {
		return adapter.Query{}, executor.NewInvalidPlanError("query node has no sql")
	}

	args := make([]any, 0, len(st.Params))
	for _, p := range st.Params {
		v, err := resolve(p, params)
		if err != nil {
			return adapter.Query{}, err
		}
		args = append(args, v)
	}
	return adapter.Query{SQL: st.SQL, Args: args, ArgTypes: st.ArgTypes}, nil
}

// resolve replaces placeholders in v with values from params.
func resolve(v any, params map[string]any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if name, ok := placeholderName(val); ok {
			p, found := params[name]
			if !found {
				return nil, executor.NewInvalidPlanError("missing value for parameter %q", name)
			}
			return p, nil
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := resolve(item, params)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := resolve(item, params)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func placeholderName(m map[string]any) (string, bool) {
	if m["prisma__type"] != placeholderType {
		return "", false
	}
	value, ok := m["prisma__value"].(map[string]any)
	if !ok {
		return "", false
	}
	name, ok := value["name"].(string)
	return name, ok && name != ""
}

func rowsAsObjects(rs *adapter.ResultSet) []map[string]any {
	out := make([]map[string]any, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		obj := make(map[string]any, len(rs.ColumnNames))
		for i, col := range rs.ColumnNames {
			if i < len(row) {
				obj[col] = row[i]
			}
		}
		out = append(out, obj)
	}
	return out
}

func logQuery(ctx context.Context, q adapter.Query, d time.Duration, extra ...logging.Attr) {
	params, err := json.Marshal(q.Args)
	if err != nil {
		params = []byte("[]")
	}
	attrs := append([]logging.Attr{
		logging.String("params", string(params)),
		logging.Duration("duration_ms", d),
	}, extra...)
	logging.Query(ctx, q.SQL, attrs...)
}
