// Package adapter defines the driver capabilities the executor runs query
// plans against, selects a driver family from a connection URL and keeps
// connection credentials out of every error an adapter returns.
package adapter

import (
	"context"
)

// Provider names a database family.
type Provider string

const (
	ProviderPostgres  Provider = "postgres"
	ProviderMySQL     Provider = "mysql"
	ProviderSQLServer Provider = "sqlserver"
)

// Query is a raw statement with positional arguments. ArgTypes, when set,
// carries one scalar type name per argument.
type Query struct {
	SQL      string   `json:"sql"`
	Args     []any    `json:"args"`
	ArgTypes []string `json:"argTypes,omitempty"`
}

// ResultSet is the result of a raw query.
type ResultSet struct {
	ColumnNames  []string `json:"columnNames"`
	ColumnTypes  []string `json:"columnTypes"`
	Rows         [][]any  `json:"rows"`
	LastInsertID *string  `json:"lastInsertId,omitempty"`
}

// IsolationLevel of a transaction. The zero value uses the database default.
type IsolationLevel string

const (
	IsolationDefault         IsolationLevel = ""
	IsolationReadUncommitted IsolationLevel = "ReadUncommitted"
	IsolationReadCommitted   IsolationLevel = "ReadCommitted"
	IsolationRepeatableRead  IsolationLevel = "RepeatableRead"
	IsolationSnapshot        IsolationLevel = "Snapshot"
	IsolationSerializable    IsolationLevel = "Serializable"
)

// Queryable is what a query plan runs against: either the shared connection
// or an open transaction.
type Queryable interface {
	Provider() Provider
	QueryRaw(ctx context.Context, q Query) (*ResultSet, error)
	ExecuteRaw(ctx context.Context, q Query) (int64, error)
}

// Adapter is a live connection to one database.
type Adapter interface {
	Queryable
	ExecuteScript(ctx context.Context, script string) error
	StartTransaction(ctx context.Context, isolation IsolationLevel) (Transaction, error)
	Dispose() error
}

// Transaction is an open interactive transaction.
type Transaction interface {
	Queryable
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory connects adapters for a single database URL.
type Factory interface {
	Provider() Provider
	Connect(ctx context.Context) (Adapter, error)
}

// ConnectionInfo is adapter-reported metadata about the connection.
type ConnectionInfo struct {
	SchemaName            string `json:"schemaName,omitempty"`
	MaxBindValues         int    `json:"maxBindValues,omitempty"`
	SupportsRelationJoins bool   `json:"supportsRelationJoins"`
}

// ConnectionInfoProvider is implemented by adapters that report
// ConnectionInfo.
type ConnectionInfoProvider interface {
	ConnectionInfo(ctx context.Context) ConnectionInfo
}

// Pinger is implemented by adapters that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionInfoOf returns a's connection info, or the zero ConnectionInfo
// when a does not report any.
func ConnectionInfoOf(ctx context.Context, a Adapter) ConnectionInfo {
	if p, ok := a.(ConnectionInfoProvider); ok {
		return p.ConnectionInfo(ctx)
	}
	return ConnectionInfo{SupportsRelationJoins: false}
}

// DriverError is an error reported by the database itself, such as a
// constraint violation. It is shown to clients.
type DriverError struct {
	// Kind is the driver family or error class that produced the error.
	Kind string

	// Code is the database-native error code.
	Code string

	Message string
	Meta    map[string]any
	Cause   error
}

func (e *DriverError) Error() string {
	return e.Message
}

func (e *DriverError) Unwrap() error {
	return e.Cause
}
