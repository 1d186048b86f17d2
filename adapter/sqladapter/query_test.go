package sqladapter

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kroma-labs/sentinel-executor/adapter"
)

func TestDefaultQuerySanitizer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "given numeric literal, then replaces it",
			query: "SELECT * FROM users WHERE id = 123",
			want:  "SELECT * FROM users WHERE id = ?",
		},
		{
			name:  "given string literal, then replaces it",
			query: "SELECT * FROM users WHERE name = 'john'",
			want:  "SELECT * FROM users WHERE name = '?'",
		},
		{
			name:  "given hex literal, then replaces it",
			query: "SELECT * FROM blobs WHERE tag = 0xDEADBEEF",
			want:  "SELECT * FROM blobs WHERE tag = ?",
		},
		{
			name:  "given positional parameters, then keeps them",
			query: "SELECT * FROM users WHERE id = $1 AND age > 30",
			want:  "SELECT * FROM users WHERE id = $1 AND age > ?",
		},
		{
			name:  "given sqlserver parameters, then keeps them",
			query: "SELECT * FROM users WHERE id = @p1",
			want:  "SELECT * FROM users WHERE id = @p1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DefaultQuerySanitizer(tt.query))
		})
	}
}

func TestExtractOperation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "given SELECT statement, then returns SELECT", query: "SELECT id FROM users", want: "SELECT"},
		{name: "given lowercase statement, then upper-cases it", query: "insert into users", want: "INSERT"},
		{name: "given leading whitespace, then trims it", query: "\n  UPDATE users", want: "UPDATE"},
		{name: "given single word, then returns it", query: "commit", want: "COMMIT"},
		{name: "given empty string, then returns empty string", query: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, extractOperation(tt.query))
		})
	}
}

func TestConvertError(t *testing.T) {
	t.Parallel()

	plain := errors.New("connection reset")

	tests := []struct {
		name     string
		err      error
		wantKind string
		wantCode string
	}{
		{
			name:     "given mysql error, then converts with error number",
			err:      &mysql.MySQLError{Number: 1062, SQLState: [5]byte{'2', '3', '0', '0', '0'}, Message: "Duplicate entry"},
			wantKind: "mysql",
			wantCode: "1062",
		},
		{
			name:     "given sqlserver error, then converts with error number",
			err:      mssql.Error{Number: 2627, Message: "Violation of UNIQUE KEY constraint"},
			wantKind: "sqlserver",
			wantCode: "2627",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var driverErr *adapter.DriverError
			require.ErrorAs(t, convertError(tt.err), &driverErr)
			assert.Equal(t, tt.wantKind, driverErr.Kind)
			assert.Equal(t, tt.wantCode, driverErr.Code)
		})
	}

	assert.Same(t, plain, convertError(plain))
	assert.NoError(t, convertError(nil))
}
