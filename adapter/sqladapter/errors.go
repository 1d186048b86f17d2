package sqladapter

import (
	"errors"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/kroma-labs/sentinel-executor/adapter"
)

// convertError turns errors reported by the database server into
// *adapter.DriverError. Anything else, including connection failures, is
// returned unchanged.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		meta := map[string]any{
			"code":     string(pqErr.Code),
			"severity": pqErr.Severity,
		}
		for k, v := range map[string]string{
			"detail":     pqErr.Detail,
			"constraint": pqErr.Constraint,
			"table":      pqErr.Table,
			"column":     pqErr.Column,
		} {
			if v != "" {
				meta[k] = v
			}
		}
		return &adapter.DriverError{
			Kind:    string(adapter.ProviderPostgres),
			Code:    string(pqErr.Code),
			Message: pqErr.Message,
			Meta:    meta,
			Cause:   err,
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		code := strconv.Itoa(int(myErr.Number))
		return &adapter.DriverError{
			Kind:    string(adapter.ProviderMySQL),
			Code:    code,
			Message: myErr.Message,
			Meta: map[string]any{
				"code":     code,
				"sqlState": string(myErr.SQLState[:]),
			},
			Cause: err,
		}
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		code := strconv.Itoa(int(msErr.Number))
		return &adapter.DriverError{
			Kind:    string(adapter.ProviderSQLServer),
			Code:    code,
			Message: msErr.Message,
			Meta: map[string]any{
				"code":  code,
				"state": msErr.State,
				"class": msErr.Class,
			},
			Cause: err,
		}
	}

	return err
}
