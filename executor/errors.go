package executor

import (
	"errors"
	"fmt"

	"github.com/kroma-labs/sentinel-executor/adapter"
)

const (
	// CodeRawQueryFailed is reported for errors raised by the database.
	CodeRawQueryFailed = "P2010"

	// CodeInvalidPlan is reported for plans the interpreter cannot run.
	CodeInvalidPlan = "P2009"
)

// UserFacingError is an error the client is expected to act on, such as a
// constraint violation or a malformed plan. Code and Meta are passed through
// to the response.
type UserFacingError struct {
	Code    string
	Message string
	Meta    map[string]any
	Cause   error
}

func (e *UserFacingError) Error() string {
	return e.Message
}

func (e *UserFacingError) Unwrap() error {
	return e.Cause
}

// NewInvalidPlanError reports a plan that cannot be interpreted.
func NewInvalidPlanError(format string, args ...any) *UserFacingError {
	return &UserFacingError{
		Code:    CodeInvalidPlan,
		Message: fmt.Sprintf(format, args...),
	}
}

// userFacing converts database errors into UserFacingError. Other errors are
// returned as is.
func userFacing(err error) error {
	if err == nil {
		return nil
	}
	var ufe *UserFacingError
	if errors.As(err, &ufe) {
		return err
	}
	var de *adapter.DriverError
	if !errors.As(err, &de) {
		return err
	}

	meta := map[string]any{
		"code":    de.Code,
		"message": de.Message,
	}
	if de.Kind != "" {
		meta["kind"] = de.Kind
	}
	for k, v := range de.Meta {
		meta[k] = v
	}
	return &UserFacingError{
		Code:    CodeRawQueryFailed,
		Message: fmt.Sprintf("Raw query failed. Code: `%s`. Message: `%s`", de.Code, de.Message),
		Meta:    meta,
		Cause:   err,
	}
}
