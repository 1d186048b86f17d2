package api

import (
	"errors"
	"net/http"

	"github.com/kroma-labs/sentinel-executor/adapter"
	"github.com/kroma-labs/sentinel-executor/executor"
	"github.com/kroma-labs/sentinel-executor/httpserver"
	"github.com/kroma-labs/sentinel-executor/limits"
	"github.com/kroma-labs/sentinel-executor/txmanager"
)

// BadRequestError reports malformed client input: an unparsable body,
// header or path parameter.
type BadRequestError struct {
	Message string
	Cause   error
}

func (e *BadRequestError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *BadRequestError) Unwrap() error {
	return e.Cause
}

func badRequest(msg string, cause error) *BadRequestError {
	return &BadRequestError{Message: msg, Cause: cause}
}

// errorResponse maps err to a status code and body. Credentials are
// redacted from every message first.
func errorResponse(err error) (int, httpserver.ErrorBody) {
	err = adapter.SanitizeError(err)

	var (
		badReq   *BadRequestError
		limitErr *limits.ResourceLimitError
		txErr    *txmanager.Error
		userErr  *executor.UserFacingError
	)
	switch {
	case errors.As(err, &badReq):
		return http.StatusBadRequest, httpserver.ErrorBody{Error: badReq.Error()}
	case errors.As(err, &limitErr):
		return http.StatusUnprocessableEntity, httpserver.ErrorBody{Error: limitErr.Error()}
	case errors.As(err, &txErr):
		return http.StatusConflict, httpserver.ErrorBody{
			Error: txErr.Error(),
			Code:  txErr.Code,
			Meta:  txErr.Meta,
		}
	case errors.As(err, &userErr):
		return http.StatusBadRequest, httpserver.ErrorBody{
			Error: userErr.Error(),
			Code:  userErr.Code,
			Meta:  userErr.Meta,
		}
	default:
		return http.StatusInternalServerError, httpserver.ErrorBody{Error: err.Error()}
	}
}
