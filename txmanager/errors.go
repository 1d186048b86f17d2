package txmanager

import (
	"fmt"
	"time"
)

// Code is the client-facing error code of every transaction API error.
const Code = "P2028"

// Kind classifies an Error.
type Kind string

const (
	KindNotFound              Kind = "TransactionNotFound"
	KindClosed                Kind = "TransactionClosed"
	KindExecutionTimeout      Kind = "TransactionExecutionTimeout"
	KindStartTimeout          Kind = "TransactionStartTimeout"
	KindInvalidIsolationLevel Kind = "InvalidTransactionIsolationLevel"
	KindInUse                 Kind = "TransactionInUse"
	KindDriver                Kind = "TransactionDriverError"
)

// Error is returned for any invalid or conflicting transaction operation.
type Error struct {
	Code    string
	Kind    Kind
	Message string
	Meta    map[string]any
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{
		Code:    Code,
		Kind:    kind,
		Message: "Transaction API error: " + fmt.Sprintf(format, args...),
	}
}

// NotFoundError reports an id that was never issued or has been forgotten.
func NotFoundError(id string) *Error {
	err := newError(KindNotFound,
		"Transaction not found. Transaction ID is invalid, refers to an old closed transaction "+
			"that is no longer tracked, or was obtained before disconnecting.")
	err.Meta = map[string]any{"id": id}
	return err
}

// ClosedError reports an operation on a transaction that already ended.
func ClosedError(id, operation string, st State) *Error {
	err := newError(KindClosed,
		"Transaction already closed: A %s cannot be executed on a %s transaction.", operation, st)
	err.Meta = map[string]any{"id": id}
	return err
}

// ExecutionTimeoutError reports an operation on a transaction that expired.
func ExecutionTimeoutError(id, operation string, timeout, elapsed time.Duration) *Error {
	err := newError(KindExecutionTimeout,
		"Transaction already closed: A %s cannot be executed on an expired transaction. "+
			"The timeout for this transaction was %d ms, however %d ms passed since the start of the transaction.",
		operation, timeout.Milliseconds(), elapsed.Milliseconds())
	err.Meta = map[string]any{"id": id}
	return err
}

// StartTimeoutError reports that no transaction could be opened within
// maxWait.
func StartTimeoutError(maxWait time.Duration) *Error {
	return newError(KindStartTimeout,
		"Unable to start a transaction in the given time (%d ms).", maxWait.Milliseconds())
}

// InvalidIsolationLevelError reports an isolation level name that is not
// recognized.
func InvalidIsolationLevelError(level string) *Error {
	return newError(KindInvalidIsolationLevel, "Invalid isolation level: %s", level)
}

// InUseError reports a commit or rollback racing another operation on the
// same transaction.
func InUseError(id, operation string) *Error {
	err := newError(KindInUse,
		"A %s cannot be executed while another operation is running on the transaction.", operation)
	err.Meta = map[string]any{"id": id}
	return err
}

// driverError wraps an error returned while finishing a transaction.
func driverError(id, operation string, cause error) *Error {
	err := newError(KindDriver, "Error in %s: %s", operation, cause)
	err.Meta = map[string]any{"id": id}
	err.Cause = cause
	return err
}
