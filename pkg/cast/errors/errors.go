package errors

import (
	"errors"
	"net/http"

	"github.com/castforge/castforge/pkg/sandbox"
)

// Category tells an automated client whether retrying can help.
type Category string

const (
	CategoryNetworkRetryable Category = "NETWORK_RETRYABLE"
	CategoryPermConfig       Category = "PERM_CONFIG"
	CategoryTransientRuntime Category = "TRANSIENT_RUNTIME"
	CategoryPermRuntime      Category = "PERM_RUNTIME"
)

const (
	CodeUnitNotFound  = "UNIT_NOT_FOUND"
	CodeExecFailed    = "EXEC_FAILED"
	CodeExecTimeout   = "EXEC_TIMEOUT"
	CodeInvalidInput  = "INVALID_INPUT"
	CodeDatabaseError = "DB_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
)

// CastError is the typed failure of one cast attempt. Message is safe to
// return to callers; the wrapped cause is not and stays in logs.
type CastError struct {
	Code     string
	Category Category
	Status   int
	Message  string
	cause    error
}

func (e *CastError) Error() string {
	return e.Message
}

func (e *CastError) Unwrap() error {
	return e.cause
}

func UnitNotFound(unit string) *CastError {
	return &CastError{
		Code:     CodeUnitNotFound,
		Category: CategoryPermConfig,
		Status:   http.StatusNotFound,
		Message:  "unit not found: " + unit,
	}
}

func ExecutionFailed(reason string) *CastError {
	return &CastError{
		Code:     CodeExecFailed,
		Category: CategoryPermRuntime,
		Status:   http.StatusInternalServerError,
		Message:  "execution failed: " + reason,
	}
}

func Timeout() *CastError {
	return &CastError{
		Code:     CodeExecTimeout,
		Category: CategoryTransientRuntime,
		Status:   http.StatusRequestTimeout,
		Message:  "execution timed out",
	}
}

func InvalidInput(reason string) *CastError {
	return &CastError{
		Code:     CodeInvalidInput,
		Category: CategoryPermConfig,
		Status:   http.StatusUnprocessableEntity,
		Message:  "invalid input: " + reason,
	}
}

func Database(err error) *CastError {
	return &CastError{
		Code:     CodeDatabaseError,
		Category: CategoryNetworkRetryable,
		Status:   http.StatusServiceUnavailable,
		Message:  "persistence unavailable",
		cause:    err,
	}
}

func Internal(err error) *CastError {
	return &CastError{
		Code:     CodeInternalError,
		Category: CategoryNetworkRetryable,
		Status:   http.StatusInternalServerError,
		Message:  "internal error",
		cause:    err,
	}
}

// FromSandbox classifies a sandbox failure without leaking host internals.
func FromSandbox(err error) *CastError {
	var notFound *sandbox.NotFoundError
	if errors.As(err, &notFound) {
		return UnitNotFound(notFound.Unit)
	}
	var invalid *sandbox.InvalidInputError
	if errors.As(err, &invalid) {
		return InvalidInput(invalid.Reason)
	}
	var trap *sandbox.TrapError
	if errors.As(err, &trap) {
		return ExecutionFailed(trap.Reason)
	}
	var timeout *sandbox.TimeoutError
	if errors.As(err, &timeout) {
		return Timeout()
	}
	return Internal(err)
}
