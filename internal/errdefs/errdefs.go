// Package errdefs defines the structured error envelope shared by every
// public operation. An operation returns either its value or an *Error
// carrying a stable code, a human message, optional context, and a
// recoverability hint.
package errdefs

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error identifier.
type Code string

const (
	// Input errors. Recoverable by the caller.
	CodeInvalidParams   Code = "TOOL_INVALID_PARAMS"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Not-found errors.
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	CodeToolNotFound    Code = "TOOL_NOT_FOUND"
	CodeNotFound        Code = "NOT_FOUND"

	// Resource errors raised by filesystem tools.
	CodeFileNotFound      Code = "FILE_NOT_FOUND"
	CodeFileAccessDenied  Code = "FILE_ACCESS_DENIED"
	CodeFileTooLarge      Code = "FILE_TOO_LARGE"
	CodeDirectoryNotFound Code = "DIRECTORY_NOT_FOUND"

	// External-system errors from LLM providers.
	CodeLLMAPIError        Code = "LLM_API_ERROR"
	CodeLLMContextTooLong  Code = "LLM_CONTEXT_TOO_LONG"
	CodeLLMModelNotFound   Code = "LLM_MODEL_NOT_FOUND"
	CodeProviderAuthFailed Code = "PROVIDER_AUTH_FAILED"
	CodeProviderRateLimit  Code = "PROVIDER_RATE_LIMITED"
	CodeNetworkError       Code = "NETWORK_ERROR"

	// Tool-lifecycle errors.
	CodeToolTimeout          Code = "TOOL_TIMEOUT"
	CodeToolExecutionFailed  Code = "TOOL_EXECUTION_FAILED"
	CodeToolPermissionDenied Code = "TOOL_PERMISSION_DENIED"
	CodeToolCancelled        Code = "TOOL_CANCELLED"

	// Storage errors.
	CodeDatabaseConnection  Code = "DATABASE_CONNECTION"
	CodeDatabaseQuery       Code = "DATABASE_QUERY"
	CodeDatabaseTransaction Code = "DATABASE_TRANSACTION"
	CodeDatabaseMigration   Code = "DATABASE_MIGRATION"
	CodeDatabaseCorruption  Code = "DATABASE_CORRUPTION"

	// Internal.
	CodeTurnAborted   Code = "TURN_ABORTED"
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Error is the structured error envelope.
type Error struct {
	Code        Code
	Message     string
	Context     map[string]any
	Cause       error
	Recoverable bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair and returns the error for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New constructs an error with the given code and message. Recoverability
// defaults per code family.
func New(code Code, message string) *Error {
	return &Error{
		Code:        code,
		Message:     message,
		Recoverable: recoverableByDefault(code),
	}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap constructs an error with an underlying cause. If cause is already
// an *Error with the same code it is returned unchanged.
func Wrap(code Code, message string, cause error) *Error {
	var inner *Error
	if errors.As(cause, &inner) && inner.Code == code {
		return inner
	}
	e := New(code, message)
	e.Cause = cause
	return e
}

// CodeOf extracts the code from err, unwrapping as needed. Returns
// CodeUnknownError for nil-safe plain errors and "" for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknownError
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// As unwraps err into an *Error if possible.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func recoverableByDefault(code Code) bool {
	switch code {
	case CodeInvalidParams, CodeValidationError,
		CodeProviderRateLimit, CodeNetworkError,
		CodeToolTimeout, CodeToolExecutionFailed, CodeToolCancelled,
		CodeLLMContextTooLong:
		return true
	}
	return false
}
