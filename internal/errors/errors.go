package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeIdentityRequired   = "IDENTITY_REQUIRED"
	ErrCodeRemoteUnavailable  = "REMOTE_UNAVAILABLE"
	ErrCodeRemoteRejected     = "REMOTE_REJECTED"
	ErrCodeLocalCorruptDecode = "LOCAL_CORRUPT_DECODE"
	ErrCodeLocalPersist       = "LOCAL_PERSIST_FAILED"
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	Code    string // Error code (e.g., "NOT_FOUND", "REMOTE_UNAVAILABLE")
	Message string // Human-readable error message
	Status  int    // HTTP status code
	Err     error  // Wrapped underlying error (optional)
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error wrapping support
func (e *AppError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries an AppError with the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// As wraps the standard library helper so callers need only this package.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is wraps the standard library helper so callers need only this package.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// NewNotFoundError creates a new NOT_FOUND error
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %v", resource, id),
		Status:  404,
	}
}

// NewValidationError creates a new VALIDATION_ERROR
func NewValidationError(field string, reason string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf("validation failed for %s: %s", field, reason),
		Status:  400,
	}
}

// NewInternalError creates a new INTERNAL_ERROR
func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: "internal server error",
		Status:  500,
		Err:     err,
	}
}

// NewBadRequestError creates a new BAD_REQUEST error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
		Status:  400,
	}
}

// NewIdentityRequiredError is returned when an operation needs a permanent account.
func NewIdentityRequiredError(operation string) *AppError {
	return &AppError{
		Code:    ErrCodeIdentityRequired,
		Message: fmt.Sprintf("%s requires a signed-in account", operation),
		Status:  409,
	}
}

// NewRemoteUnavailableError wraps a transient failure talking to the remote mirror.
func NewRemoteUnavailableError(operation string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeRemoteUnavailable,
		Message: fmt.Sprintf("remote mirror unavailable during %s", operation),
		Status:  503,
		Err:     err,
	}
}

// NewRemoteRejectedError marks a permanent remote failure that must not be retried.
func NewRemoteRejectedError(reason string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeRemoteRejected,
		Message: reason,
		Status:  422,
		Err:     err,
	}
}

// NewLocalCorruptDecodeError reports a persisted blob that no longer decodes.
func NewLocalCorruptDecodeError(key string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeLocalCorruptDecode,
		Message: fmt.Sprintf("corrupt local blob %s", key),
		Status:  500,
		Err:     err,
	}
}

// NewLocalPersistError reports a failed durable write; in-memory state is kept.
func NewLocalPersistError(key string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeLocalPersist,
		Message: fmt.Sprintf("failed to persist %s", key),
		Status:  500,
		Err:     err,
	}
}
