package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches domain errors by code and message so wrapped sentinels compare equal.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeBackend          = "BACKEND_ERROR"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Usage errors are returned before any backend call is attempted.
var (
	ErrNoFieldsSelected = NewDomainError(ErrCodeValidation, "select at least one field other than _source")
	ErrInvalidSize      = NewDomainError(ErrCodeValidation, "export size must be a positive integer, or \"*\" with a positive hit count")
	ErrInvalidTimeRange = NewDomainError(ErrCodeValidation, "time range lower bound is after upper bound")
	ErrInvalidDelimiter = NewDomainError(ErrCodeValidation, "delimiter must not be empty or contain a line break")
)

// Backend and lifecycle errors
var (
	ErrConfigNotFound   = NewDomainError(ErrCodeNotFound, "no default index pattern configured")
	ErrBackendRejected  = NewDomainError(ErrCodeBackend, "search backend rejected the request")
	ErrExportTimedOut   = NewDomainError(ErrCodeTimeout, "export timed out")
	ErrExportInProgress = NewDomainError(ErrCodeConflict, "an export is already in progress")
	ErrInvalidAPIToken  = NewDomainError(ErrCodeUnauthorized, "invalid api token")
	ErrStorageFailed    = NewDomainError(ErrCodeInternalError, "storage operation failed")
)

// IsUsageError reports whether err is a caller mistake rather than a backend fault.
func IsUsageError(err error) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == ErrCodeValidation
}
