package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeDirectory    = "DOWNLOAD_DIR_UNAVAILABLE"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeExtension    = "EXTENSION_UNAVAILABLE"
	ErrCodeReadFailure  = "READ_FAILURE"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// Reason codes attached to unresolved mapping entries.
const (
	ReasonTimeout     = "timeout"
	ReasonNoCandidate = "no-candidate-file"
	ReasonReadFailure = "read-failure"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SnapshotError is the internal error type carrying an error code.
type SnapshotError struct {
	Code    string
	Message string
	Err     error
}

func (e *SnapshotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

// NewSnapshotError creates a new SnapshotError.
func NewSnapshotError(code, message string, err error) *SnapshotError {
	return &SnapshotError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *SnapshotError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the first SnapshotError in err's chain,
// or ErrCodeInternal.
func CodeOf(err error) string {
	var se *SnapshotError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}
