package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown       ErrorCode = "UNKNOWN"
	ErrInternal      ErrorCode = "INTERNAL"
	ErrInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Configuration errors
	ErrConfigLoad      ErrorCode = "CONFIG_LOAD"
	ErrConfigParse     ErrorCode = "CONFIG_PARSE"
	ErrConfigInvalid   ErrorCode = "CONFIG_INVALID"
	ErrProjectNotFound ErrorCode = "PROJECT_NOT_FOUND"

	// Bundle errors
	ErrBundleName     ErrorCode = "BUNDLE_NAME"
	ErrBundleNotFound ErrorCode = "BUNDLE_NOT_FOUND"
	ErrBundleExists   ErrorCode = "BUNDLE_EXISTS"

	// External tool errors
	ErrPatchApply  ErrorCode = "PATCH_APPLY"
	ErrPatchRevert ErrorCode = "PATCH_REVERT"
	ErrGitCommand  ErrorCode = "GIT_COMMAND"

	// FileSystem errors
	ErrFileAccess ErrorCode = "FILE_ACCESS"
	ErrFileCreate ErrorCode = "FILE_CREATE"
	ErrFileWrite  ErrorCode = "FILE_WRITE"
	ErrDirCreate  ErrorCode = "DIR_CREATE"

	// Pipeline errors
	ErrStageFailed ErrorCode = "STAGE_FAILED"
	ErrHookAbort   ErrorCode = "HOOK_ABORT"
)

// PobError represents a structured error with code and details
type PobError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *PobError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *PobError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *PobError) Is(target error) bool {
	var targetErr *PobError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new PobError with the given code and message
func New(code ErrorCode, message string) *PobError {
	return &PobError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new PobError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *PobError {
	return &PobError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a PobError
func Wrap(err error, code ErrorCode, message string) *PobError {
	if err == nil {
		return nil
	}
	return &PobError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *PobError {
	if err == nil {
		return nil
	}
	return &PobError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *PobError) WithDetail(key string, value interface{}) *PobError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var pobErr *PobError
	if errors.As(err, &pobErr) {
		return pobErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a PobError
func GetErrorCode(err error) ErrorCode {
	var pobErr *PobError
	if errors.As(err, &pobErr) {
		return pobErr.Code
	}
	return ErrUnknown
}
