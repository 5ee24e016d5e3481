package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for each error type
type ErrorCode string

const (
	// General errors
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeBadRequest ErrorCode = "BAD_REQUEST"
	ErrCodeConflict   ErrorCode = "CONFLICT"

	// Upload / file processing errors
	ErrCodeInvalidFile       ErrorCode = "INVALID_FILE"
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeFileParseError    ErrorCode = "FILE_PARSE_ERROR"
	ErrCodeMissingSheet      ErrorCode = "MISSING_SHEET"
	ErrCodeMissingColumn     ErrorCode = "MISSING_COLUMN"

	// Experiment identity errors
	ErrCodeExperimentNotFound    ErrorCode = "EXPERIMENT_NOT_FOUND"
	ErrCodeDuplicateExperimentID ErrorCode = "DUPLICATE_EXPERIMENT_ID"
	ErrCodeRenameConflict        ErrorCode = "RENAME_CONFLICT"
	ErrCodeInvalidExperimentID   ErrorCode = "INVALID_EXPERIMENT_ID"

	// Additive validation errors
	ErrCodeInvalidAmount ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidUnit   ErrorCode = "INVALID_UNIT"

	// Database errors
	ErrCodeDatabaseError   ErrorCode = "DATABASE_ERROR"
	ErrCodeRecordNotFound  ErrorCode = "RECORD_NOT_FOUND"
	ErrCodeDuplicateRecord ErrorCode = "DUPLICATE_RECORD"

	// Queue errors
	ErrCodeQueueError ErrorCode = "QUEUE_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional context to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with AppError context
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func InternalWrap(err error, message string) *AppError {
	return Wrap(err, ErrCodeInternal, message)
}

func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message)
}

func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message)
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

// Upload errors

func InvalidFile(message string) *AppError {
	return New(ErrCodeInvalidFile, message)
}

func UnsupportedFormat(format string) *AppError {
	return New(ErrCodeUnsupportedFormat,
		fmt.Sprintf("unsupported file format: %s", format))
}

func MissingSheet(name string) *AppError {
	return New(ErrCodeMissingSheet,
		fmt.Sprintf("missing required sheet '%s'", name))
}

// Experiment identity errors

func ExperimentNotFound(experimentID string) *AppError {
	return New(ErrCodeExperimentNotFound,
		fmt.Sprintf("experiment '%s' not found", experimentID)).
		WithDetails("experiment_id", experimentID)
}

// DuplicateExperimentID marks a storage-level uniqueness violation on the
// experiment_id column. The bulk upload state machine relies on this code to
// classify chain-rename conflicts without string-matching driver messages.
func DuplicateExperimentID(experimentID string, err error) *AppError {
	return Wrap(err, ErrCodeDuplicateExperimentID,
		fmt.Sprintf("experiment_id '%s' already exists", experimentID)).
		WithDetails("experiment_id", experimentID)
}

// RenameConflict reports that a rename target is already held by a different
// experiment within the same batch.
func RenameConflict(oldID, newID string) *AppError {
	return New(ErrCodeRenameConflict,
		fmt.Sprintf("cannot rename '%s' to '%s': target ID belongs to another experiment", oldID, newID)).
		WithDetails("old_experiment_id", oldID).
		WithDetails("new_experiment_id", newID)
}

// Database errors

func DatabaseError(err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, "database operation failed")
}

func RecordNotFound(resource string) *AppError {
	return New(ErrCodeRecordNotFound,
		fmt.Sprintf("%s not found", resource))
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// HasCode reports whether err carries the given application error code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := GetAppError(err)
	return ok && appErr.Code == code
}
