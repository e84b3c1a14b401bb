package errors

import (
	"errors"
	"fmt"
)

// RetrievalError is the structured error type for dtrag.
// It provides rich context for error handling, logging, and degradation
// reporting.
type RetrievalError struct {
	// Code is the unique error code (e.g., "ERR_201_INVALID_QUERY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Validation, Retrieval, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RetrievalError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with RetrievalError.
func (e *RetrievalError) Is(target error) bool {
	if t, ok := target.(*RetrievalError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *RetrievalError) WithDetail(key, value string) *RetrievalError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new RetrievalError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RetrievalError {
	return &RetrievalError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RetrievalError from an existing error.
// The error's message becomes the RetrievalError message.
func Wrap(code string, err error) *RetrievalError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// InvalidQuery creates a query validation error.
func InvalidQuery(message string) *RetrievalError {
	return New(ErrCodeInvalidQuery, message, nil)
}

// InvalidFilter creates a filter validation error.
func InvalidFilter(message string) *RetrievalError {
	return New(ErrCodeInvalidFilter, message, nil)
}

// TaxonomyCorrupt creates a taxonomy integrity error.
func TaxonomyCorrupt(message string) *RetrievalError {
	return New(ErrCodeTaxonomyCorrupt, message, nil)
}

// AllRetrievalFailed creates the hard error for the case where every
// retrieval arm failed and no candidates exist to return.
func AllRetrievalFailed(cause error) *RetrievalError {
	return New(ErrCodeAllRetrievalFailed, "all retrieval stages failed", cause)
}

// Cancelled wraps a context cancellation or deadline error.
func Cancelled(cause error) *RetrievalError {
	return New(ErrCodeCancelled, "request cancelled", cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a RetrievalError with Retryable flag set.
func IsRetryable(err error) bool {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Severity == SeverityFatal
	}
	return false
}

// IsDegradation reports whether the error is a soft failure that should be
// recorded in metrics rather than returned to the caller.
func IsDegradation(err error) bool {
	var re *RetrievalError
	if errors.As(err, &re) {
		return isDegradationCode(re.Code)
	}
	return false
}

// GetCode extracts the error code from a RetrievalError.
// Returns empty string if not a RetrievalError.
func GetCode(err error) string {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a RetrievalError.
// Returns empty string if not a RetrievalError.
func GetCategory(err error) Category {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Category
	}
	return ""
}
