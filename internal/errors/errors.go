// Package errors provides structured error types for the Expert Sure system.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	// ErrCategoryValidation covers bad uploads and malformed schemas,
	// rejected before a project exists.
	ErrCategoryValidation ErrorCategory = "VALIDATION"

	// ErrCategoryDataQuality covers non-fatal evaluation degradations,
	// e.g. a metric field missing from the dataset.
	ErrCategoryDataQuality ErrorCategory = "DATA_QUALITY"

	// ErrCategorySpecification covers unrecoverable row-specification
	// errors that abort a regeneration request.
	ErrCategorySpecification ErrorCategory = "SPECIFICATION"

	// ErrCategoryStore covers project/slide store failures.
	ErrCategoryStore ErrorCategory = "STORE"

	// ErrCategoryStorage covers artifact object-storage failures.
	ErrCategoryStorage ErrorCategory = "STORAGE"

	// ErrCategoryChannel covers message-channel delivery failures.
	ErrCategoryChannel ErrorCategory = "CHANNEL"

	// ErrCategoryInternal covers unexpected internal errors.
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidDataset  = "INVALID_DATASET"
	CodeInvalidSchema   = "INVALID_SCHEMA"
	CodeInvalidTemplate = "INVALID_TEMPLATE"
	CodeInvalidRowSpec  = "INVALID_ROW_SPEC"

	// Data quality codes
	CodeMissingMetricField = "MISSING_METRIC_FIELD"

	// Specification codes
	CodeUnknownComponentRow      = "UNKNOWN_COMPONENT_ROW"
	CodeCyclicAggregateReference = "CYCLIC_AGGREGATE_REFERENCE"
	CodeConflictingRowMode       = "CONFLICTING_ROW_MODE"
	CodeDuplicateRowLabel        = "DUPLICATE_ROW_LABEL"

	// Store codes
	CodeProjectNotFound = "PROJECT_NOT_FOUND"
	CodeSlideNotFound   = "SLIDE_NOT_FOUND"
	CodeWriteConflict   = "WRITE_CONFLICT"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeDeleteFailed   = "DELETE_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Channel codes
	CodePublishFailed = "PUBLISH_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// ReportError is the structured error type used throughout the system.
type ReportError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *ReportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ReportError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *ReportError) Is(target error) bool {
	var t *ReportError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new ReportError.
func New(category ErrorCategory, code, message string) *ReportError {
	return &ReportError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new ReportError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *ReportError {
	return &ReportError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *ReportError) WithDetails(details map[string]interface{}) *ReportError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// IsSpecification reports whether the error chain contains a
// specification error. Specification errors abort a regeneration request
// but leave the previous artifact intact.
func IsSpecification(err error) bool {
	return GetCategory(err) == ErrCategorySpecification
}

// IsValidation reports whether the error chain contains a validation error.
func IsValidation(err error) bool {
	return GetCategory(err) == ErrCategoryValidation
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a ReportError.
func GetCategory(err error) ErrorCategory {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a ReportError.
func GetCode(err error) string {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable.
// Only transient infrastructure failures qualify; validation and
// specification errors never do.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStore && code == CodeWriteConflict:
		return true
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryChannel && code == CodePublishFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

// NewValidationError creates a validation error (user-visible 4xx-equivalent).
func NewValidationError(code, message string) *ReportError {
	return New(ErrCategoryValidation, code, message)
}

// NewSpecificationError creates a specification error.
func NewSpecificationError(code, message string) *ReportError {
	return New(ErrCategorySpecification, code, message)
}

// NewStoreError creates a store error wrapping a cause.
func NewStoreError(code, message string, cause error) *ReportError {
	return Wrap(ErrCategoryStore, code, message, cause)
}

// NewInternalError creates an internal error wrapping a cause.
func NewInternalError(message string, cause error) *ReportError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
