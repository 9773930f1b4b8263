package errors

import (
	"errors"
	"fmt"
)

// DocError is the structured error type for docmemory.
// It provides rich context for error handling, logging, and user presentation.
type DocError struct {
	// Code is the unique error code (e.g., "ERR_209_STORAGE_FAILURE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Sentinels for errors.Is checks. Matching is by code, so any DocError
// carrying the same code matches.
var (
	ErrNotFound          = &DocError{Code: ErrCodeNotFound}
	ErrDimensionMismatch = &DocError{Code: ErrCodeDimensionMismatch}
	ErrUnsupportedFormat = &DocError{Code: ErrCodeUnsupportedFormat}
	ErrStorageFailure    = &DocError{Code: ErrCodeStorageFailure}
	ErrStoreLocked       = &DocError{Code: ErrCodeStoreLocked}
)

// Error implements the error interface.
func (e *DocError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DocError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with DocError.
func (e *DocError) Is(target error) bool {
	if t, ok := target.(*DocError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *DocError) WithDetail(key, value string) *DocError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *DocError) WithSuggestion(suggestion string) *DocError {
	e.Suggestion = suggestion
	return e
}

// New creates a new DocError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *DocError {
	return &DocError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a DocError from an existing error.
// The error's message becomes the DocError message.
func Wrap(code string, err error) *DocError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *DocError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a durable-layer failure. A nil cause yields nil so
// callers can write `return errors.StorageError("put record", err)`.
func StorageError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return New(ErrCodeStorageFailure, fmt.Sprintf("%s: %v", op, cause), cause)
}

// DimensionError reports a vector whose length differs from the store's dimension.
func DimensionError(expected, got int) *DocError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got))
}

// UnsupportedFormatError reports a file type the extractor cannot read.
func UnsupportedFormatError(path, format string) *DocError {
	return New(ErrCodeUnsupportedFormat, "unsupported file format: "+format, nil).
		WithDetail("path", path).
		WithSuggestion("Convert the document to txt, md, csv, html, or docx")
}

// NotFoundError reports an unknown record id. Core APIs return absence
// values instead; this exists for the CLI.
func NotFoundError(id string) *DocError {
	return New(ErrCodeNotFound, "document not found: "+id, nil).WithDetail("id", id)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *DocError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *DocError {
	return New(ErrCodeInternal, message, cause)
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var de *DocError
	if errors.As(err, &de) {
		return de.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first DocError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var de *DocError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// GetCategory extracts the category from the first DocError in the chain.
// Returns empty string if there is none.
func GetCategory(err error) Category {
	var de *DocError
	if errors.As(err, &de) {
		return de.Category
	}
	return ""
}
