package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("disk I/O error")

	// When: wrapping with DocError
	docErr := New(ErrCodeStorageFailure, "put record failed", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, docErr)
	assert.Equal(t, originalErr, errors.Unwrap(docErr))
	assert.True(t, errors.Is(docErr, originalErr))
}

func TestDocError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigInvalid,
			message:  "weights must sum to 1",
			expected: "[ERR_102_CONFIG_INVALID] weights must sum to 1",
		},
		{
			name:     "storage error",
			code:     ErrCodeStorageFailure,
			message:  "database is locked",
			expected: "[ERR_209_STORAGE_FAILURE] database is locked",
		},
		{
			name:     "validation error",
			code:     ErrCodeDimensionMismatch,
			message:  "expected 384",
			expected: "[ERR_402_DIMENSION_MISMATCH] expected 384",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestDocError_Is_MatchesSentinelByCode(t *testing.T) {
	// Given: a dimension error wrapped in a plain fmt error
	err := fmt.Errorf("store record: %w", DimensionError(384, 3))

	// Then: it matches the sentinel but not other kinds
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.False(t, errors.Is(err, ErrStorageFailure))
	assert.False(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestDocError_WithDetails_AddsContext(t *testing.T) {
	// Given: a base error
	err := New(ErrCodeFileNotFound, "file not found", nil)

	// When: adding details
	err = err.WithDetail("path", "/docs/report.docx").WithSuggestion("Check the path")

	// Then: details are available
	assert.Equal(t, "/docs/report.docx", err.Details["path"])
	assert.Equal(t, "Check the path", err.Suggestion)
}

func TestDocError_CategoryAndSeverityFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
		wantSeverity Severity
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError},
		{ErrCodeStorageFailure, CategoryIO, SeverityError},
		{ErrCodeCorruptStore, CategoryIO, SeverityFatal},
		{ErrCodeNotFound, CategoryIO, SeverityInfo},
		{ErrCodeDimensionMismatch, CategoryValidation, SeverityError},
		{ErrCodeUnsupportedFormat, CategoryValidation, SeverityError},
		{ErrCodeEmbeddingFailed, CategoryInternal, SeverityError},
		{"bogus", CategoryInternal, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
			assert.Equal(t, tt.wantSeverity, err.Severity)
		})
	}
}

func TestStorageError_NilCauseIsNil(t *testing.T) {
	// When: wrapping a nil cause
	err := StorageError("put record", nil)

	// Then: no error is produced
	assert.NoError(t, err)

	// And: a real cause is wrapped as a storage failure
	err = StorageError("put record", errors.New("disk full"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageFailure))
	assert.Contains(t, err.Error(), "put record: disk full")
}

func TestHelpers_ReadThroughWrappedChains(t *testing.T) {
	// Given: a fatal error wrapped twice
	err := fmt.Errorf("open: %w", fmt.Errorf("load: %w", New(ErrCodeCorruptStore, "bad header", nil)))

	// Then: helpers find it
	assert.Equal(t, ErrCodeCorruptStore, GetCode(err))
	assert.Equal(t, CategoryIO, GetCategory(err))
	assert.True(t, IsFatal(err))

	// And: plain errors report nothing
	assert.Equal(t, "", GetCode(errors.New("plain")))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}
