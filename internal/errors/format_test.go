package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_IncludesHintAndCode(t *testing.T) {
	// Given: an unsupported format error
	err := UnsupportedFormatError("/tmp/scan.pdf", "pdf")

	// When: formatting for the terminal
	out := FormatForCLI(err)

	// Then: message, hint, and code are shown
	assert.Contains(t, out, "Error: unsupported file format: pdf")
	assert.Contains(t, out, "Hint: Convert the document")
	assert.Contains(t, out, "Code: ERR_407_UNSUPPORTED_FORMAT")
}

func TestFormatForCLI_PlainErrorBecomesInternal(t *testing.T) {
	out := FormatForCLI(errors.New("boom"))
	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, ErrCodeInternal)
	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatJSON_EncodesFields(t *testing.T) {
	// Given: a storage error with a cause
	err := New(ErrCodeStorageFailure, "get record", errors.New("locked")).WithDetail("id", "abc")

	// When: formatting as JSON
	data, ferr := FormatJSON(err)
	require.NoError(t, ferr)

	// Then: all fields are present
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeStorageFailure, decoded["code"])
	assert.Equal(t, "IO", decoded["category"])
	assert.Equal(t, "locked", decoded["cause"])
	assert.Equal(t, "abc", decoded["details"].(map[string]any)["id"])
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(NotFoundError("xyz"))
	assert.Contains(t, attrs, "error_code")
	assert.Contains(t, attrs, ErrCodeNotFound)
	assert.Contains(t, attrs, "detail_id")

	assert.Equal(t, []any{"error", "plain"}, LogAttrs(errors.New("plain")))
	assert.Nil(t, LogAttrs(nil))
}
