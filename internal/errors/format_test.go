package errors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatJSON_BasicError(t *testing.T) {
	// Given: a RetrievalError with details
	err := New(ErrCodeInvalidFilter, "unknown field", nil).
		WithDetail("field", "colour")

	// When: formatting as JSON
	data, jsonErr := FormatJSON(err)

	// Then: valid JSON
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	// And: contains expected fields
	assert.Equal(t, ErrCodeInvalidFilter, result["code"])
	assert.Equal(t, "unknown field", result["message"])
	assert.Equal(t, string(CategoryValidation), result["category"])
	assert.Equal(t, string(SeverityError), result["severity"])

	details, ok := result["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "colour", details["field"])
}

func TestFormatJSON_StandardError(t *testing.T) {
	// Given: a standard error
	err := errors.New("generic error")

	// When: formatting as JSON
	data, jsonErr := FormatJSON(err)

	// Then: valid JSON with internal error code
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ErrCodeInternal, result["code"])
	assert.Equal(t, "generic error", result["message"])
}

func TestFormatJSON_NilError(t *testing.T) {
	// When: formatting nil
	data, err := FormatJSON(nil)

	// Then: returns empty result
	assert.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(string(data)))
}

func TestFormatJSON_WithCause(t *testing.T) {
	// Given: an error with cause
	cause := errors.New("underlying error")
	err := New(ErrCodeInternal, "operation failed", cause)

	// When: formatting as JSON
	data, jsonErr := FormatJSON(err)

	// Then: includes cause
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, "underlying error", result["cause"])
}

func TestFormatForCLI_ContainsCodeAndMessage(t *testing.T) {
	// Given: a taxonomy error
	err := New(ErrCodeTaxonomyCorrupt, "cycle detected in version v3", nil)

	// When: formatting for CLI
	result := FormatForCLI(err)

	// Then: contains error info
	assert.Contains(t, result, "cycle detected in version v3")
	assert.Contains(t, result, "ERR_401_TAXONOMY_CORRUPT")
}

func TestFormatForCLI_ShortFormat(t *testing.T) {
	// Given: a simple error
	err := New(ErrCodeInvalidQuery, "query is empty", nil)

	// When: formatting for CLI
	result := FormatForCLI(err)

	// Then: is concise
	lines := strings.Split(strings.TrimSpace(result), "\n")
	assert.LessOrEqual(t, len(lines), 5, "Should be concise")
}

func TestFormatForLog_RetrievalError(t *testing.T) {
	// Given: a degradation with a cause
	cause := errors.New("dial tcp: connection refused")
	err := New(ErrCodeRerankFailed, "cross-encoder unavailable", cause).
		WithDetail("endpoint", "http://localhost:8400")

	// When: formatting for slog
	attrs := FormatForLog(err)

	// Then: structured fields present
	assert.Equal(t, ErrCodeRerankFailed, attrs["error_code"])
	assert.Equal(t, string(CategoryRetrieval), attrs["category"])
	assert.Equal(t, "dial tcp: connection refused", attrs["cause"])
	assert.Equal(t, "http://localhost:8400", attrs["detail_endpoint"])
}
