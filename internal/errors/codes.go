// Package errors provides structured error handling for dtrag.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Validation errors (query, filter)
//   - 3XX: Retrieval-stage errors
//   - 4XX: Taxonomy errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryValidation indicates query or filter validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryRetrieval indicates errors from a retrieval stage.
	CategoryRetrieval Category = "RETRIEVAL"
	// CategoryTaxonomy indicates taxonomy integrity or lookup errors.
	CategoryTaxonomy Category = "TAXONOMY"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Validation errors (200-299)
	ErrCodeInvalidQuery      = "ERR_201_INVALID_QUERY"
	ErrCodeInvalidFilter     = "ERR_202_INVALID_FILTER"
	ErrCodeDimensionMismatch = "ERR_203_DIMENSION_MISMATCH"

	// Retrieval errors (300-399)
	ErrCodeLexicalFailed      = "ERR_301_LEXICAL_FAILED"
	ErrCodeDenseFailed        = "ERR_302_DENSE_FAILED"
	ErrCodeAllRetrievalFailed = "ERR_303_ALL_RETRIEVAL_FAILED"
	ErrCodeEmbedFailed        = "ERR_304_EMBED_FAILED"
	ErrCodeRerankFailed       = "ERR_305_RERANK_FAILED"
	ErrCodeCacheFailed        = "ERR_306_CACHE_FAILED"

	// Taxonomy errors (400-499)
	ErrCodeTaxonomyCorrupt        = "ERR_401_TAXONOMY_CORRUPT"
	ErrCodeTaxonomyVersionUnknown = "ERR_402_TAXONOMY_VERSION_UNKNOWN"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeCancelled    = "ERR_502_CANCELLED"
	ErrCodeStoreCorrupt = "ERR_503_STORE_CORRUPT"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "201" from "ERR_201_INVALID_QUERY")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryValidation
	case '3':
		return CategoryRetrieval
	case '4':
		return CategoryTaxonomy
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Corrupt state must abort the operation
	switch code {
	case ErrCodeTaxonomyCorrupt, ErrCodeStoreCorrupt:
		return SeverityFatal
	}

	// Degradations keep the request alive
	if isDegradationCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeLexicalFailed, ErrCodeDenseFailed, ErrCodeEmbedFailed,
		ErrCodeRerankFailed, ErrCodeCacheFailed:
		return true
	default:
		return false
	}
}

// isDegradationCode reports whether the code marks a soft failure: the
// request continues with reduced quality and the code is recorded in the
// response metrics instead of failing the search.
func isDegradationCode(code string) bool {
	switch code {
	case ErrCodeLexicalFailed, ErrCodeDenseFailed, ErrCodeRerankFailed,
		ErrCodeCacheFailed:
		return true
	default:
		return false
	}
}
