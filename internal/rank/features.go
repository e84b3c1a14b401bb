package rank

import (
	"strings"
	"unicode"
)

// QueryFeatures is an immutable feature record derived from the raw query
// string. It flows through the pipeline as a value; nothing downstream
// mutates it.
type QueryFeatures struct {
	// TokenCount is the number of word tokens in the query.
	TokenCount int

	// HasExactPhrase is true when the query contains a quoted phrase.
	HasExactPhrase bool

	// HasBooleanOps is true when the query contains AND/OR/NOT operators
	// or +/- term prefixes.
	HasBooleanOps bool

	// AvgTokenLength is the mean length of word tokens in runes.
	AvgTokenLength float64

	// Complexity is the fraction of tokens longer than 6 characters,
	// in [0,1]. Long-word-heavy queries lean semantic.
	Complexity float64
}

// booleanOperators are the recognized uppercase query operators.
var booleanOperators = map[string]bool{
	"AND": true,
	"OR":  true,
	"NOT": true,
}

// AnalyzeQuery derives query features deterministically with no external
// calls. Word tokens are maximal runs of letters and digits; operator
// tokens (AND/OR/NOT, +term, -term) are detected but excluded from the
// token statistics.
func AnalyzeQuery(query string) QueryFeatures {
	var f QueryFeatures

	f.HasExactPhrase = strings.Count(query, `"`) >= 2

	var totalLen int
	longTokens := 0

	for _, field := range strings.Fields(query) {
		if booleanOperators[field] {
			f.HasBooleanOps = true
			continue
		}
		if len(field) > 1 && (field[0] == '+' || field[0] == '-') {
			f.HasBooleanOps = true
		}

		for _, word := range splitWords(field) {
			f.TokenCount++
			n := len([]rune(word))
			totalLen += n
			if n > 6 {
				longTokens++
			}
		}
	}

	if f.TokenCount > 0 {
		f.AvgTokenLength = float64(totalLen) / float64(f.TokenCount)
		f.Complexity = float64(longTokens) / float64(f.TokenCount)
	}

	return f
}

// splitWords extracts runs of letters and digits from a field.
func splitWords(field string) []string {
	return strings.FieldsFunc(field, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
