package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeQuery_TokenCount(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"single token", "API", 1},
		{"three tokens", "vector search engine", 3},
		{"empty query", "", 0},
		{"whitespace only", "   \t  ", 0},
		{"punctuation split", "error-handling in go", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := AnalyzeQuery(tt.query)
			assert.Equal(t, tt.want, f.TokenCount)
		})
	}
}

func TestAnalyzeQuery_ExactPhraseDetection(t *testing.T) {
	assert.True(t, AnalyzeQuery(`"API"`).HasExactPhrase)
	assert.True(t, AnalyzeQuery(`find "exact phrase" here`).HasExactPhrase)
	assert.False(t, AnalyzeQuery(`no quotes at all`).HasExactPhrase)
	// A lone quote is not a phrase
	assert.False(t, AnalyzeQuery(`dangling " quote`).HasExactPhrase)
}

func TestAnalyzeQuery_BooleanOperators(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"cats AND dogs", true},
		{"cats OR dogs", true},
		{"cats NOT dogs", true},
		{"+required term", true},
		{"-excluded term", true},
		{"and lowercased is not an operator", false},
		{"plain query", false},
		{"-", false}, // bare sign is not an operator
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, AnalyzeQuery(tt.query).HasBooleanOps)
		})
	}
}

func TestAnalyzeQuery_OperatorsExcludedFromTokenCount(t *testing.T) {
	f := AnalyzeQuery("cats AND dogs")

	assert.Equal(t, 2, f.TokenCount)
	assert.True(t, f.HasBooleanOps)
}

func TestAnalyzeQuery_Complexity(t *testing.T) {
	// "distributed" (11) and "algorithms" (10) are long; "for" and "data" are not
	f := AnalyzeQuery("distributed algorithms for data")

	assert.Equal(t, 4, f.TokenCount)
	assert.InDelta(t, 0.5, f.Complexity, 1e-9)
}

func TestAnalyzeQuery_ComplexityAllShortTokens(t *testing.T) {
	f := AnalyzeQuery("go is fun")

	assert.Equal(t, 0.0, f.Complexity)
}

func TestAnalyzeQuery_ComplexityHighForSemanticQuery(t *testing.T) {
	f := AnalyzeQuery("implementing distributed machine-learning algorithms heterogeneous clusters")

	assert.Greater(t, f.Complexity, 0.7)
}

func TestAnalyzeQuery_AvgTokenLength(t *testing.T) {
	f := AnalyzeQuery("ab abcd")

	assert.InDelta(t, 3.0, f.AvgTokenLength, 1e-9)
}

func TestAnalyzeQuery_Deterministic(t *testing.T) {
	q := `"exact" AND complicated terminology`

	a := AnalyzeQuery(q)
	b := AnalyzeQuery(q)

	assert.Equal(t, a, b)
}
