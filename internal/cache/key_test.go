package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_Deterministic(t *testing.T) {
	a := Key("climate change", []byte(`{"content_types":["pdf"]}`), "fp1", 10)
	b := Key("climate change", []byte(`{"content_types":["pdf"]}`), "fp1", 10)

	assert.Equal(t, a, b)
}

func TestKey_CaseInsensitiveQuery(t *testing.T) {
	a := Key("Climate Change", nil, "fp1", 10)
	b := Key("climate change", nil, "fp1", 10)

	assert.Equal(t, a, b)
}

func TestKey_UnicodeNormalization(t *testing.T) {
	// "é" composed (U+00E9) vs decomposed (e + U+0301)
	composed := Key("café", nil, "fp1", 10)
	decomposed := Key("café", nil, "fp1", 10)

	assert.Equal(t, composed, decomposed)
}

func TestKey_DistinguishesComponents(t *testing.T) {
	base := Key("query", []byte(`{}`), "fp1", 10)

	assert.NotEqual(t, base, Key("other query", []byte(`{}`), "fp1", 10))
	assert.NotEqual(t, base, Key("query", []byte(`{"a":1}`), "fp1", 10))
	assert.NotEqual(t, base, Key("query", []byte(`{}`), "fp1", 20))
}

func TestKey_CarriesFingerprintPrefix(t *testing.T) {
	key := Key("query", nil, "fingerprint123", 10)

	assert.True(t, strings.HasPrefix(key, "fingerprint123:"))
}

func TestKey_WhitespaceIsSignificantInsideQuery(t *testing.T) {
	// Canonicalization lowercases and NFC-normalizes; it does not collapse
	// interior whitespace. Same bytes in, same key out.
	a := Key("two  spaces", nil, "fp", 5)
	b := Key("two  spaces", nil, "fp", 5)
	assert.Equal(t, a, b)
}
