// Package cache provides the in-process result cache: an LRU with TTL
// expiry, canonical request keys, and fingerprint-prefixed invalidation.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Key builds the canonical cache key for a search request.
//
// The query is NFC-normalized and lower-cased, the filter contributes its
// canonical serialization (sorted keys, floats quantized to six decimals),
// and k completes the material. The SHA-256 digest is truncated to 128
// bits. Keys carry the filter fingerprint as a prefix so that all entries
// under one filter can be invalidated together.
func Key(query string, filterCanonical []byte, filterFingerprint string, k int) string {
	normalized := strings.ToLower(norm.NFC.String(query))

	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write(filterCanonical)
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(k)))

	digest := h.Sum(nil)
	return filterFingerprint + ":" + hex.EncodeToString(digest[:16])
}
