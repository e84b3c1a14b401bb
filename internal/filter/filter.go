// Package filter validates search filter records and compiles them into
// parameterized chunk predicates. Validation is strict: a filter that
// cannot be fully honored is rejected up front rather than silently
// loosened.
package filter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"

	dtragerr "github.com/taxonrag/dtrag/internal/errors"
	"github.com/taxonrag/dtrag/internal/store"
	"github.com/taxonrag/dtrag/internal/taxonomy"
)

// MinConfidenceFloor is the lowest classification confidence a filter may
// require. User-supplied values below the floor are raised to it.
const MinConfidenceFloor = 0.7

// slugPattern admits node ids made of letters, digits, underscore, and
// hyphen. Anything else must be a UUID.
var slugPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

// Filter is the wire-form filter record. All fields are optional and
// combine by AND. Dates are inclusive ISO-8601 instants on a chunk's
// processed_at.
type Filter struct {
	TaxonomyNodeIDs []string `json:"taxonomy_node_ids,omitempty"`
	TaxonomyVersion string   `json:"taxonomy_version,omitempty"`
	ContentTypes    []string `json:"content_types,omitempty"`
	DateFrom        string   `json:"date_from,omitempty"`
	DateTo          string   `json:"date_to,omitempty"`
	MinConfidence   float64  `json:"min_confidence,omitempty"`
}

// IsEmpty reports whether the filter constrains nothing.
func (f *Filter) IsEmpty() bool {
	return len(f.TaxonomyNodeIDs) == 0 &&
		f.TaxonomyVersion == "" &&
		len(f.ContentTypes) == 0 &&
		f.DateFrom == "" &&
		f.DateTo == ""
}

// EffectiveMinConfidence returns the confidence floor actually applied.
func (f *Filter) EffectiveMinConfidence() float64 {
	if f.MinConfidence > MinConfidenceFloor {
		return f.MinConfidence
	}
	return MinConfidenceFloor
}

// Parse decodes a wire-form filter. Unknown fields are rejected so that a
// misspelled constraint cannot silently widen results.
func Parse(data []byte) (Filter, error) {
	var f Filter
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return Filter{}, dtragerr.InvalidFilter(fmt.Sprintf("malformed filter: %v", err))
	}
	return f, nil
}

// Validate checks the filter against the whitelist rules and the taxonomy
// catalog. Returns InvalidFilter on the first violation.
func (f *Filter) Validate(ctx context.Context, resolver *taxonomy.Resolver) error {
	for _, ct := range f.ContentTypes {
		if !store.ContentTypeWhitelist[store.ContentType(ct)] {
			return dtragerr.InvalidFilter(fmt.Sprintf("content type %q is not recognized", ct)).
				WithDetail("content_type", ct)
		}
	}

	for _, id := range f.TaxonomyNodeIDs {
		if !validNodeID(id) {
			return dtragerr.InvalidFilter(fmt.Sprintf("malformed taxonomy node id %q", id)).
				WithDetail("node_id", id)
		}
	}

	from, to, err := f.dateBounds()
	if err != nil {
		return err
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return dtragerr.InvalidFilter("date_from is after date_to").
			WithDetail("date_from", f.DateFrom).
			WithDetail("date_to", f.DateTo)
	}

	if len(f.TaxonomyNodeIDs) > 0 && f.TaxonomyVersion == "" {
		return dtragerr.InvalidFilter("taxonomy_version is required when taxonomy_node_ids is set")
	}
	if f.TaxonomyVersion != "" {
		ok, err := resolver.VersionExists(ctx, f.TaxonomyVersion)
		if err != nil {
			return err
		}
		if !ok {
			return dtragerr.InvalidFilter(fmt.Sprintf("unknown taxonomy version %q", f.TaxonomyVersion)).
				WithDetail("taxonomy_version", f.TaxonomyVersion)
		}
	}

	return nil
}

// validNodeID accepts slug-form ids and UUIDs.
func validNodeID(id string) bool {
	if id == "" {
		return false
	}
	if slugPattern.MatchString(id) {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// dateBounds parses the optional date range. Zero times mean unset.
func (f *Filter) dateBounds() (from, to time.Time, err error) {
	if f.DateFrom != "" {
		from, err = time.Parse(time.RFC3339, f.DateFrom)
		if err != nil {
			return time.Time{}, time.Time{},
				dtragerr.InvalidFilter(fmt.Sprintf("date_from %q is not ISO-8601", f.DateFrom))
		}
	}
	if f.DateTo != "" {
		to, err = time.Parse(time.RFC3339, f.DateTo)
		if err != nil {
			return time.Time{}, time.Time{},
				dtragerr.InvalidFilter(fmt.Sprintf("date_to %q is not ISO-8601", f.DateTo))
		}
	}
	return from, to, nil
}

// Canonical serializes the filter with sorted keys, sorted set values, and
// floats quantized to six decimals. Two filters that differ only in key or
// set ordering produce identical canonical bytes.
func (f *Filter) Canonical() []byte {
	canon := make(map[string]any)
	if len(f.TaxonomyNodeIDs) > 0 {
		canon["taxonomy_node_ids"] = sortedCopy(f.TaxonomyNodeIDs)
	}
	if f.TaxonomyVersion != "" {
		canon["taxonomy_version"] = f.TaxonomyVersion
	}
	if len(f.ContentTypes) > 0 {
		canon["content_types"] = sortedCopy(f.ContentTypes)
	}
	if f.DateFrom != "" {
		canon["date_from"] = f.DateFrom
	}
	if f.DateTo != "" {
		canon["date_to"] = f.DateTo
	}
	if f.MinConfidence != 0 {
		canon["min_confidence"] = math.Round(f.MinConfidence*1e6) / 1e6
	}

	// encoding/json emits map keys in sorted order
	data, err := json.Marshal(canon)
	if err != nil {
		// map[string]any over strings and floats cannot fail to marshal
		panic(fmt.Sprintf("canonicalize filter: %v", err))
	}
	return data
}

// Fingerprint returns a 128-bit truncated SHA-256 of the canonical form,
// hex encoded. Used for cache-key construction and prefix invalidation.
func (f *Filter) Fingerprint() string {
	sum := sha256.Sum256(f.Canonical())
	return hex.EncodeToString(sum[:16])
}

func sortedCopy(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}
