package rank

import (
	"sort"
)

// Default fusion weights and adaptation parameters.
const (
	// DefaultLexWeight and DefaultDenseWeight are the balanced starting
	// weights for mixed queries.
	DefaultLexWeight   = 0.5
	DefaultDenseWeight = 0.5

	// adaptiveShift is how far a detected query shape moves the weights.
	adaptiveShift = 0.2

	// maxWeight caps either side so neither arm is ever fully ignored
	// while both produced candidates.
	maxWeight = 0.8

	// shortQueryTokens is the token-count ceiling for the lexical boost.
	shortQueryTokens = 3

	// complexityThreshold is the long-word fraction above which a query
	// is treated as semantic.
	complexityThreshold = 0.7
)

// Scored is a (chunk id, raw score) pair from one retrieval arm.
type Scored struct {
	ChunkID string
	Score   float64
}

// Weights holds the lexical/dense fusion weights. They always sum to 1.
type Weights struct {
	Lex   float64
	Dense float64
}

// DefaultWeights returns the balanced weights.
func DefaultWeights() Weights {
	return Weights{Lex: DefaultLexWeight, Dense: DefaultDenseWeight}
}

// Fused is a single candidate after weighted fusion.
type Fused struct {
	ChunkID string
	Lexical float64 // normalized lexical score, 0 if absent from that arm
	Dense   float64 // normalized dense score, 0 if absent from that arm
	Fused   float64 // w.Lex*Lexical + w.Dense*Dense
	InBoth  bool    // candidate appeared in both arms
}

// Fuser combines lexical and dense candidate lists using adaptive weighted
// fusion. Each side is normalized independently before mixing.
type Fuser struct {
	policy Policy
}

// NewFuser creates a fuser with the given normalization policy.
// An empty policy defaults to min-max.
func NewFuser(policy Policy) *Fuser {
	if policy == "" {
		policy = PolicyMinMax
	}
	return &Fuser{policy: policy}
}

// Policy returns the configured normalization policy.
func (f *Fuser) Policy() Policy {
	return f.policy
}

// AdaptWeights derives fusion weights from the query features:
//
//   - short exact query (≤ 3 tokens with a quoted phrase or operator):
//     shift toward lexical, capped at 0.8/0.2
//   - high complexity (long-word fraction > 0.7): shift toward dense,
//     capped at 0.2/0.8
//   - otherwise: balanced defaults
func (f *Fuser) AdaptWeights(feat QueryFeatures) Weights {
	w := DefaultWeights()

	switch {
	case feat.TokenCount <= shortQueryTokens && feat.TokenCount > 0 &&
		(feat.HasExactPhrase || feat.HasBooleanOps):
		w.Lex += adaptiveShift
	case feat.Complexity > complexityThreshold:
		w.Dense += adaptiveShift
	default:
		return w
	}

	if w.Lex > maxWeight {
		w.Lex = maxWeight
	}
	if w.Dense > maxWeight {
		w.Dense = maxWeight
	}
	w.Lex = clampWeight(w.Lex)
	w.Dense = 1.0 - w.Lex
	return w
}

// DegradedWeights collapses the weights onto the surviving arm when the
// other failed. Both arms alive returns w unchanged.
func DegradedWeights(w Weights, lexicalOK, denseOK bool) Weights {
	switch {
	case lexicalOK && !denseOK:
		return Weights{Lex: 1, Dense: 0}
	case !lexicalOK && denseOK:
		return Weights{Lex: 0, Dense: 1}
	default:
		return w
	}
}

func clampWeight(v float64) float64 {
	if v < 1.0-maxWeight {
		return 1.0 - maxWeight
	}
	if v > maxWeight {
		return maxWeight
	}
	return v
}

// Fuse unions the two candidate lists, normalizes each side independently,
// and combines per-chunk scores as w.Lex*lexical + w.Dense*dense.
//
// Chunks absent from one arm contribute 0 for that arm. Results are sorted
// by fused score descending with chunk id ascending as the tie-breaker, and
// truncated to limit (limit <= 0 means max(len(lexical), len(dense))).
func (f *Fuser) Fuse(lexical, dense []Scored, w Weights, limit int) []Fused {
	if len(lexical) == 0 && len(dense) == 0 {
		return []Fused{}
	}

	normLex := normalizeSide(f.policy, lexical)
	normDense := normalizeSide(f.policy, dense)

	merged := make(map[string]*Fused, len(lexical)+len(dense))
	for i, s := range lexical {
		merged[s.ChunkID] = &Fused{ChunkID: s.ChunkID, Lexical: normLex[i]}
	}
	for i, s := range dense {
		if r, ok := merged[s.ChunkID]; ok {
			r.Dense = normDense[i]
			r.InBoth = true
			continue
		}
		merged[s.ChunkID] = &Fused{ChunkID: s.ChunkID, Dense: normDense[i]}
	}

	results := make([]Fused, 0, len(merged))
	for _, r := range merged {
		r.Fused = w.Lex*r.Lexical + w.Dense*r.Dense
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Fused != results[j].Fused {
			return results[i].Fused > results[j].Fused
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if limit <= 0 {
		limit = max(len(lexical), len(dense))
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// normalizeSide normalizes one arm's scores, preserving index alignment.
func normalizeSide(policy Policy, side []Scored) []float64 {
	if len(side) == 0 {
		return nil
	}
	scores := make([]float64, len(side))
	for i, s := range side {
		scores[i] = s.Score
	}
	return Normalize(policy, scores)
}
