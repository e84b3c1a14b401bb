// Package rank provides score normalization, query feature extraction, and
// adaptive weighted fusion of lexical and dense retrieval results.
package rank

import (
	"math"
	"sort"
)

// Policy selects the score normalization algorithm.
type Policy string

const (
	// PolicyMinMax scales scores linearly into [0,1].
	PolicyMinMax Policy = "minmax"
	// PolicyZScore standardizes scores then squashes them through the
	// standard normal CDF.
	PolicyZScore Policy = "zscore"
	// PolicyReciprocalRank assigns 1/(rank+k) by descending score, then
	// min-max scales.
	PolicyReciprocalRank Policy = "rrank"
)

// DefaultRankConstant is the smoothing parameter for reciprocal-rank
// normalization. k=60 is empirically validated across domains (used by
// Azure AI Search, OpenSearch, etc.).
const DefaultRankConstant = 60

// Normalize maps scores into [0,1], preserving index alignment with the
// input. Empty input returns an empty slice. If the arithmetic produces a
// non-finite value the original scores are returned unchanged (fail-open);
// downstream fusion treats that as a soft signal rather than an error.
func Normalize(policy Policy, scores []float64) []float64 {
	if len(scores) == 0 {
		return []float64{}
	}

	for _, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return copyScores(scores)
		}
	}

	var out []float64
	switch policy {
	case PolicyZScore:
		out = normalizeZScore(scores)
	case PolicyReciprocalRank:
		out = normalizeReciprocalRank(scores)
	default:
		out = normalizeMinMax(scores)
	}

	for _, s := range out {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return copyScores(scores)
		}
	}
	return out
}

// normalizeMinMax maps scores to (x-min)/(max-min).
// When all scores are equal, every score maps to 1.0.
func normalizeMinMax(scores []float64) []float64 {
	minS, maxS := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minS {
			minS = s
		}
		if s > maxS {
			maxS = s
		}
	}

	out := make([]float64, len(scores))
	if maxS <= minS {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}

	span := maxS - minS
	for i, s := range scores {
		out[i] = (s - minS) / span
	}
	return out
}

// normalizeZScore standardizes to (x-μ)/σ and squashes through Φ, the
// standard normal CDF. Φ is monotone, so the ordering of the input is
// preserved. When σ = 0 every score maps to 0.0.
func normalizeZScore(scores []float64) []float64 {
	n := float64(len(scores))

	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / n

	var variance float64
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= n
	sigma := math.Sqrt(variance)

	out := make([]float64, len(scores))
	if sigma == 0 {
		return out
	}

	for i, s := range scores {
		z := (s - mean) / sigma
		out[i] = stdNormalCDF(z)
	}
	return out
}

// stdNormalCDF computes Φ(z) = 0.5 * erfc(-z/√2).
func stdNormalCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// normalizeReciprocalRank assigns 1/(rank+k) by descending score
// (1-indexed ranks, ties resolved by input position), then min-max scales
// the result so the best score becomes 1.0 and the worst 0.0.
func normalizeReciprocalRank(scores []float64) []float64 {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})

	out := make([]float64, len(scores))
	for rank, i := range idx {
		out[i] = 1.0 / float64(rank+1+DefaultRankConstant)
	}
	return normalizeMinMax(out)
}

func copyScores(scores []float64) []float64 {
	out := make([]float64, len(scores))
	copy(out, scores)
	return out
}
