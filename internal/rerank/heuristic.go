package rerank

import (
	"regexp"
	"sort"
	"strings"
)

// Heuristic scoring weights. The quality multiplier starts at 1.0 so a
// candidate with no overlap still keeps its fused score (modulo clamping).
const (
	overlapWeight   = 0.2
	lengthWeight    = 0.1
	diversityWeight = 0.1
)

var termPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// heuristicScores computes deterministic rerank scores for the candidate
// set:
//
//	quality = 1.0 + 0.2*overlap + 0.1*length_penalty + 0.1*diversity_bonus
//	rerank  = clamp(fused * quality, 0, 1)
//
// overlap and length_penalty are per candidate; diversity_bonus is a
// property of the whole set.
func heuristicScores(query string, candidates []Candidate) []Result {
	qTerms := termSet(query)
	diversity := diversityBonus(candidates)

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		quality := 1.0 +
			overlapWeight*termOverlap(qTerms, c.Text) +
			lengthWeight*lengthPenalty(len(c.Text)) +
			diversityWeight*diversity

		results[i] = Result{
			ChunkID: c.ChunkID,
			Score:   clamp01(c.Fused * quality),
		}
	}

	sortResults(results, candidates)
	return results
}

// termOverlap is the fraction of query terms present in the text.
func termOverlap(qTerms map[string]bool, text string) float64 {
	if len(qTerms) == 0 {
		return 0
	}
	textTerms := termSet(text)
	matched := 0
	for term := range qTerms {
		if textTerms[term] {
			matched++
		}
	}
	return float64(matched) / float64(len(qTerms))
}

// lengthPenalty rewards mid-length chunks. Very short chunks rarely carry
// enough context; very long ones dilute relevance.
func lengthPenalty(chars int) float64 {
	switch {
	case chars < 50:
		return 0.7
	case chars <= 100:
		return 0.9
	case chars <= 500:
		return 1.0
	case chars <= 1000:
		return 0.95
	default:
		return 0.8
	}
}

// diversityBonus scales with the number of distinct sources and top-level
// taxonomy branches in the candidate set, saturating at 1.0.
func diversityBonus(candidates []Candidate) float64 {
	sources := make(map[string]bool)
	prefixes := make(map[string]bool)
	for _, c := range candidates {
		if c.SourceURL != "" {
			sources[c.SourceURL] = true
		}
		if len(c.TaxonomyPath) > 0 {
			prefixes[c.TaxonomyPath[0]] = true
		}
	}
	bonus := float64(len(sources)+len(prefixes)) / 10.0
	if bonus > 1.0 {
		return 1.0
	}
	return bonus
}

func termSet(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, t := range termPattern.FindAllString(strings.ToLower(text), -1) {
		terms[t] = true
	}
	return terms
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// sortResults orders by score descending, ties by fused descending, then
// chunk id ascending. candidates must be index-aligned with results
// before sorting.
func sortResults(results []Result, candidates []Candidate) {
	fusedByID := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		fusedByID[c.ChunkID] = c.Fused
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		fi, fj := fusedByID[results[i].ChunkID], fusedByID[results[j].ChunkID]
		if fi != fj {
			return fi > fj
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}
