// Package rerank reorders fused candidates by query relevance. The
// primary path scores (query, text) pairs through a cross-encoder
// service; a deterministic heuristic path takes over whenever the
// cross-encoder is absent, fails, or its circuit is open. Reranking
// never fails a request.
package rerank

import "context"

// Path identifies which scoring path produced a rerank result.
type Path string

const (
	// PathCrossEncoder means the cross-encoder service scored the set.
	PathCrossEncoder Path = "cross_encoder"
	// PathHeuristic means the deterministic fallback scored the set.
	PathHeuristic Path = "heuristic"
)

// Candidate is a fused retrieval candidate entering the reranker.
type Candidate struct {
	ChunkID      string
	Text         string
	SourceURL    string
	TaxonomyPath []string
	Fused        float64
}

// Result carries a candidate's rerank score. Results are sorted by Score
// descending, ties broken by Fused descending, then ChunkID ascending.
type Result struct {
	ChunkID string
	Score   float64
}

// CrossEncoder scores query-document pairs jointly. Implementations must
// return one score per document, index-aligned with the input.
type CrossEncoder interface {
	Score(ctx context.Context, query string, documents []string) ([]float64, error)

	// Available checks if the scoring service is reachable
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}
