package rerank

import (
	"context"
	"log/slog"

	dtragerr "github.com/taxonrag/dtrag/internal/errors"
	"github.com/taxonrag/dtrag/internal/rank"
)

// Reranker scores and reorders candidates. The cross-encoder is optional;
// without one, every request takes the heuristic path. Cross-encoder
// calls run behind a circuit breaker so a flapping scoring service fails
// fast instead of burning the rerank deadline on every request.
type Reranker struct {
	encoder CrossEncoder
	breaker *dtragerr.CircuitBreaker
	logger  *slog.Logger
}

// NewReranker creates a reranker. encoder may be nil to force the
// heuristic path; logger nil defaults to slog.Default.
func NewReranker(encoder CrossEncoder, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{
		encoder: encoder,
		breaker: dtragerr.NewCircuitBreaker("cross_encoder"),
		logger:  logger,
	}
}

// Rerank scores the candidates and returns the top topK, together with
// the path that produced the scores. It never returns an error: any
// cross-encoder failure falls back to the heuristic path, logged at WARN.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Result, Path) {
	if len(candidates) == 0 {
		return []Result{}, PathHeuristic
	}

	if r.encoder != nil {
		results, err := r.crossEncode(ctx, query, candidates)
		if err == nil {
			return truncate(results, topK), PathCrossEncoder
		}
		r.logger.Warn("rerank_fallback_heuristic",
			slog.String("error", err.Error()),
			slog.Int("candidates", len(candidates)))
	}

	return truncate(heuristicScores(query, candidates), topK), PathHeuristic
}

// crossEncode scores through the circuit breaker, min-max normalizes the
// raw relevance scores to [0,1], and sorts.
func (r *Reranker) crossEncode(ctx context.Context, query string, candidates []Candidate) ([]Result, error) {
	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Text
	}

	scores, err := dtragerr.CircuitExecuteWithResult(r.breaker,
		func() ([]float64, error) {
			return r.encoder.Score(ctx, query, documents)
		},
		func() ([]float64, error) {
			return nil, dtragerr.New(dtragerr.ErrCodeRerankFailed, "cross-encoder circuit open", dtragerr.ErrCircuitOpen)
		})
	if err != nil {
		return nil, dtragerr.Wrap(dtragerr.ErrCodeRerankFailed, err)
	}
	if len(scores) != len(candidates) {
		return nil, dtragerr.New(dtragerr.ErrCodeRerankFailed, "score count mismatch", nil)
	}

	normalized := rank.Normalize(rank.PolicyMinMax, scores)

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{ChunkID: c.ChunkID, Score: clamp01(normalized[i])}
	}
	sortResults(results, candidates)
	return results, nil
}

// BreakerState exposes the circuit state for diagnostics.
func (r *Reranker) BreakerState() dtragerr.State {
	return r.breaker.State()
}

// Close releases the cross-encoder, if any.
func (r *Reranker) Close() error {
	if r.encoder == nil {
		return nil
	}
	return r.encoder.Close()
}

func truncate(results []Result, topK int) []Result {
	if topK > 0 && topK < len(results) {
		return results[:topK]
	}
	return results
}
