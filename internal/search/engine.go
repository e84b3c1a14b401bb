package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/taxonrag/dtrag/internal/cache"
	"github.com/taxonrag/dtrag/internal/embed"
	dtragerr "github.com/taxonrag/dtrag/internal/errors"
	"github.com/taxonrag/dtrag/internal/filter"
	"github.com/taxonrag/dtrag/internal/rank"
	"github.com/taxonrag/dtrag/internal/rerank"
	"github.com/taxonrag/dtrag/internal/store"
	"github.com/taxonrag/dtrag/internal/telemetry"
)

// ErrNilDependency is returned by NewEngine when a required collaborator
// is missing.
var ErrNilDependency = errors.New("nil dependency")

// Engine coordinates retrieval end-to-end: filter compilation, cache
// lookup, concurrent lexical/dense retrieval, fusion, reranking, and
// cache write-back. It is stateless apart from its injected collaborators
// and safe for concurrent use.
type Engine struct {
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	embedder embed.Embedder
	chunks   store.ChunkStore
	compiler *filter.Compiler
	config   EngineConfig

	cache    *cache.Cache[[]SearchHit]
	reranker *rerank.Reranker
	metrics  telemetry.Sink
	logger   *slog.Logger

	mu sync.Mutex // serializes Index
}

// EngineOption configures optional engine collaborators.
type EngineOption func(*Engine)

// WithReranker attaches a reranker. Without one, rerank-enabled requests
// use the deterministic heuristic path.
func WithReranker(r *rerank.Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// WithMetrics attaches a telemetry sink for per-request search events.
func WithMetrics(sink telemetry.Sink) EngineOption {
	return func(e *Engine) { e.metrics = sink }
}

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a retrieval engine. All positional dependencies are
// required; optional collaborators arrive via options.
func NewEngine(
	lexical store.LexicalIndex,
	vector store.VectorIndex,
	embedder embed.Embedder,
	chunks store.ChunkStore,
	compiler *filter.Compiler,
	config EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if chunks == nil {
		return nil, fmt.Errorf("%w: chunk store is required", ErrNilDependency)
	}
	if compiler == nil {
		return nil, fmt.Errorf("%w: filter compiler is required", ErrNilDependency)
	}

	config = config.withDefaults()
	e := &Engine{
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		chunks:   chunks,
		compiler: compiler,
		config:   config,
		logger:   slog.Default(),
	}
	if !config.DisableCache {
		e.cache = cache.New[[]SearchHit](config.CacheMaxEntries, config.CacheTTL, cloneHits)
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.reranker == nil {
		// Encoder-less reranker: always takes the heuristic path.
		e.reranker = rerank.NewReranker(nil, e.logger)
	}
	return e, nil
}

// armResult carries one retrieval arm's outcome across the join point.
type armResult struct {
	scored  []rank.Scored
	err     error
	latency time.Duration
}

// Search runs the full retrieval protocol and returns up to k hits plus
// the per-request metrics. Metrics are returned even on error when the
// request got far enough to produce them.
func (e *Engine) Search(ctx context.Context, query string, k int, f filter.Filter, opts Options) ([]SearchHit, *SearchMetrics, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil, dtragerr.InvalidQuery("query is empty")
	}
	if k < 0 || k > e.config.KCap {
		return nil, nil, dtragerr.InvalidQuery(
			fmt.Sprintf("k must be in [0, %d], got %d", e.config.KCap, k))
	}
	opts = e.applyDefaults(opts)
	if opts.CorrelationID == "" {
		opts.CorrelationID = uuid.NewString()
	}

	metrics := &SearchMetrics{CorrelationID: opts.CorrelationID}

	// k = 0 asks for nothing: an empty, error-free result that still
	// shows up in the query metrics.
	if k == 0 {
		metrics.TotalLatency = time.Since(start)
		e.record(query, metrics, 0)
		return []SearchHit{}, metrics, nil
	}

	caller := ctx
	ctx, cancel := context.WithTimeout(ctx, e.config.TotalTimeout)
	defer cancel()

	// Step 1: compile the filter. Fails fast; an unresolvable taxonomy
	// scope never degrades into a looser match.
	compiled, err := e.compiler.Compile(ctx, f)
	if err != nil {
		return nil, nil, err
	}

	// Step 2: cache lookup.
	key := cache.Key(query, compiled.Canonical, compiled.Fingerprint, k)
	if e.cache != nil && !opts.BypassCache {
		if hits, ok := e.cache.Get(key); ok {
			metrics.CacheHit = true
			metrics.TotalLatency = time.Since(start)
			metrics.FusedCandidates = len(hits)
			e.record(query, metrics, len(hits))
			return hits, metrics, nil
		}
	}

	// Step 3: fan out embedding, lexical, and dense retrieval. The dense
	// arm waits on the embedding; the lexical arm starts immediately.
	// Arm failures are captured, not propagated, so one arm's failure
	// cannot cancel the other.
	var (
		lex, dense armResult
		embedErr   error
		embedDone  = make(chan struct{})
		g          errgroup.Group
		queryVec   []float32
	)

	g.Go(func() error {
		defer close(embedDone)
		embedStart := time.Now()
		ectx, ecancel := context.WithTimeout(ctx, e.config.EmbedTimeout)
		defer ecancel()
		queryVec, embedErr = e.embedder.Embed(ectx, query)
		metrics.EmbedLatency = time.Since(embedStart)
		return nil
	})

	g.Go(func() error {
		lctx, lcancel := context.WithTimeout(ctx, e.config.LexicalTimeout)
		defer lcancel()
		armStart := time.Now()
		lex.scored, lex.err = e.lexicalArm(lctx, query, compiled.Predicate, opts.NLex)
		lex.latency = time.Since(armStart)
		return nil
	})

	g.Go(func() error {
		<-embedDone
		armStart := time.Now()
		defer func() { dense.latency = time.Since(armStart) }()
		if embedErr != nil {
			dense.err = dtragerr.Wrap(dtragerr.ErrCodeEmbedFailed, embedErr)
			return nil
		}
		dctx, dcancel := context.WithTimeout(ctx, e.config.DenseTimeout)
		defer dcancel()
		dense.scored, dense.err = e.denseArm(dctx, queryVec, compiled.Predicate, opts.NVec)
		return nil
	})

	_ = g.Wait()

	if caller.Err() != nil {
		return nil, nil, dtragerr.Cancelled(caller.Err())
	}

	metrics.LexicalLatency = lex.latency
	metrics.DenseLatency = dense.latency
	metrics.LexicalCandidates = len(lex.scored)
	metrics.DenseCandidates = len(dense.scored)

	lexOK, denseOK := lex.err == nil, dense.err == nil
	if !lexOK {
		metrics.Degradations = append(metrics.Degradations, dtragerr.ErrCodeLexicalFailed)
		e.logger.Warn("lexical_arm_degraded",
			slog.String("error", lex.err.Error()),
			slog.String("correlation_id", opts.CorrelationID))
	}
	if !denseOK {
		metrics.Degradations = append(metrics.Degradations, dtragerr.ErrCodeDenseFailed)
		e.logger.Warn("dense_arm_degraded",
			slog.String("error", dense.err.Error()),
			slog.String("correlation_id", opts.CorrelationID))
	}

	// Step 4: both arms down is fatal for the request.
	if !lexOK && !denseOK {
		metrics.TotalLatency = time.Since(start)
		e.record(query, metrics, 0)
		return nil, metrics, dtragerr.AllRetrievalFailed(errors.Join(lex.err, dense.err))
	}

	// Step 5: adaptive fusion. A failed arm collapses the weights onto
	// the survivor.
	fusionStart := time.Now()
	fuser := rank.NewFuser(opts.Normalization)
	weights := fuser.AdaptWeights(rank.AnalyzeQuery(query))
	weights = rank.DegradedWeights(weights, lexOK, denseOK)
	fused := fuser.Fuse(lex.scored, dense.scored, weights, 0)
	metrics.FusionLatency = time.Since(fusionStart)
	metrics.FusedCandidates = len(fused)
	metrics.WLex = weights.Lex
	metrics.WDense = weights.Dense

	hits, err := e.hydrate(ctx, fused)
	if err != nil {
		metrics.TotalLatency = time.Since(start)
		e.record(query, metrics, 0)
		return nil, metrics, err
	}

	// Step 6: rerank the top min(2k, len) candidates.
	if opts.EnableRerank && len(hits) > 0 {
		rerankStart := time.Now()
		rctx, rcancel := context.WithTimeout(ctx, e.config.RerankTimeout)
		hits, metrics.RerankPath = e.rerankTop(rctx, query, hits, k)
		rcancel()
		metrics.RerankLatency = time.Since(rerankStart)
	}

	// Step 7: truncate to k.
	if len(hits) > k {
		hits = hits[:k]
	}

	metrics.TotalLatency = time.Since(start)
	e.record(query, metrics, len(hits))

	// Step 8: cache write-back. Cancelled or empty results never reach
	// the cache.
	if e.cache != nil && !opts.BypassCache && len(hits) > 0 && ctx.Err() == nil {
		e.cache.Put(key, hits)
	}

	return hits, metrics, nil
}

// lexicalArm runs BM25 retrieval, over-fetching so the filter predicate
// can thin candidates without starving the request.
func (e *Engine) lexicalArm(ctx context.Context, query string, pred store.ChunkPredicate, n int) ([]rank.Scored, error) {
	results, err := e.lexical.Search(ctx, query, n*overFetchFactor)
	if err != nil {
		return nil, dtragerr.Wrap(dtragerr.ErrCodeLexicalFailed, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	admitted, err := e.admit(ctx, ids, pred)
	if err != nil {
		return nil, dtragerr.Wrap(dtragerr.ErrCodeLexicalFailed, err)
	}

	scored := make([]rank.Scored, 0, min(n, len(results)))
	for _, r := range results {
		if !admitted[r.ChunkID] {
			continue
		}
		scored = append(scored, rank.Scored{ChunkID: r.ChunkID, Score: r.Score})
		if len(scored) == n {
			break
		}
	}
	return scored, nil
}

// denseArm runs ANN retrieval over the query embedding, then applies the
// filter predicate the same way as the lexical arm.
func (e *Engine) denseArm(ctx context.Context, queryVec []float32, pred store.ChunkPredicate, n int) ([]rank.Scored, error) {
	results, err := e.vector.Search(ctx, queryVec, n*overFetchFactor)
	if err != nil {
		return nil, dtragerr.Wrap(dtragerr.ErrCodeDenseFailed, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	admitted, err := e.admit(ctx, ids, pred)
	if err != nil {
		return nil, dtragerr.Wrap(dtragerr.ErrCodeDenseFailed, err)
	}

	scored := make([]rank.Scored, 0, min(n, len(results)))
	for _, r := range results {
		if !admitted[r.ChunkID] {
			continue
		}
		scored = append(scored, rank.Scored{ChunkID: r.ChunkID, Score: r.Score})
		if len(scored) == n {
			break
		}
	}
	return scored, nil
}

// admit evaluates the filter predicate over a candidate batch and returns
// the set of admissible chunk ids. Ids missing from the store are dropped.
func (e *Engine) admit(ctx context.Context, ids []string, pred store.ChunkPredicate) (map[string]bool, error) {
	chunks, err := e.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	admitted := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		ok, err := pred(ctx, c)
		if err != nil {
			return nil, err
		}
		if ok {
			admitted[c.ID] = true
		}
	}
	return admitted, nil
}

// hydrate turns fused candidates into SearchHits with full chunk data,
// preserving fused order.
func (e *Engine) hydrate(ctx context.Context, fused []rank.Fused) ([]SearchHit, error) {
	if len(fused) == 0 {
		return []SearchHit{}, nil
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
	}
	chunks, err := e.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, dtragerr.Wrap(dtragerr.ErrCodeStoreCorrupt, err)
	}
	byID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	hits := make([]SearchHit, 0, len(fused))
	for _, f := range fused {
		c := byID[f.ChunkID]
		if c == nil {
			continue
		}
		hits = append(hits, SearchHit{
			ChunkID:      c.ID,
			Text:         c.Text,
			Title:        c.Title,
			SourceURL:    c.SourceURL,
			TaxonomyPath: c.TaxonomyPath,
			Lexical:      f.Lexical,
			Dense:        f.Dense,
			Fused:        f.Fused,
		})
	}
	return hits, nil
}

// rerankTop reorders the top min(2k, len) hits by rerank score, leaving
// the tail in fused order. Reranking never fails the request.
func (e *Engine) rerankTop(ctx context.Context, query string, hits []SearchHit, k int) ([]SearchHit, string) {
	top := min(2*k, len(hits))

	candidates := make([]rerank.Candidate, top)
	byID := make(map[string]SearchHit, top)
	for i, h := range hits[:top] {
		candidates[i] = rerank.Candidate{
			ChunkID:      h.ChunkID,
			Text:         h.Text,
			SourceURL:    h.SourceURL,
			TaxonomyPath: h.TaxonomyPath,
			Fused:        h.Fused,
		}
		byID[h.ChunkID] = h
	}

	results, path := e.reranker.Rerank(ctx, query, candidates, top)

	reordered := make([]SearchHit, 0, len(hits))
	for _, r := range results {
		h := byID[r.ChunkID]
		h.Rerank = r.Score
		reordered = append(reordered, h)
	}
	reordered = append(reordered, hits[top:]...)
	return reordered, string(path)
}

// record hands the request outcome to the metrics sink, if any.
func (e *Engine) record(query string, m *SearchMetrics, resultCount int) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.SearchEvent{
		Query:        query,
		ResultCount:  resultCount,
		CacheHit:     m.CacheHit,
		Degradations: m.Degradations,
		RerankPath:   m.RerankPath,
		Latency:      m.TotalLatency,
		Timestamp:    time.Now(),
	})
}

// Index embeds and indexes chunks across all three stores. Intended for
// ingestion tooling; serialized against concurrent Index calls.
func (e *Engine) Index(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		ids[i] = c.ID
	}

	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return dtragerr.Wrap(dtragerr.ErrCodeEmbedFailed, err)
	}

	if err := e.chunks.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	if err := e.lexical.Index(ctx, chunks); err != nil {
		return fmt.Errorf("index lexical: %w", err)
	}
	if err := e.vector.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}

	if e.cache != nil {
		e.cache.Purge()
	}
	return nil
}

// InvalidateCache drops cached results for a filter fingerprint. Used on
// taxonomy version change. Returns the number of entries removed.
func (e *Engine) InvalidateCache(filterFingerprint string) int {
	if e.cache == nil {
		return 0
	}
	n := e.cache.InvalidatePrefix(filterFingerprint)
	e.logger.Info("cache_invalidated",
		slog.String("fingerprint", filterFingerprint),
		slog.Int("removed", n))
	return n
}

// ClearCache drops all cached results.
func (e *Engine) ClearCache() {
	if e.cache != nil {
		e.cache.Purge()
	}
}

// EngineStats is a point-in-time view of the engine's stores and cache.
type EngineStats struct {
	Cache        cache.Stats `json:"cache"`
	ChunkCount   int         `json:"chunk_count"`
	VectorCount  int         `json:"vector_count"`
	LexicalCount int         `json:"lexical_count"`
}

// Stats reports cache and index statistics.
func (e *Engine) Stats(ctx context.Context) (EngineStats, error) {
	var s EngineStats
	if e.cache != nil {
		s.Cache = e.cache.Stats()
	}
	n, err := e.chunks.Count(ctx)
	if err != nil {
		return s, fmt.Errorf("count chunks: %w", err)
	}
	s.ChunkCount = n
	s.VectorCount = e.vector.Count()
	if st := e.lexical.Stats(); st != nil {
		s.LexicalCount = st.DocumentCount
	}
	return s, nil
}
