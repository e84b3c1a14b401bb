// Package search implements the retrieval orchestrator: hybrid
// lexical+dense retrieval with adaptive fusion, optional cross-encoder
// reranking, taxonomy-scoped filtering, and an LRU+TTL result cache.
package search

import (
	"time"

	"github.com/taxonrag/dtrag/internal/cache"
	"github.com/taxonrag/dtrag/internal/rank"
)

// Defaults for per-request options and engine configuration.
const (
	// DefaultNLex is the lexical candidate count per request.
	DefaultNLex = 50

	// DefaultNVec is the dense candidate count per request.
	DefaultNVec = 50

	// DefaultKCap is the hard ceiling on the requested result count.
	DefaultKCap = 200

	// Stage deadlines. The total deadline is the outer bound and may
	// trigger before any per-stage deadline.
	DefaultEmbedTimeout   = 300 * time.Millisecond
	DefaultLexicalTimeout = 500 * time.Millisecond
	DefaultDenseTimeout   = 800 * time.Millisecond
	DefaultRerankTimeout  = 500 * time.Millisecond
	DefaultTotalTimeout   = 1500 * time.Millisecond

	// overFetchFactor is how many extra candidates each arm pulls from
	// its index before the filter predicate thins them out.
	overFetchFactor = 3
)

// SearchHit is a single returned result. Fused is always set; Rerank is
// non-zero only when reranking ran for the request.
type SearchHit struct {
	ChunkID      string   `json:"chunk_id"`
	Text         string   `json:"text"`
	Title        string   `json:"title,omitempty"`
	SourceURL    string   `json:"source_url,omitempty"`
	TaxonomyPath []string `json:"taxonomy_path,omitempty"`

	Lexical float64 `json:"lexical"`
	Dense   float64 `json:"dense"`
	Fused   float64 `json:"fused"`
	Rerank  float64 `json:"rerank"`
}

// SearchMetrics is the per-request observable record.
type SearchMetrics struct {
	TotalLatency   time.Duration `json:"total_latency"`
	EmbedLatency   time.Duration `json:"embed_latency"`
	LexicalLatency time.Duration `json:"lexical_latency"`
	DenseLatency   time.Duration `json:"dense_latency"`
	FusionLatency  time.Duration `json:"fusion_latency"`
	RerankLatency  time.Duration `json:"rerank_latency"`

	LexicalCandidates int `json:"lexical_candidates"`
	DenseCandidates   int `json:"dense_candidates"`
	FusedCandidates   int `json:"fused_candidates"`

	CacheHit bool `json:"cache_hit"`

	// Degradations holds the error codes of stages that failed softly
	// (e.g. one retrieval arm timing out). Empty on a clean request.
	Degradations []string `json:"degradations,omitempty"`

	// WLex and WDense are the fusion weights actually applied.
	WLex   float64 `json:"w_lex"`
	WDense float64 `json:"w_dense"`

	// RerankPath is "cross_encoder" or "heuristic"; empty when
	// reranking did not run.
	RerankPath string `json:"rerank_path,omitempty"`

	CorrelationID string `json:"correlation_id"`
}

// Options are the per-request knobs. Zero values take documented defaults.
type Options struct {
	// NLex and NVec are the candidate counts per retrieval arm.
	NLex int
	NVec int

	// EnableRerank runs the reranker over the top min(2k, fused)
	// candidates.
	EnableRerank bool

	// Normalization overrides the engine's score normalization policy
	// for this request.
	Normalization rank.Policy

	// BypassCache skips both the cache lookup and the cache store.
	BypassCache bool

	// CorrelationID tags logs and metrics; generated when empty.
	CorrelationID string
}

// EngineConfig is the immutable per-instance configuration. Runtime
// changes require constructing a new engine.
type EngineConfig struct {
	EmbedTimeout   time.Duration
	LexicalTimeout time.Duration
	DenseTimeout   time.Duration
	RerankTimeout  time.Duration
	TotalTimeout   time.Duration

	// KCap bounds the requested k. Requests above it are rejected as
	// invalid; k = 0 is a valid no-op request.
	KCap int

	// Normalization is the default score normalization policy.
	Normalization rank.Policy

	// Result cache sizing. DisableCache turns the cache off entirely.
	CacheMaxEntries int
	CacheTTL        time.Duration
	DisableCache    bool
}

// DefaultEngineConfig returns the documented defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		EmbedTimeout:    DefaultEmbedTimeout,
		LexicalTimeout:  DefaultLexicalTimeout,
		DenseTimeout:    DefaultDenseTimeout,
		RerankTimeout:   DefaultRerankTimeout,
		TotalTimeout:    DefaultTotalTimeout,
		KCap:            DefaultKCap,
		Normalization:   rank.PolicyMinMax,
		CacheMaxEntries: cache.DefaultMaxEntries,
		CacheTTL:        cache.DefaultTTL,
	}
}

// withDefaults fills zero-valued fields.
func (c EngineConfig) withDefaults() EngineConfig {
	d := DefaultEngineConfig()
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = d.EmbedTimeout
	}
	if c.LexicalTimeout <= 0 {
		c.LexicalTimeout = d.LexicalTimeout
	}
	if c.DenseTimeout <= 0 {
		c.DenseTimeout = d.DenseTimeout
	}
	if c.RerankTimeout <= 0 {
		c.RerankTimeout = d.RerankTimeout
	}
	if c.TotalTimeout <= 0 {
		c.TotalTimeout = d.TotalTimeout
	}
	if c.KCap <= 0 {
		c.KCap = d.KCap
	}
	if c.Normalization == "" {
		c.Normalization = d.Normalization
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = d.CacheMaxEntries
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	return c
}

// applyDefaults resolves per-request options against the engine config.
func (e *Engine) applyDefaults(opts Options) Options {
	if opts.NLex <= 0 {
		opts.NLex = DefaultNLex
	}
	if opts.NVec <= 0 {
		opts.NVec = DefaultNVec
	}
	if opts.Normalization == "" {
		opts.Normalization = e.config.Normalization
	}
	return opts
}

// cloneHits deep-copies a hit list for defensive cache handoff.
func cloneHits(hits []SearchHit) []SearchHit {
	if hits == nil {
		return nil
	}
	out := make([]SearchHit, len(hits))
	copy(out, hits)
	for i := range out {
		if out[i].TaxonomyPath != nil {
			path := make([]string, len(out[i].TaxonomyPath))
			copy(path, out[i].TaxonomyPath)
			out[i].TaxonomyPath = path
		}
	}
	return out
}
