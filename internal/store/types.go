// Package store provides the persistence layer for retrieval: a bleve BM25
// lexical index, an HNSW vector index, and a SQLite chunk store.
package store

import (
	"context"
	"fmt"
	"time"
)

// ContentType represents the type of content in a chunk.
type ContentType string

const (
	ContentTypePDF      ContentType = "pdf"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeHTML     ContentType = "html"
	ContentTypePlain    ContentType = "plain"
)

// ContentTypeWhitelist is the set of content types a filter may reference.
var ContentTypeWhitelist = map[ContentType]bool{
	ContentTypePDF:      true,
	ContentTypeMarkdown: true,
	ContentTypeHTML:     true,
	ContentTypePlain:    true,
}

// Chunk is the unit of retrieval. Chunks are created by ingestion and are
// read-only from this package's viewpoint.
type Chunk struct {
	ID           string            // Stable opaque identifier
	DocumentID   string            // Parent document ID
	Text         string            // Chunk text
	Title        string            // Optional document title
	SourceURL    string            // Optional source URL
	TaxonomyPath []string          // Ordered taxonomy labels, root first
	ContentType  ContentType       // pdf, markdown, html, plain
	ProcessedAt  time.Time         // Ingestion timestamp
	Metadata     map[string]string // Application-defined metadata
}

// ChunkPredicate decides whether a chunk is admissible under a compiled
// filter. Implementations may consult external classification data, hence
// the context and error return.
type ChunkPredicate func(ctx context.Context, c *Chunk) (bool, error)

// ChunkStore persists chunk records and serves batch lookups for
// candidate hydration.
type ChunkStore interface {
	// SaveChunks upserts chunk records.
	SaveChunks(ctx context.Context, chunks []*Chunk) error

	// GetChunk returns a single chunk, or nil if absent.
	GetChunk(ctx context.Context, id string) (*Chunk, error)

	// GetChunks returns the chunks for the given ids, preserving input
	// order and skipping ids that do not exist.
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Close releases the underlying database handle.
	Close() error
}

// LexicalResult is a single BM25 search result.
type LexicalResult struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// LexicalStats provides statistics about the lexical index.
type LexicalStats struct {
	DocumentCount int
}

// LexicalIndex provides keyword search scored by BM25.
type LexicalIndex interface {
	// Index adds chunks to the index.
	Index(ctx context.Context, chunks []*Chunk) error

	// Search returns chunks matching query, scored descending.
	Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error)

	// Delete removes chunks from the index.
	Delete(ctx context.Context, chunkIDs []string) error

	// AllIDs returns all chunk IDs in the index (for consistency checks).
	AllIDs() ([]string, error)

	// Stats returns index statistics.
	Stats() *LexicalStats

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// DenseResult is a single vector search result.
type DenseResult struct {
	ChunkID  string
	Distance float32 // Raw cosine distance (0-2), lower is more similar
	Score    float64 // 1 - distance, clamped to [0,1]
}

// VectorIndexConfig configures the vector index.
type VectorIndexConfig struct {
	// Dimensions is the embedding dimension (e.g. 768, 1536, 256 static).
	Dimensions int

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean).
	Metric string

	// M is HNSW max connections per layer.
	M int

	// EfSearch is HNSW query-time search width.
	EfSearch int
}

// DefaultVectorIndexConfig returns sensible defaults for the vector index.
func DefaultVectorIndexConfig(dimensions int) VectorIndexConfig {
	return VectorIndexConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          32,
		EfSearch:   64,
	}
}

// VectorIndex provides approximate nearest neighbor search.
type VectorIndex interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*DenseResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns all vector IDs in the index.
	AllIDs() []string

	// Contains checks if an ID exists.
	Contains(id string) bool

	// Count returns the number of vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
