package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunkStore(t *testing.T) *SQLiteChunkStore {
	t.Helper()
	s, err := NewSQLiteChunkStore(filepath.Join(t.TempDir(), "chunks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteChunkStore_SaveAndGetRoundTrip(t *testing.T) {
	s := newTestChunkStore(t)
	ctx := context.Background()

	in := &Chunk{
		ID:           "c1",
		DocumentID:   "doc-1",
		Text:         "chunk body",
		Title:        "Intro",
		SourceURL:    "https://example.com/intro",
		TaxonomyPath: []string{"Tech", "AI", "ML"},
		ContentType:  ContentTypeMarkdown,
		ProcessedAt:  time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC),
		Metadata:     map[string]string{"lang": "en"},
	}
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{in}))

	out, err := s.GetChunk(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.DocumentID, out.DocumentID)
	assert.Equal(t, in.Text, out.Text)
	assert.Equal(t, in.TaxonomyPath, out.TaxonomyPath)
	assert.Equal(t, in.ContentType, out.ContentType)
	assert.True(t, in.ProcessedAt.Equal(out.ProcessedAt))
	assert.Equal(t, "en", out.Metadata["lang"])
}

func TestSQLiteChunkStore_GetChunkMissingReturnsNil(t *testing.T) {
	s := newTestChunkStore(t)

	out, err := s.GetChunk(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestSQLiteChunkStore_GetChunksPreservesOrderSkipsMissing(t *testing.T) {
	s := newTestChunkStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, []*Chunk{
		newTestChunk("a", "first"),
		newTestChunk("b", "second"),
		newTestChunk("c", "third"),
	}))

	out, err := s.GetChunks(ctx, []string{"c", "missing", "a"})
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "c", out[0].ID)
	assert.Equal(t, "a", out[1].ID)
}

func TestSQLiteChunkStore_SaveChunksUpserts(t *testing.T) {
	s := newTestChunkStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, []*Chunk{newTestChunk("a", "v1")}))
	updated := newTestChunk("a", "v2")
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{updated}))

	out, err := s.GetChunk(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v2", out.Text)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteChunkStore_EmptyBatchNoOp(t *testing.T) {
	s := newTestChunkStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, nil))

	out, err := s.GetChunks(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
