package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dtragerr "github.com/taxonrag/dtrag/internal/errors"
	"github.com/taxonrag/dtrag/internal/store"
)

func mustCompile(t *testing.T, c *Compiler, f Filter) *Compiled {
	t.Helper()
	compiled, err := c.Compile(context.Background(), f)
	require.NoError(t, err)
	return compiled
}

func mustMatch(t *testing.T, compiled *Compiled, ch *store.Chunk) bool {
	t.Helper()
	ok, err := compiled.Predicate(context.Background(), ch)
	require.NoError(t, err)
	return ok
}

func TestCompiler_EmptyFilterMatchesEverything(t *testing.T) {
	reader := newStubReader("v1")
	c := NewCompiler(newTestResolver(reader), reader)

	compiled := mustCompile(t, c, Filter{})

	assert.True(t, mustMatch(t, compiled, &store.Chunk{ID: "c1", ContentType: store.ContentTypePDF}))
	assert.Empty(t, compiled.Binds)
}

func TestCompiler_ContentTypeClause(t *testing.T) {
	reader := newStubReader("v1")
	c := NewCompiler(newTestResolver(reader), reader)

	compiled := mustCompile(t, c, Filter{ContentTypes: []string{"pdf", "markdown"}})

	assert.True(t, mustMatch(t, compiled, &store.Chunk{ContentType: store.ContentTypePDF}))
	assert.True(t, mustMatch(t, compiled, &store.Chunk{ContentType: store.ContentTypeMarkdown}))
	assert.False(t, mustMatch(t, compiled, &store.Chunk{ContentType: store.ContentTypeHTML}))
}

func TestCompiler_DateClauseInclusiveBounds(t *testing.T) {
	reader := newStubReader("v1")
	c := NewCompiler(newTestResolver(reader), reader)

	compiled := mustCompile(t, c, Filter{
		DateFrom: "2025-01-01T00:00:00Z",
		DateTo:   "2025-06-30T00:00:00Z",
	})

	at := func(s string) *store.Chunk {
		ts, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return &store.Chunk{ProcessedAt: ts}
	}

	assert.True(t, mustMatch(t, compiled, at("2025-01-01T00:00:00Z")), "lower bound is inclusive")
	assert.True(t, mustMatch(t, compiled, at("2025-06-30T00:00:00Z")), "upper bound is inclusive")
	assert.True(t, mustMatch(t, compiled, at("2025-03-15T12:00:00Z")))
	assert.False(t, mustMatch(t, compiled, at("2024-12-31T23:59:59Z")))
	assert.False(t, mustMatch(t, compiled, at("2025-06-30T00:00:01Z")))
}

func TestCompiler_OpenEndedDateRange(t *testing.T) {
	reader := newStubReader("v1")
	c := NewCompiler(newTestResolver(reader), reader)

	compiled := mustCompile(t, c, Filter{DateFrom: "2025-01-01T00:00:00Z"})

	early := &store.Chunk{ProcessedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	late := &store.Chunk{ProcessedAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}

	assert.False(t, mustMatch(t, compiled, early))
	assert.True(t, mustMatch(t, compiled, late))
}

func TestCompiler_TaxonomyScopeAdmitsDescendants(t *testing.T) {
	// science -> physics -> quantum; doc-q classified under quantum
	reader := newStubReader("v1")
	reader.addEdge("v1", "science", "physics")
	reader.addEdge("v1", "physics", "quantum")
	reader.classify("v1", "doc-q", "quantum", 0.95)
	reader.classify("v1", "doc-other", "history", 0.95)
	c := NewCompiler(newTestResolver(reader), reader)

	compiled := mustCompile(t, c, Filter{
		TaxonomyNodeIDs: []string{"science"},
		TaxonomyVersion: "v1",
	})

	assert.True(t, mustMatch(t, compiled, &store.Chunk{ID: "c1", DocumentID: "doc-q"}))
	assert.False(t, mustMatch(t, compiled, &store.Chunk{ID: "c2", DocumentID: "doc-other"}))
	assert.False(t, mustMatch(t, compiled, &store.Chunk{ID: "c3", DocumentID: "doc-unclassified"}))
}

func TestCompiler_TaxonomyLeafScopeMatchesSingleNode(t *testing.T) {
	reader := newStubReader("v1")
	reader.addEdge("v1", "science", "physics")
	reader.classify("v1", "doc-p", "physics", 0.9)
	reader.classify("v1", "doc-s", "science", 0.9)
	c := NewCompiler(newTestResolver(reader), reader)

	compiled := mustCompile(t, c, Filter{
		TaxonomyNodeIDs: []string{"physics"},
		TaxonomyVersion: "v1",
	})

	assert.True(t, mustMatch(t, compiled, &store.Chunk{DocumentID: "doc-p"}))
	assert.False(t, mustMatch(t, compiled, &store.Chunk{DocumentID: "doc-s"}),
		"ancestor classification is outside a leaf scope")
}

func TestCompiler_ConfidenceFloorApplies(t *testing.T) {
	reader := newStubReader("v1")
	reader.classify("v1", "doc-strong", "science", 0.85)
	reader.classify("v1", "doc-weak", "science", 0.5)
	c := NewCompiler(newTestResolver(reader), reader)

	compiled := mustCompile(t, c, Filter{
		TaxonomyNodeIDs: []string{"science"},
		TaxonomyVersion: "v1",
		MinConfidence:   0.2, // below the floor, raised to 0.7
	})

	assert.True(t, mustMatch(t, compiled, &store.Chunk{DocumentID: "doc-strong"}))
	assert.False(t, mustMatch(t, compiled, &store.Chunk{DocumentID: "doc-weak"}))
}

func TestCompiler_ClausesCombineByAND(t *testing.T) {
	reader := newStubReader("v1")
	reader.classify("v1", "doc-1", "science", 0.9)
	c := NewCompiler(newTestResolver(reader), reader)

	compiled := mustCompile(t, c, Filter{
		TaxonomyNodeIDs: []string{"science"},
		TaxonomyVersion: "v1",
		ContentTypes:    []string{"pdf"},
	})

	inScope := &store.Chunk{DocumentID: "doc-1", ContentType: store.ContentTypePDF}
	wrongType := &store.Chunk{DocumentID: "doc-1", ContentType: store.ContentTypeHTML}

	assert.True(t, mustMatch(t, compiled, inScope))
	assert.False(t, mustMatch(t, compiled, wrongType))
}

func TestCompiler_RejectsInvalidFilterBeforeBinding(t *testing.T) {
	reader := newStubReader("v1")
	c := NewCompiler(newTestResolver(reader), reader)

	_, err := c.Compile(context.Background(), Filter{ContentTypes: []string{"exe"}})

	require.Error(t, err)
	assert.Equal(t, dtragerr.ErrCodeInvalidFilter, dtragerr.GetCode(err))
}

func TestCompiler_BindsExposeBoundValues(t *testing.T) {
	reader := newStubReader("v1")
	reader.addEdge("v1", "root", "child")
	c := NewCompiler(newTestResolver(reader), reader)

	compiled := mustCompile(t, c, Filter{
		TaxonomyNodeIDs: []string{"root"},
		TaxonomyVersion: "v1",
		ContentTypes:    []string{"plain"},
	})

	assert.Equal(t, []string{"plain"}, compiled.Binds["content_types"])
	assert.Equal(t, "v1", compiled.Binds["taxonomy_version"])
	assert.Equal(t, []string{"child", "root"}, compiled.Binds["taxonomy_nodes"])
	assert.Equal(t, MinConfidenceFloor, compiled.Binds["min_confidence"])
}
