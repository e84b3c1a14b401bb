package taxonomy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReader(t *testing.T) *SQLiteReader {
	t.Helper()
	r, err := NewSQLiteReader(filepath.Join(t.TempDir(), "taxonomy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSQLiteReader_VersionsRoundTrip(t *testing.T) {
	r := newTestReader(t)
	ctx := context.Background()

	require.NoError(t, r.SaveVersion(ctx, "2.0.0"))
	require.NoError(t, r.SaveVersion(ctx, "1.8.1"))
	// Duplicate save is a no-op
	require.NoError(t, r.SaveVersion(ctx, "1.8.1"))

	versions, err := r.ListVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.8.1", "2.0.0"}, versions)
}

func TestSQLiteReader_ChildrenRoundTrip(t *testing.T) {
	r := newTestReader(t)
	ctx := context.Background()

	require.NoError(t, r.SaveEdge(ctx, "v1", "root", "b"))
	require.NoError(t, r.SaveEdge(ctx, "v1", "root", "a"))
	require.NoError(t, r.SaveEdge(ctx, "v2", "root", "c"))

	children, err := r.Children(ctx, "v1", "root")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, children)

	// Leaves and unknown nodes return an empty, non-nil slice
	children, err = r.Children(ctx, "v1", "a")
	require.NoError(t, err)
	assert.NotNil(t, children)
	assert.Empty(t, children)
}

func TestSQLiteReader_ClassifyRoundTrip(t *testing.T) {
	r := newTestReader(t)
	ctx := context.Background()

	require.NoError(t, r.SaveClassification(ctx, "v1", "doc-1", "node-a", 0.92))
	require.NoError(t, r.SaveClassification(ctx, "v1", "doc-1", "node-b", 0.71))
	// Upsert replaces confidence
	require.NoError(t, r.SaveClassification(ctx, "v1", "doc-1", "node-a", 0.95))

	got, err := r.Classify(ctx, "doc-1", "v1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Classification{NodeID: "node-a", Confidence: 0.95}, got[0])
	assert.Equal(t, Classification{NodeID: "node-b", Confidence: 0.71}, got[1])

	got, err = r.Classify(ctx, "doc-unknown", "v1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteReader_ResolverIntegration(t *testing.T) {
	r := newTestReader(t)
	ctx := context.Background()

	require.NoError(t, r.SaveVersion(ctx, "v1"))
	require.NoError(t, r.SaveEdge(ctx, "v1", "science", "physics"))
	require.NoError(t, r.SaveEdge(ctx, "v1", "science", "biology"))
	require.NoError(t, r.SaveEdge(ctx, "v1", "physics", "quantum"))

	resolver := NewResolver(r)

	ok, err := resolver.VersionExists(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, ok)

	closure, err := resolver.Descendants(ctx, "v1", []string{"science"})
	require.NoError(t, err)
	assert.Equal(t, []string{"biology", "physics", "quantum", "science"}, closure)
}
