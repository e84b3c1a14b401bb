package taxonomy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dtragerr "github.com/taxonrag/dtrag/internal/errors"
)

// fakeReader is an in-memory Reader with call counting for memoization
// assertions.
type fakeReader struct {
	mu            sync.Mutex
	versions      []string
	edges         map[string]map[string][]string // version -> parent -> children
	childrenCalls int
	versionCalls  int
}

func newFakeReader(versions ...string) *fakeReader {
	return &fakeReader{
		versions: versions,
		edges:    make(map[string]map[string][]string),
	}
}

func (f *fakeReader) addEdge(version, parent, child string) {
	if f.edges[version] == nil {
		f.edges[version] = make(map[string][]string)
	}
	f.edges[version][parent] = append(f.edges[version][parent], child)
}

func (f *fakeReader) ListVersions(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versionCalls++
	return f.versions, nil
}

func (f *fakeReader) Children(ctx context.Context, version, nodeID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.childrenCalls++
	return f.edges[version][nodeID], nil
}

func (f *fakeReader) Classify(ctx context.Context, documentID, version string) ([]Classification, error) {
	return nil, nil
}

func TestResolver_Descendants_FullClosure(t *testing.T) {
	// Given: root -> {a, b}, a -> {a1}
	r := newFakeReader("v1")
	r.addEdge("v1", "root", "a")
	r.addEdge("v1", "root", "b")
	r.addEdge("v1", "a", "a1")
	resolver := NewResolver(r)

	closure, err := resolver.Descendants(context.Background(), "v1", []string{"root"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "a1", "b", "root"}, closure)
}

func TestResolver_Descendants_LeafNodeIsItsOwnClosure(t *testing.T) {
	r := newFakeReader("v1")
	r.addEdge("v1", "root", "leaf")
	resolver := NewResolver(r)

	closure, err := resolver.Descendants(context.Background(), "v1", []string{"leaf"})
	require.NoError(t, err)

	assert.Equal(t, []string{"leaf"}, closure)
}

func TestResolver_Descendants_MultipleRootsUnion(t *testing.T) {
	r := newFakeReader("v1")
	r.addEdge("v1", "x", "x1")
	r.addEdge("v1", "y", "y1")
	resolver := NewResolver(r)

	closure, err := resolver.Descendants(context.Background(), "v1", []string{"x", "y"})
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "x1", "y", "y1"}, closure)
}

func TestResolver_Descendants_EmptyRootsEmptyClosure(t *testing.T) {
	resolver := NewResolver(newFakeReader("v1"))

	closure, err := resolver.Descendants(context.Background(), "v1", nil)
	require.NoError(t, err)

	assert.Empty(t, closure)
}

func TestResolver_Descendants_SharedDescendantVisitedOnce(t *testing.T) {
	// DAG, not a tree: both a and b point at shared
	r := newFakeReader("v1")
	r.addEdge("v1", "root", "a")
	r.addEdge("v1", "root", "b")
	r.addEdge("v1", "a", "shared")
	r.addEdge("v1", "b", "shared")
	resolver := NewResolver(r)

	closure, err := resolver.Descendants(context.Background(), "v1", []string{"root"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "root", "shared"}, closure)
}

func TestResolver_Descendants_CycleRaisesTaxonomyCorrupt(t *testing.T) {
	r := newFakeReader("v1")
	r.addEdge("v1", "a", "b")
	r.addEdge("v1", "b", "c")
	r.addEdge("v1", "c", "a")
	resolver := NewResolver(r)

	_, err := resolver.Descendants(context.Background(), "v1", []string{"a"})

	require.Error(t, err)
	var re *dtragerr.RetrievalError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, dtragerr.ErrCodeTaxonomyCorrupt, re.Code)
}

func TestResolver_Descendants_MemoizedClosureSkipsReader(t *testing.T) {
	r := newFakeReader("v1")
	r.addEdge("v1", "root", "a")
	resolver := NewResolver(r)
	ctx := context.Background()

	_, err := resolver.Descendants(ctx, "v1", []string{"root"})
	require.NoError(t, err)
	callsAfterFirst := r.childrenCalls

	// Same roots in a different order hit the same memo entry
	_, err = resolver.Descendants(ctx, "v1", []string{"root"})
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, r.childrenCalls)
}

func TestResolver_Invalidate_DropsMemo(t *testing.T) {
	r := newFakeReader("v1")
	r.addEdge("v1", "root", "a")
	resolver := NewResolver(r)
	ctx := context.Background()

	_, err := resolver.Descendants(ctx, "v1", []string{"root"})
	require.NoError(t, err)
	callsAfterFirst := r.childrenCalls

	resolver.Invalidate()

	_, err = resolver.Descendants(ctx, "v1", []string{"root"})
	require.NoError(t, err)

	assert.Greater(t, r.childrenCalls, callsAfterFirst)
}

func TestResolver_VersionExists(t *testing.T) {
	resolver := NewResolver(newFakeReader("1.8.1", "2.0.0"))
	ctx := context.Background()

	ok, err := resolver.VersionExists(ctx, "1.8.1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = resolver.VersionExists(ctx, "9.9.9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolver_VersionExists_CachesCatalog(t *testing.T) {
	r := newFakeReader("v1")
	resolver := NewResolver(r)
	ctx := context.Background()

	_, err := resolver.VersionExists(ctx, "v1")
	require.NoError(t, err)
	callsAfterFirst := r.versionCalls

	_, err = resolver.VersionExists(ctx, "v1")
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, r.versionCalls)
}

func TestResolver_Descendants_ReturnsDefensiveCopy(t *testing.T) {
	r := newFakeReader("v1")
	r.addEdge("v1", "root", "a")
	resolver := NewResolver(r)
	ctx := context.Background()

	first, err := resolver.Descendants(ctx, "v1", []string{"root"})
	require.NoError(t, err)
	first[0] = "mutated"

	second, err := resolver.Descendants(ctx, "v1", []string{"root"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "root"}, second)
}
