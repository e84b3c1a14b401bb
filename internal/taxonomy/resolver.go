package taxonomy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	dtragerr "github.com/taxonrag/dtrag/internal/errors"
)

// Resolver expands taxonomy scope roots to descendant closures.
//
// Adjacency lists and computed closures are memoized per version. Versions
// are immutable, so memos stay valid until the catalog itself changes; a
// catalog change (or an external invalidation signal such as a taxonomy
// file watcher) clears them.
type Resolver struct {
	reader Reader

	mu       sync.RWMutex
	versions map[string]bool     // catalog snapshot
	children map[string][]string // (version, node) -> child ids
	closures map[string][]string // (version, roots) -> sorted closure
}

// NewResolver creates a resolver over the given reader.
func NewResolver(reader Reader) *Resolver {
	return &Resolver{
		reader:   reader,
		children: make(map[string][]string),
		closures: make(map[string][]string),
	}
}

// VersionExists reports whether version is in the reader's catalog.
// The catalog is cached; a miss refreshes it once, and a changed catalog
// invalidates all memoized adjacency and closures.
func (r *Resolver) VersionExists(ctx context.Context, version string) (bool, error) {
	r.mu.RLock()
	if r.versions != nil && r.versions[version] {
		r.mu.RUnlock()
		return true, nil
	}
	r.mu.RUnlock()

	listed, err := r.reader.ListVersions(ctx)
	if err != nil {
		return false, fmt.Errorf("list taxonomy versions: %w", err)
	}

	fresh := make(map[string]bool, len(listed))
	for _, v := range listed {
		fresh[v] = true
	}

	r.mu.Lock()
	if !sameCatalog(r.versions, fresh) {
		r.children = make(map[string][]string)
		r.closures = make(map[string][]string)
	}
	r.versions = fresh
	r.mu.Unlock()

	return fresh[version], nil
}

// Descendants returns the union of the root ids and all their transitive
// descendants under the given version, sorted ascending. Traversal is
// O(E) in the edges reachable from the roots. A cycle in the reachable
// subgraph raises TaxonomyCorrupt.
func (r *Resolver) Descendants(ctx context.Context, version string, roots []string) ([]string, error) {
	if len(roots) == 0 {
		return []string{}, nil
	}

	key := closureKey(version, roots)
	r.mu.RLock()
	if memo, ok := r.closures[key]; ok {
		r.mu.RUnlock()
		out := make([]string, len(memo))
		copy(out, memo)
		return out, nil
	}
	r.mu.RUnlock()

	closure, err := r.expand(ctx, version, roots)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.closures[key] = closure
	r.mu.Unlock()

	out := make([]string, len(closure))
	copy(out, closure)
	return out, nil
}

// node traversal colors for cycle detection
const (
	colorGray  = 1 // on the current DFS path
	colorBlack = 2 // fully explored
)

// expand runs a depth-first traversal from the roots, detecting cycles via
// gray/black coloring.
func (r *Resolver) expand(ctx context.Context, version string, roots []string) ([]string, error) {
	colors := make(map[string]int)

	var visit func(node string) error
	visit = func(node string) error {
		switch colors[node] {
		case colorGray:
			return dtragerr.TaxonomyCorrupt(
				fmt.Sprintf("cycle detected at node %q in version %q", node, version))
		case colorBlack:
			return nil
		}
		colors[node] = colorGray

		kids, err := r.childrenOf(ctx, version, node)
		if err != nil {
			return err
		}
		for _, child := range kids {
			if err := visit(child); err != nil {
				return err
			}
		}

		colors[node] = colorBlack
		return nil
	}

	for _, root := range roots {
		if err := visit(root); err != nil {
			return nil, err
		}
	}

	closure := make([]string, 0, len(colors))
	for node := range colors {
		closure = append(closure, node)
	}
	sort.Strings(closure)
	return closure, nil
}

// childrenOf returns memoized children for (version, node).
func (r *Resolver) childrenOf(ctx context.Context, version, node string) ([]string, error) {
	key := version + "\x00" + node

	r.mu.RLock()
	kids, ok := r.children[key]
	r.mu.RUnlock()
	if ok {
		return kids, nil
	}

	kids, err := r.reader.Children(ctx, version, node)
	if err != nil {
		return nil, fmt.Errorf("children of %q in version %q: %w", node, version, err)
	}

	r.mu.Lock()
	r.children[key] = kids
	r.mu.Unlock()
	return kids, nil
}

// Invalidate drops all memoized state. Called when taxonomy data changes
// out from under the process (e.g. by the taxonomy file watcher).
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions = nil
	r.children = make(map[string][]string)
	r.closures = make(map[string][]string)
}

// closureKey builds a deterministic memo key from version and roots.
func closureKey(version string, roots []string) string {
	sorted := make([]string, len(roots))
	copy(sorted, roots)
	sort.Strings(sorted)
	return version + "\x00" + strings.Join(sorted, "\x00")
}

func sameCatalog(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if !b[v] {
			return false
		}
	}
	return true
}
