package filter

import (
	"context"
	"sync"
	"time"

	"github.com/taxonrag/dtrag/internal/store"
	"github.com/taxonrag/dtrag/internal/taxonomy"
)

// Compiled is a validated filter bound to concrete values. The predicate
// closes over the bound values; user strings never reach a query text by
// interpolation.
type Compiled struct {
	Filter      Filter
	Canonical   []byte
	Fingerprint string

	// Binds holds the values the predicate was bound to, keyed by
	// constraint name. Exposed for logging and debugging.
	Binds map[string]any

	// Predicate reports whether a chunk satisfies the filter. Always
	// non-nil; an empty filter compiles to an always-true predicate.
	// Safe for concurrent use.
	Predicate store.ChunkPredicate
}

// Compiler turns Filter records into Compiled predicates. Taxonomy scopes
// expand through the resolver; classification lookups go through the
// reader and are memoized per compiled filter.
type Compiler struct {
	resolver *taxonomy.Resolver
	reader   taxonomy.Reader
}

// NewCompiler creates a compiler over the given taxonomy resolver and
// reader.
func NewCompiler(resolver *taxonomy.Resolver, reader taxonomy.Reader) *Compiler {
	return &Compiler{resolver: resolver, reader: reader}
}

// Compile validates the filter and builds its predicate. Fails with
// InvalidFilter on any rule violation; an unresolvable taxonomy scope
// never degrades into a looser match.
func (c *Compiler) Compile(ctx context.Context, f Filter) (*Compiled, error) {
	if err := f.Validate(ctx, c.resolver); err != nil {
		return nil, err
	}

	compiled := &Compiled{
		Filter:      f,
		Canonical:   f.Canonical(),
		Fingerprint: f.Fingerprint(),
		Binds:       make(map[string]any),
	}

	var clauses []store.ChunkPredicate

	if len(f.ContentTypes) > 0 {
		allowed := make(map[store.ContentType]bool, len(f.ContentTypes))
		for _, ct := range f.ContentTypes {
			allowed[store.ContentType(ct)] = true
		}
		compiled.Binds["content_types"] = sortedCopy(f.ContentTypes)
		clauses = append(clauses, func(ctx context.Context, ch *store.Chunk) (bool, error) {
			return allowed[ch.ContentType], nil
		})
	}

	from, to, err := f.dateBounds()
	if err != nil {
		return nil, err
	}
	if !from.IsZero() || !to.IsZero() {
		if !from.IsZero() {
			compiled.Binds["date_from"] = from
		}
		if !to.IsZero() {
			compiled.Binds["date_to"] = to
		}
		clauses = append(clauses, dateClause(from, to))
	}

	if len(f.TaxonomyNodeIDs) > 0 {
		closure, err := c.resolver.Descendants(ctx, f.TaxonomyVersion, f.TaxonomyNodeIDs)
		if err != nil {
			return nil, err
		}
		admissible := make(map[string]bool, len(closure))
		for _, node := range closure {
			admissible[node] = true
		}
		compiled.Binds["taxonomy_version"] = f.TaxonomyVersion
		compiled.Binds["taxonomy_nodes"] = closure
		compiled.Binds["min_confidence"] = f.EffectiveMinConfidence()
		clauses = append(clauses, c.taxonomyClause(f.TaxonomyVersion, admissible, f.EffectiveMinConfidence()))
	}

	compiled.Predicate = conjoin(clauses)
	return compiled, nil
}

// dateClause binds an inclusive [from, to] range on processed_at. A zero
// bound is open on that side.
func dateClause(from, to time.Time) store.ChunkPredicate {
	return func(ctx context.Context, ch *store.Chunk) (bool, error) {
		if !from.IsZero() && ch.ProcessedAt.Before(from) {
			return false, nil
		}
		if !to.IsZero() && ch.ProcessedAt.After(to) {
			return false, nil
		}
		return true, nil
	}
}

// taxonomyClause admits a chunk whose document is classified under at
// least one admissible node with sufficient confidence. Classifications
// are memoized per document for the lifetime of the compiled filter.
func (c *Compiler) taxonomyClause(version string, admissible map[string]bool, minConfidence float64) store.ChunkPredicate {
	var mu sync.Mutex
	memo := make(map[string]bool)

	return func(ctx context.Context, ch *store.Chunk) (bool, error) {
		mu.Lock()
		if ok, seen := memo[ch.DocumentID]; seen {
			mu.Unlock()
			return ok, nil
		}
		mu.Unlock()

		classes, err := c.reader.Classify(ctx, ch.DocumentID, version)
		if err != nil {
			return false, err
		}

		match := false
		for _, cl := range classes {
			if admissible[cl.NodeID] && cl.Confidence >= minConfidence {
				match = true
				break
			}
		}

		mu.Lock()
		memo[ch.DocumentID] = match
		mu.Unlock()
		return match, nil
	}
}

// conjoin ANDs the clauses; no clauses means match-all.
func conjoin(clauses []store.ChunkPredicate) store.ChunkPredicate {
	if len(clauses) == 0 {
		return func(ctx context.Context, ch *store.Chunk) (bool, error) {
			return true, nil
		}
	}
	return func(ctx context.Context, ch *store.Chunk) (bool, error) {
		for _, clause := range clauses {
			ok, err := clause(ctx, ch)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}
