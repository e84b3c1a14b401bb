// Package taxonomy resolves versioned taxonomy scopes. Each taxonomy
// version is an immutable DAG of nodes; the resolver expands scope roots to
// their full descendant closure with per-version memoization.
package taxonomy

import "context"

// Classification links a document to a taxonomy node with a confidence.
type Classification struct {
	NodeID     string
	Confidence float64
}

// Reader is the read-only contract onto taxonomy data. Implementations
// must be safe for concurrent use.
type Reader interface {
	// ListVersions returns the catalog of known taxonomy versions.
	ListVersions(ctx context.Context) ([]string, error)

	// Children returns the direct children of a node under a version.
	// Unknown nodes and leaves both return an empty list.
	Children(ctx context.Context, version, nodeID string) ([]string, error)

	// Classify returns the taxonomy nodes a document is classified under
	// in the given version, with confidences.
	Classify(ctx context.Context, documentID, version string) ([]Classification, error)
}
