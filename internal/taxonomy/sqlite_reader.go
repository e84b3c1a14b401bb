package taxonomy

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taxonrag/dtrag/internal/store"
)

// SQLiteReader implements Reader over a SQLite taxonomy database.
// Version catalogs, edges, and document classifications live in three
// tables; all queries are parameterized.
type SQLiteReader struct {
	db    *sql.DB
	owned bool
}

// NewSQLiteReader opens (and migrates) a taxonomy database at path.
func NewSQLiteReader(path string) (*SQLiteReader, error) {
	db, err := store.OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	r := &SQLiteReader{db: db, owned: true}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// NewSQLiteReaderFromDB wraps an existing database handle. The caller keeps
// ownership; Close becomes a no-op.
func NewSQLiteReaderFromDB(db *sql.DB) (*SQLiteReader, error) {
	r := &SQLiteReader{db: db}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SQLiteReader) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS taxonomy_versions (
	version TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS taxonomy_edges (
	version   TEXT NOT NULL,
	parent_id TEXT NOT NULL,
	child_id  TEXT NOT NULL,
	PRIMARY KEY (version, parent_id, child_id)
);
CREATE INDEX IF NOT EXISTS idx_taxonomy_edges_parent ON taxonomy_edges(version, parent_id);
CREATE TABLE IF NOT EXISTS classifications (
	version     TEXT NOT NULL,
	document_id TEXT NOT NULL,
	node_id     TEXT NOT NULL,
	confidence  REAL NOT NULL,
	PRIMARY KEY (version, document_id, node_id)
);
CREATE INDEX IF NOT EXISTS idx_classifications_doc ON classifications(version, document_id);
`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("create taxonomy schema: %w", err)
	}
	return nil
}

// ListVersions returns the catalog of known taxonomy versions.
func (r *SQLiteReader) ListVersions(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version FROM taxonomy_versions ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Children returns the direct children of a node under a version.
func (r *SQLiteReader) Children(ctx context.Context, version, nodeID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT child_id FROM taxonomy_edges
WHERE version = ? AND parent_id = ?
ORDER BY child_id`, version, nodeID)
	if err != nil {
		return nil, fmt.Errorf("children of %s: %w", nodeID, err)
	}
	defer rows.Close()

	children := []string{}
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		children = append(children, child)
	}
	return children, rows.Err()
}

// Classify returns the classifications of a document under a version.
func (r *SQLiteReader) Classify(ctx context.Context, documentID, version string) ([]Classification, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT node_id, confidence FROM classifications
WHERE version = ? AND document_id = ?
ORDER BY node_id`, version, documentID)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", documentID, err)
	}
	defer rows.Close()

	var out []Classification
	for rows.Next() {
		var c Classification
		if err := rows.Scan(&c.NodeID, &c.Confidence); err != nil {
			return nil, fmt.Errorf("scan classification: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveVersion registers a taxonomy version. Used by fixture loading.
func (r *SQLiteReader) SaveVersion(ctx context.Context, version string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO taxonomy_versions (version) VALUES (?)`, version)
	if err != nil {
		return fmt.Errorf("save version %s: %w", version, err)
	}
	return nil
}

// SaveEdge records a parent->child edge under a version.
func (r *SQLiteReader) SaveEdge(ctx context.Context, version, parentID, childID string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT OR IGNORE INTO taxonomy_edges (version, parent_id, child_id)
VALUES (?, ?, ?)`, version, parentID, childID)
	if err != nil {
		return fmt.Errorf("save edge %s->%s: %w", parentID, childID, err)
	}
	return nil
}

// SaveClassification records a document-to-node classification.
func (r *SQLiteReader) SaveClassification(ctx context.Context, version, documentID, nodeID string, confidence float64) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO classifications (version, document_id, node_id, confidence)
VALUES (?, ?, ?, ?)
ON CONFLICT(version, document_id, node_id) DO UPDATE SET confidence = excluded.confidence`,
		version, documentID, nodeID, confidence)
	if err != nil {
		return fmt.Errorf("save classification %s->%s: %w", documentID, nodeID, err)
	}
	return nil
}

// Close releases the database handle if this reader owns it.
func (r *SQLiteReader) Close() error {
	if !r.owned {
		return nil
	}
	return r.db.Close()
}

// Verify interface implementation
var _ Reader = (*SQLiteReader)(nil)
