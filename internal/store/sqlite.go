package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// sqliteBusyTimeoutMS bounds how long a write waits on a locked database.
const sqliteBusyTimeoutMS = 5000

// SQLiteChunkStore persists chunks in SQLite using the pure Go driver.
type SQLiteChunkStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL journaling. The returned
// handle is shared and safe for concurrent use; writes are serialized by
// limiting the pool to a single connection.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d",
		path, sqliteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// modernc.org/sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY churn under concurrent use
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return db, nil
}

// NewSQLiteChunkStore creates a chunk store backed by the given database
// path and creates the schema if absent. Use ":memory:" for tests.
func NewSQLiteChunkStore(path string) (*SQLiteChunkStore, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	s := &SQLiteChunkStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteChunkStoreFromDB wraps an existing database handle. The caller
// keeps ownership of the handle; Close becomes a no-op.
func NewSQLiteChunkStoreFromDB(db *sql.DB) (*SQLiteChunkStore, error) {
	s := &SQLiteChunkStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteChunkStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id            TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL,
	text          TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	taxonomy_path TEXT NOT NULL DEFAULT '[]',
	content_type  TEXT NOT NULL,
	processed_at  TEXT NOT NULL,
	metadata      TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create chunks schema: %w", err)
	}
	return nil
}

// SaveChunks upserts chunk records in a single transaction.
func (s *SQLiteChunkStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (id, document_id, text, title, source_url, taxonomy_path, content_type, processed_at, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	document_id = excluded.document_id,
	text = excluded.text,
	title = excluded.title,
	source_url = excluded.source_url,
	taxonomy_path = excluded.taxonomy_path,
	content_type = excluded.content_type,
	processed_at = excluded.processed_at,
	metadata = excluded.metadata`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		pathJSON, err := json.Marshal(c.TaxonomyPath)
		if err != nil {
			return fmt.Errorf("marshal taxonomy path for %s: %w", c.ID, err)
		}
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", c.ID, err)
		}

		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.Text, c.Title, c.SourceURL,
			string(pathJSON), string(c.ContentType),
			c.ProcessedAt.UTC().Format(time.RFC3339Nano), string(metaJSON),
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetChunk returns a single chunk, or nil if absent.
func (s *SQLiteChunkStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, document_id, text, title, source_url, taxonomy_path, content_type, processed_at, metadata
FROM chunks WHERE id = ?`, id)

	c, err := scanChunk(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", id, err)
	}
	return c, nil
}

// GetChunks returns the chunks for the given ids, preserving input order
// and skipping ids that do not exist.
func (s *SQLiteChunkStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, document_id, text, title, source_url, taxonomy_path, content_type, processed_at, metadata
FROM chunks WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	out := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Count returns the number of stored chunks.
func (s *SQLiteChunkStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *SQLiteChunkStore) Close() error {
	return s.db.Close()
}

// scanChunk decodes one chunk row using the provided scan function.
func scanChunk(scan func(dest ...any) error) (*Chunk, error) {
	var c Chunk
	var pathJSON, metaJSON, contentType, processedAt string

	if err := scan(&c.ID, &c.DocumentID, &c.Text, &c.Title, &c.SourceURL,
		&pathJSON, &contentType, &processedAt, &metaJSON); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(pathJSON), &c.TaxonomyPath); err != nil {
		return nil, fmt.Errorf("decode taxonomy path: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	c.ContentType = ContentType(contentType)

	ts, err := time.Parse(time.RFC3339Nano, processedAt)
	if err != nil {
		return nil, fmt.Errorf("decode processed_at: %w", err)
	}
	c.ProcessedAt = ts

	return &c, nil
}

// Verify interface implementation
var _ ChunkStore = (*SQLiteChunkStore)(nil)
