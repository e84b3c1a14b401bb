package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/taxonrag/dtrag/internal/config"
	"github.com/taxonrag/dtrag/internal/store"
)

// corpusFile is the JSON ingestion format: a taxonomy snapshot plus the
// document chunks to index.
type corpusFile struct {
	Taxonomy *taxonomySnapshot `json:"taxonomy,omitempty"`
	Chunks   []corpusChunk     `json:"chunks"`
}

type taxonomySnapshot struct {
	Version         string                 `json:"version"`
	Edges           []taxonomyEdge         `json:"edges"`
	Classifications []corpusClassification `json:"classifications"`
}

type taxonomyEdge struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

type corpusClassification struct {
	DocumentID string  `json:"document_id"`
	NodeID     string  `json:"node_id"`
	Confidence float64 `json:"confidence"`
}

type corpusChunk struct {
	ID           string            `json:"id"`
	DocumentID   string            `json:"document_id"`
	Text         string            `json:"text"`
	Title        string            `json:"title,omitempty"`
	SourceURL    string            `json:"source_url,omitempty"`
	TaxonomyPath []string          `json:"taxonomy_path,omitempty"`
	ContentType  string            `json:"content_type"`
	ProcessedAt  time.Time         `json:"processed_at,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

const indexBatchSize = 64

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <corpus.json>",
		Short: "Index a corpus file into the local stores",
		Long: `Index reads a JSON corpus file containing document chunks and an
optional taxonomy snapshot, embeds the chunks, and writes the lexical,
vector, and metadata stores under the data directory.

Only one index run may hold the data directory at a time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args[0])
		},
	}
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, corpusPath string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return err
	}

	data, err := os.ReadFile(corpusPath)
	if err != nil {
		return fmt.Errorf("read corpus: %w", err)
	}
	var corpus corpusFile
	if err := json.Unmarshal(data, &corpus); err != nil {
		return fmt.Errorf("parse corpus %s: %w", corpusPath, err)
	}
	if len(corpus.Chunks) == 0 {
		return fmt.Errorf("corpus contains no chunks")
	}

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	lock := store.NewIndexLock(cfg.Data.Dir)
	held, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire index lock: %w", err)
	}
	if !held {
		return fmt.Errorf("another index run holds %s", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if corpus.Taxonomy != nil {
		if err := loadTaxonomy(ctx, rt, corpus.Taxonomy); err != nil {
			return err
		}
	}

	start := time.Now()
	chunks := make([]*store.Chunk, len(corpus.Chunks))
	for i, c := range corpus.Chunks {
		processedAt := c.ProcessedAt
		if processedAt.IsZero() {
			processedAt = time.Now().UTC()
		}
		chunks[i] = &store.Chunk{
			ID:           c.ID,
			DocumentID:   c.DocumentID,
			Text:         c.Text,
			Title:        c.Title,
			SourceURL:    c.SourceURL,
			TaxonomyPath: c.TaxonomyPath,
			ContentType:  store.ContentType(c.ContentType),
			ProcessedAt:  processedAt,
			Metadata:     c.Metadata,
		}
	}

	for i := 0; i < len(chunks); i += indexBatchSize {
		end := min(i+indexBatchSize, len(chunks))
		if err := rt.engine.Index(ctx, chunks[i:end]); err != nil {
			return fmt.Errorf("index batch %d-%d: %w", i, end, err)
		}
	}

	if err := rt.saveIndexes(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks in %s (model: %s)\n",
		len(chunks), time.Since(start).Round(time.Millisecond), rt.embedder.ModelName())
	return nil
}

func loadTaxonomy(ctx context.Context, rt *runtime, snap *taxonomySnapshot) error {
	if snap.Version == "" {
		return fmt.Errorf("taxonomy snapshot missing version")
	}
	if err := rt.reader.SaveVersion(ctx, snap.Version); err != nil {
		return fmt.Errorf("save taxonomy version: %w", err)
	}
	for _, e := range snap.Edges {
		if err := rt.reader.SaveEdge(ctx, snap.Version, e.Parent, e.Child); err != nil {
			return fmt.Errorf("save taxonomy edge %s->%s: %w", e.Parent, e.Child, err)
		}
	}
	for _, cl := range snap.Classifications {
		if err := rt.reader.SaveClassification(ctx, snap.Version, cl.DocumentID, cl.NodeID, cl.Confidence); err != nil {
			return fmt.Errorf("save classification %s: %w", cl.DocumentID, err)
		}
	}
	rt.resolver.Invalidate()
	return nil
}
