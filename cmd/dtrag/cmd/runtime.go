package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/taxonrag/dtrag/internal/config"
	"github.com/taxonrag/dtrag/internal/embed"
	"github.com/taxonrag/dtrag/internal/filter"
	"github.com/taxonrag/dtrag/internal/rank"
	"github.com/taxonrag/dtrag/internal/rerank"
	"github.com/taxonrag/dtrag/internal/search"
	"github.com/taxonrag/dtrag/internal/store"
	"github.com/taxonrag/dtrag/internal/taxonomy"
	"github.com/taxonrag/dtrag/internal/telemetry"
)

// Data directory layout.
const (
	databaseFile = "dtrag.db"
	lexicalDir   = "lexical.bleve"
	vectorFile   = "vectors.hnsw"
)

// runtime bundles the wired retrieval stack for one CLI invocation.
type runtime struct {
	cfg *config.Config

	db        *sql.DB
	chunks    *store.SQLiteChunkStore
	lexical   *store.BleveLexicalIndex
	vector    *store.HNSWIndex
	embedder  embed.Embedder
	reader    *taxonomy.SQLiteReader
	resolver  *taxonomy.Resolver
	watcher   *taxonomy.Watcher
	reranker  *rerank.Reranker
	collector *telemetry.Collector
	engine    *search.Engine

	cancelWatch context.CancelFunc
}

// openRuntime opens the data directory and wires the engine.
func openRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	rt := &runtime{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	dbPath := filepath.Join(cfg.Data.Dir, databaseFile)
	db, err := store.OpenSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	rt.db = db

	rt.chunks, err = store.NewSQLiteChunkStoreFromDB(db)
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}
	rt.reader, err = taxonomy.NewSQLiteReaderFromDB(db)
	if err != nil {
		return nil, fmt.Errorf("open taxonomy reader: %w", err)
	}
	rt.resolver = taxonomy.NewResolver(rt.reader)

	rt.lexical, err = store.NewBleveLexicalIndex(filepath.Join(cfg.Data.Dir, lexicalDir))
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	rt.embedder, err = embed.NewEmbedder(ctx, embed.FactoryConfig{
		Provider: embed.ProviderType(cfg.Embeddings.Provider),
		Ollama: embed.OllamaConfig{
			Host:       cfg.Embeddings.OllamaHost,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			BatchSize:  cfg.Embeddings.BatchSize,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	rt.vector, err = store.NewHNSWIndex(store.DefaultVectorIndexConfig(rt.embedder.Dimensions()))
	if err != nil {
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	vectorPath := filepath.Join(cfg.Data.Dir, vectorFile)
	if _, err := os.Stat(vectorPath); err == nil {
		if err := rt.vector.Load(vectorPath); err != nil {
			return nil, fmt.Errorf("load vector index: %w", err)
		}
	}

	if cfg.Rerank.Endpoint != "" {
		encCfg := rerank.DefaultHTTPCrossEncoderConfig()
		encCfg.Endpoint = cfg.Rerank.Endpoint
		if cfg.Rerank.Model != "" {
			encCfg.Model = cfg.Rerank.Model
		}
		encoder, err := rerank.NewHTTPCrossEncoder(ctx, encCfg)
		if err != nil {
			slog.Warn("cross_encoder_unavailable", slog.String("error", err.Error()))
		} else {
			rt.reranker = rerank.NewReranker(encoder, slog.Default())
		}
	}

	metricsStore, err := telemetry.NewSQLiteMetricsStore(db)
	if err != nil {
		return nil, fmt.Errorf("open metrics store: %w", err)
	}
	rt.collector = telemetry.NewCollector(metricsStore)

	engineCfg := search.EngineConfig{
		EmbedTimeout:    cfg.Search.EmbedTimeout.D(),
		LexicalTimeout:  cfg.Search.LexicalTimeout.D(),
		DenseTimeout:    cfg.Search.DenseTimeout.D(),
		RerankTimeout:   cfg.Search.RerankTimeout.D(),
		TotalTimeout:    cfg.Search.TotalTimeout.D(),
		KCap:            cfg.Search.KCap,
		Normalization:   rank.Policy(cfg.Search.Normalization),
		CacheMaxEntries: cfg.Cache.MaxEntries,
		CacheTTL:        cfg.Cache.TTL.D(),
		DisableCache:    cfg.Cache.Disabled,
	}

	compiler := filter.NewCompiler(rt.resolver, rt.reader)
	engineOpts := []search.EngineOption{search.WithMetrics(rt.collector)}
	if rt.reranker != nil {
		engineOpts = append(engineOpts, search.WithReranker(rt.reranker))
	}
	rt.engine, err = search.NewEngine(rt.lexical, rt.vector, rt.embedder, rt.chunks, compiler, engineCfg, engineOpts...)
	if err != nil {
		return nil, err
	}

	// Taxonomy edits on disk drop the resolver memo and cached results.
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	rt.cancelWatch = cancelWatch
	rt.watcher = taxonomy.NewWatcher(dbPath, func() {
		rt.resolver.Invalidate()
		rt.engine.ClearCache()
	}, slog.Default())
	if err := rt.watcher.Start(watchCtx); err != nil {
		slog.Warn("taxonomy_watcher_unavailable", slog.String("error", err.Error()))
	}

	ok = true
	return rt, nil
}

// saveIndexes persists the lexical and vector indexes.
func (rt *runtime) saveIndexes() error {
	if err := rt.lexical.Save(filepath.Join(rt.cfg.Data.Dir, lexicalDir)); err != nil {
		return fmt.Errorf("save lexical index: %w", err)
	}
	if err := rt.vector.Save(filepath.Join(rt.cfg.Data.Dir, vectorFile)); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}
	return nil
}

// Close releases all runtime resources.
func (rt *runtime) Close() {
	if rt.cancelWatch != nil {
		rt.cancelWatch()
	}
	if rt.watcher != nil {
		_ = rt.watcher.Stop()
	}
	if rt.collector != nil {
		_ = rt.collector.Close()
	}
	if rt.reranker != nil {
		_ = rt.reranker.Close()
	}
	if rt.embedder != nil {
		_ = rt.embedder.Close()
	}
	if rt.vector != nil {
		_ = rt.vector.Close()
	}
	if rt.lexical != nil {
		_ = rt.lexical.Close()
	}
	if rt.db != nil {
		_ = rt.db.Close()
	}
}
