package embed

import (
	"context"
	"fmt"
	"log/slog"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOllama uses Ollama API for embeddings (default)
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings (deterministic, offline)
	ProviderStatic ProviderType = "static"
)

// FactoryConfig configures embedder construction.
type FactoryConfig struct {
	Provider ProviderType
	Ollama   OllamaConfig

	// DisableCache skips the query-embedding LRU wrapper.
	DisableCache bool
}

// NewEmbedder creates an embedder for the configured provider. Ollama
// selection falls back to the static embedder when the service is
// unreachable; the degradation is logged, never silent.
//
// Query embedding caching is enabled by default.
func NewEmbedder(ctx context.Context, cfg FactoryConfig) (Embedder, error) {
	var embedder Embedder
	var err error

	switch cfg.Provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder()

	case ProviderOllama, "":
		embedder, err = NewOllamaEmbedder(ctx, cfg.Ollama)
		if err != nil {
			slog.Warn("ollama_unavailable_using_static",
				slog.String("error", err.Error()))
			embedder = NewStaticEmbedder()
		}

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if !cfg.DisableCache {
		embedder = NewCachedEmbedder(embedder, DefaultEmbeddingCacheSize)
	}

	return embedder, nil
}
