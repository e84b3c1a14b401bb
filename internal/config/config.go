// Package config loads and validates the dtrag configuration from YAML
// files and environment overrides. The retrieval library itself takes
// explicit structs; this package serves the CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete dtrag configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Data       DataConfig       `yaml:"data"`
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Rerank     RerankConfig     `yaml:"rerank"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DataConfig locates the on-disk stores.
type DataConfig struct {
	// Dir is the data directory holding the SQLite database and the
	// lexical/vector index files.
	Dir string `yaml:"dir"`
}

// SearchConfig tunes the retrieval pipeline.
type SearchConfig struct {
	// NLex and NVec are the per-arm candidate counts.
	NLex int `yaml:"n_lex"`
	NVec int `yaml:"n_vec"`

	// KCap bounds the requested result count.
	KCap int `yaml:"k_cap"`

	// Normalization selects the score normalization policy:
	// minmax, zscore, or rrank.
	Normalization string `yaml:"normalization"`

	// EnableRerank turns reranking on by default for CLI searches.
	EnableRerank bool `yaml:"enable_rerank"`

	// Stage timeouts.
	EmbedTimeout   Duration `yaml:"embed_timeout"`
	LexicalTimeout Duration `yaml:"lexical_timeout"`
	DenseTimeout   Duration `yaml:"dense_timeout"`
	RerankTimeout  Duration `yaml:"rerank_timeout"`
	TotalTimeout   Duration `yaml:"total_timeout"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" or "static".
	Provider string `yaml:"provider"`

	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host"`
}

// RerankConfig configures the optional cross-encoder service.
type RerankConfig struct {
	// Endpoint of the scoring service; empty disables the cross-encoder
	// (the heuristic path still runs).
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// CacheConfig sizes the result cache.
type CacheConfig struct {
	MaxEntries int      `yaml:"max_entries"`
	TTL        Duration `yaml:"ttl"`
	Disabled   bool     `yaml:"disabled"`
}

// LoggingConfig configures file logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Data: DataConfig{
			Dir: defaultDataDir(),
		},
		Search: SearchConfig{
			NLex:           50,
			NVec:           50,
			KCap:           200,
			Normalization:  "minmax",
			EmbedTimeout:   Duration(300 * time.Millisecond),
			LexicalTimeout: Duration(500 * time.Millisecond),
			DenseTimeout:   Duration(800 * time.Millisecond),
			RerankTimeout:  Duration(500 * time.Millisecond),
			TotalTimeout:   Duration(1500 * time.Millisecond),
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "embeddinggemma",
			Dimensions: 768,
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
		},
		Cache: CacheConfig{
			MaxEntries: 1000,
			TTL:        Duration(time.Hour),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".dtrag")
	}
	return filepath.Join(home, ".dtrag")
}

// ConfigFileName is the per-directory config file.
const ConfigFileName = ".dtrag.yaml"

// Load reads configuration with precedence: defaults, then the config
// file in dir (if present), then environment overrides.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies DTRAG_* environment variables, which take
// precedence over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DTRAG_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("DTRAG_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("DTRAG_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DTRAG_RERANK_ENDPOINT"); v != "" {
		c.Rerank.Endpoint = v
	}
	if v := os.Getenv("DTRAG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DTRAG_CACHE_DISABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Cache.Disabled = b
		}
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir must be set")
	}
	if c.Search.NLex <= 0 || c.Search.NVec <= 0 {
		return fmt.Errorf("search.n_lex and search.n_vec must be positive")
	}
	if c.Search.KCap <= 0 {
		return fmt.Errorf("search.k_cap must be positive")
	}
	switch c.Search.Normalization {
	case "minmax", "zscore", "rrank":
	default:
		return fmt.Errorf("search.normalization must be minmax, zscore, or rrank (got %q)", c.Search.Normalization)
	}
	switch c.Embeddings.Provider {
	case "ollama", "static":
	default:
		return fmt.Errorf("embeddings.provider must be ollama or static (got %q)", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	return nil
}

// WriteYAML writes the configuration to path, creating parent
// directories as needed.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
