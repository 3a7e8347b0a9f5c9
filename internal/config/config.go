package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env" toml:"api_key_env"`
	Model             string  `yaml:"model" toml:"model"`
	Dimension         int     `yaml:"dimension,omitempty" toml:"dimension,omitempty"`
	TimeoutSecs       int     `yaml:"timeout_secs" toml:"timeout_secs"`
	BatchSize         int     `yaml:"batch_size" toml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" toml:"requests_per_second,omitempty"`
	MaxRetries        int     `yaml:"max_retries" toml:"max_retries"`
}

// HashingEmbedderConfig configures the local feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension" toml:"dimension"`
}

// EmbedderConfig selects and configures the dense embedder implementation.
// Sparse vectors always come from the lexical embedder.
type EmbedderConfig struct {
	Type    string                 `yaml:"type" toml:"type"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty" toml:"hashing,omitempty"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty" toml:"openai,omitempty"`
}

// ChunkerConfig configures how pages are turned into chunks.
type ChunkerConfig struct {
	ColumnThreshold float64 `yaml:"column_threshold" toml:"column_threshold"`
	MinFontSize     float64 `yaml:"min_font_size" toml:"min_font_size"`
	ActivityMarker  string  `yaml:"activity_marker" toml:"activity_marker"`
	Workers         int     `yaml:"workers" toml:"workers"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type string `yaml:"type" toml:"type"`
	// Quantize enables int8 scalar quantization of dense vectors where supported.
	Quantize bool          `yaml:"quantize" toml:"quantize"`
	Qdrant   *QdrantConfig `yaml:"qdrant,omitempty" toml:"qdrant,omitempty"`
	SQLite   *SQLiteConfig `yaml:"sqlite,omitempty" toml:"sqlite,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url" toml:"url"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" toml:"max_retries"`
}

// SQLiteConfig locates the database file of the sqlite store.
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// SearchConfig tunes retrieval.
type SearchConfig struct {
	Limit          int `yaml:"limit" toml:"limit"`
	PrefetchFactor int `yaml:"prefetch_factor" toml:"prefetch_factor"`
}

// IngestConfig tunes batch ingestion.
type IngestConfig struct {
	Concurrency int  `yaml:"concurrency" toml:"concurrency"`
	Recreate    bool `yaml:"recreate" toml:"recreate"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder" toml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker" toml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Search      SearchConfig      `yaml:"search" toml:"search"`
	Ingest      IngestConfig      `yaml:"ingest" toml:"ingest"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./hybridrag.yaml first, then ~/.config/hybridrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/hybridrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	for _, cwdPath := range []string{"hybridrag.yaml", "hybridrag.toml"} {
		if _, err := os.Stat(cwdPath); err == nil {
			cfg, err := Load(cwdPath)
			return cfg, cwdPath, err
		}
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "hybridrag", "config.yaml"), nil
}

// Default returns the built-in configuration: local hashing embeddings and
// the sqlite store under ~/.hybridrag.
func Default() *AppConfig {
	cfg := &AppConfig{
		Embedder: EmbedderConfig{Type: "hashing"},
		Chunker: ChunkerConfig{
			ColumnThreshold: 300,
			MinFontSize:     9,
			ActivityMarker:  "Activity",
		},
		VectorStore: VectorStoreConfig{Type: "sqlite", Quantize: true},
		Search:      SearchConfig{Limit: 10, PrefetchFactor: 4},
		Ingest:      IngestConfig{Concurrency: 2},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields, including the sub-config of the selected
// embedder and store. It is safe to call more than once.
func ApplyDefaults(cfg *AppConfig) {
	if cfg.Chunker.ColumnThreshold <= 0 {
		cfg.Chunker.ColumnThreshold = 300
	}
	if cfg.Search.Limit <= 0 {
		cfg.Search.Limit = 10
	}
	if cfg.Search.PrefetchFactor <= 0 {
		cfg.Search.PrefetchFactor = 4
	}
	if cfg.Ingest.Concurrency <= 0 {
		cfg.Ingest.Concurrency = 1
	}
	switch cfg.Embedder.Type {
	case "hashing":
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 512
		}
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
		if cfg.Embedder.OpenAI.MaxRetries == 0 {
			cfg.Embedder.OpenAI.MaxRetries = 5
		}
	}
	switch cfg.VectorStore.Type {
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.APIKeyEnv == "" {
			cfg.VectorStore.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
		if cfg.VectorStore.Qdrant.MaxRetries == 0 {
			cfg.VectorStore.Qdrant.MaxRetries = 5
		}
	case "sqlite":
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{}
		}
	}
}
