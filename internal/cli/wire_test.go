package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridrag/internal/config"
	"hybridrag/internal/domain"
	"hybridrag/internal/embedding/openai"
	"hybridrag/internal/vectorstore/memory"
	"hybridrag/internal/vectorstore/qdrant"
	"hybridrag/internal/vectorstore/sqlite"
)

func TestNewStore(t *testing.T) {
	s, err := newStore(config.VectorStoreConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memory.Storage{}, s)

	s, err = newStore(config.VectorStoreConfig{Type: "sqlite", SQLite: &config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "v.db")}})
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, s)
	require.NoError(t, s.Close())

	s, err = newStore(config.VectorStoreConfig{Type: "qdrant"})
	require.NoError(t, err)
	assert.IsType(t, &qdrant.Storage{}, s)

	_, err = newStore(config.VectorStoreConfig{Type: "pinecone"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestNewDenseEmbedder(t *testing.T) {
	e, err := newDenseEmbedder(config.EmbedderConfig{Type: "hashing", Hashing: &config.HashingEmbedderConfig{Dimension: 64}})
	require.NoError(t, err)
	assert.Equal(t, 64, e.Dimension())

	e, err = newDenseEmbedder(config.EmbedderConfig{Type: "hashing"})
	require.NoError(t, err)
	assert.Equal(t, 512, e.Dimension())

	e, err = newDenseEmbedder(config.EmbedderConfig{Type: "openai", OpenAI: &config.OpenAIEmbedderConfig{
		BaseURL: "http://localhost:11434/v1",
		Model:   "nomic-embed-text",
	}})
	require.NoError(t, err)
	assert.Equal(t, 768, e.Dimension())

	t.Setenv("HYBRIDRAG_TEST_MISSING_KEY", "")
	_, err = newDenseEmbedder(config.EmbedderConfig{Type: "openai", OpenAI: &config.OpenAIEmbedderConfig{
		APIKeyEnv: "HYBRIDRAG_TEST_MISSING_KEY",
	}})
	assert.ErrorIs(t, err, openai.ErrNoAPIKey)
	assert.Contains(t, err.Error(), "HYBRIDRAG_TEST_MISSING_KEY")

	_, err = newDenseEmbedder(config.EmbedderConfig{Type: "word2vec"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestNewApp_SizesCollectionsForEmbedder(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Type = "memory"
	cfg.Embedder.Hashing = &config.HashingEmbedderConfig{Dimension: 32}
	config.ApplyDefaults(cfg)

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	ctx := t.Context()
	_, err = a.collections.Create(ctx, "c")
	require.NoError(t, err)
	res, err := a.indexer.Insert(ctx, "c", []domain.Chunk{{Text: "water cycle evaporation"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
}
