package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"hybridrag/internal/chunker"
	"hybridrag/internal/config"
	"hybridrag/internal/domain"
	"hybridrag/internal/embedding/hashing"
	"hybridrag/internal/embedding/lexical"
	"hybridrag/internal/embedding/openai"
	"hybridrag/internal/service"
	"hybridrag/internal/source"
	"hybridrag/internal/vectorstore/memory"
	"hybridrag/internal/vectorstore/qdrant"
	"hybridrag/internal/vectorstore/sqlite"
)

// app holds the services built from one configuration.
type app struct {
	cfg         *config.AppConfig
	store       domain.VectorStore
	dense       domain.DenseEmbedder
	sparse      domain.SparseEmbedder
	assembler   *chunker.Assembler
	collections *service.CollectionManager
	indexer     *service.Indexer
	retriever   *service.Retriever
}

func newApp(cfg *config.AppConfig) (*app, error) {
	dense, err := newDenseEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	store, err := newStore(cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	sparse := lexical.NewEmbedder()
	return &app{
		cfg:         cfg,
		store:       store,
		dense:       dense,
		sparse:      sparse,
		assembler:   newAssembler(cfg.Chunker),
		collections: service.NewCollectionManager(store, service.SpecFor(dense, cfg.VectorStore.Quantize)),
		indexer:     service.NewIndexer(store, dense, sparse),
		retriever:   service.NewRetriever(store, dense, sparse, cfg.Search.PrefetchFactor),
	}, nil
}

func (a *app) ingestor(recreate bool, concurrency int) *service.Ingestor {
	if concurrency <= 0 {
		concurrency = a.cfg.Ingest.Concurrency
	}
	return service.NewIngestor(source.ForPath, a.assembler, a.collections, a.indexer, service.IngestOptions{
		Concurrency: concurrency,
		Recreate:    recreate || a.cfg.Ingest.Recreate,
	})
}

func (a *app) Close() error {
	return a.store.Close()
}

func newDenseEmbedder(cfg config.EmbedderConfig) (domain.DenseEmbedder, error) {
	switch cfg.Type {
	case "hashing":
		dim := 0
		if cfg.Hashing != nil {
			dim = cfg.Hashing.Dimension
		}
		return hashing.NewEmbedder(dim), nil
	case "openai":
		oc := cfg.OpenAI
		if oc == nil {
			oc = &config.OpenAIEmbedderConfig{}
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:           oc.BaseURL,
			APIKey:            os.Getenv(oc.APIKeyEnv),
			Model:             oc.Model,
			Timeout:           time.Duration(oc.TimeoutSecs) * time.Second,
			BatchSize:         oc.BatchSize,
			Dimension:         oc.Dimension,
			RequestsPerSecond: oc.RequestsPerSecond,
			MaxRetries:        oc.MaxRetries,
		})
		if errors.Is(err, openai.ErrNoAPIKey) {
			return nil, fmt.Errorf("%w (set %s)", err, oc.APIKeyEnv)
		}
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: embedder %q", domain.ErrUnsupportedType, cfg.Type)
	}
}

func newStore(cfg config.VectorStoreConfig) (domain.VectorStore, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "sqlite":
		path := ""
		if cfg.SQLite != nil {
			path = cfg.SQLite.Path
		}
		return sqlite.NewStore(path)
	case "qdrant":
		qc := cfg.Qdrant
		if qc == nil {
			qc = &config.QdrantConfig{}
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        qc.URL,
			APIKey:     os.Getenv(qc.APIKeyEnv),
			Timeout:    time.Duration(qc.TimeoutSecs) * time.Second,
			MaxRetries: qc.MaxRetries,
		}), nil
	default:
		return nil, fmt.Errorf("%w: vector store %q", domain.ErrUnsupportedType, cfg.Type)
	}
}

func newAssembler(cfg config.ChunkerConfig) *chunker.Assembler {
	return chunker.NewAssembler(chunker.Options{
		ColumnThreshold: cfg.ColumnThreshold,
		MinFontSize:     cfg.MinFontSize,
		ActivityMarker:  cfg.ActivityMarker,
		Workers:         cfg.Workers,
	})
}
