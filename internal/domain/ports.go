package domain

import "context"

// DenseEmbedder converts text into fixed-size semantic vectors.
type DenseEmbedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// SparseEmbedder converts text into term-weighted sparse vectors.
type SparseEmbedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([]SparseVector, error)
}

// VectorStore persists collections of points carrying a dense and a sparse
// vector and answers fused hybrid queries over them.
//
// Upsert is all-or-nothing for the points passed in one call. Calls that name
// a missing collection fail with ErrNotFound.
type VectorStore interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, spec CollectionSpec) error
	DeleteCollection(ctx context.Context, name string) error
	Count(ctx context.Context, name string) (int, error)
	// CountContent returns how many stored points carry one of the given content ids.
	CountContent(ctx context.Context, name string, contentIDs []string) (int, error)
	Upsert(ctx context.Context, name string, points []Point) error
	Query(ctx context.Context, name string, q HybridQuery) ([]SearchResult, error)
	Get(ctx context.Context, name string, id uint64) (SearchResult, error)
	Close() error
}

// PageSource loads a page-structured document from a file.
type PageSource interface {
	Load(ctx context.Context, path string) (Document, error)
}
