package service

import (
	"context"
	"fmt"
	"strings"

	"hybridrag/internal/domain"
)

// DescriptorID is the id of the first chunk ingested into a fresh collection,
// used as the collection's representative record.
const DescriptorID uint64 = 0

const (
	DefaultLimit          = 10
	DefaultPrefetchFactor = 4
)

// Retriever answers hybrid queries against a collection.
type Retriever struct {
	store          domain.VectorStore
	dense          domain.DenseEmbedder
	sparse         domain.SparseEmbedder
	prefetchFactor int
}

// NewRetriever returns a Retriever drawing prefetchFactor*limit candidates
// from each vector space before fusion.
func NewRetriever(store domain.VectorStore, dense domain.DenseEmbedder, sparse domain.SparseEmbedder, prefetchFactor int) *Retriever {
	if prefetchFactor < 1 {
		prefetchFactor = DefaultPrefetchFactor
	}
	return &Retriever{store: store, dense: dense, sparse: sparse, prefetchFactor: prefetchFactor}
}

// Search returns at most limit results ordered by non-increasing fused score.
func (r *Retriever) Search(ctx context.Context, name, query string, limit int) ([]domain.SearchResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", domain.ErrInvalidInput, limit)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	dense, sparse, err := embedBoth(ctx, r.dense, r.sparse, []string{query})
	if err != nil {
		return nil, err
	}
	results, err := r.store.Query(ctx, name, domain.HybridQuery{
		Dense:    dense[0],
		Sparse:   sparse[0],
		Limit:    limit,
		Prefetch: limit * r.prefetchFactor,
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", name, err)
	}
	return results, nil
}

// GetByID fetches one stored point. A missing point is domain.ErrNotFound.
func (r *Retriever) GetByID(ctx context.Context, name string, id uint64) (domain.SearchResult, error) {
	res, err := r.store.Get(ctx, name, id)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("get %d from %q: %w", id, name, err)
	}
	return res, nil
}

// Descriptor returns the collection's representative record.
func (r *Retriever) Descriptor(ctx context.Context, name string) (domain.SearchResult, error) {
	return r.GetByID(ctx, name, DescriptorID)
}
