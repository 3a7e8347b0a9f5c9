// Package memory is an in-process vector store. Collections live in maps
// guarded by one RWMutex and are scored by brute force.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"hybridrag/internal/domain"
	"hybridrag/internal/vectorstore/fusion"
)

var _ domain.VectorStore = (*Storage)(nil)

type collection struct {
	spec   domain.CollectionSpec
	points []domain.Point
	byID   map[uint64]int
	// df counts, per sparse term, the points that contain it
	df map[uint32]int
}

// Storage is an in-memory hybrid vector store.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func NewStorage() *Storage {
	return &Storage{collections: make(map[string]*collection)}
}

func (s *Storage) CollectionExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *Storage) CreateCollection(_ context.Context, name string, spec domain.CollectionSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return fmt.Errorf("%w: collection %q already exists", domain.ErrInvalidInput, name)
	}
	s.collections[name] = &collection{
		spec: spec,
		byID: make(map[uint64]int),
		df:   make(map[uint32]int),
	}
	return nil
}

func (s *Storage) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return notFound(name)
	}
	delete(s.collections, name)
	return nil
}

func (s *Storage) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, notFound(name)
	}
	return len(c.points), nil
}

func (s *Storage) CountContent(_ context.Context, name string, contentIDs []string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, notFound(name)
	}
	want := make(map[string]struct{}, len(contentIDs))
	for _, id := range contentIDs {
		want[id] = struct{}{}
	}
	n := 0
	for _, p := range c.points {
		if _, ok := want[p.ContentID]; ok {
			n++
		}
	}
	return n, nil
}

// Upsert validates every point before storing any of them. A point whose id
// is already present replaces the stored one.
func (s *Storage) Upsert(_ context.Context, name string, points []domain.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return notFound(name)
	}
	for _, p := range points {
		if err := validatePoint(p, c.spec.DenseSize); err != nil {
			return err
		}
	}
	for _, p := range points {
		p = clonePoint(p)
		if i, ok := c.byID[p.ID]; ok {
			c.untrack(c.points[i])
			c.points[i] = p
		} else {
			c.byID[p.ID] = len(c.points)
			c.points = append(c.points, p)
		}
		c.track(p)
	}
	return nil
}

func (s *Storage) Query(_ context.Context, name string, q domain.HybridQuery) ([]domain.SearchResult, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", domain.ErrInvalidInput, q.Limit)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, notFound(name)
	}
	ranked := fusion.Hybrid(c.points, c.df, q)
	results := make([]domain.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		p := c.points[c.byID[r.ID]]
		results = append(results, domain.SearchResult{ID: p.ID, Document: p.Document, Metadata: p.Metadata, Score: r.Score})
	}
	return results, nil
}

func (s *Storage) Get(_ context.Context, name string, id uint64) (domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return domain.SearchResult{}, notFound(name)
	}
	i, ok := c.byID[id]
	if !ok {
		return domain.SearchResult{}, fmt.Errorf("%w: point %d in collection %q", domain.ErrNotFound, id, name)
	}
	p := c.points[i]
	return domain.SearchResult{ID: p.ID, Document: p.Document, Metadata: p.Metadata}, nil
}

func (s *Storage) Close() error { return nil }

func (c *collection) track(p domain.Point) {
	for _, t := range p.Sparse.Indices {
		c.df[t]++
	}
}

func (c *collection) untrack(p domain.Point) {
	for _, t := range p.Sparse.Indices {
		if c.df[t]--; c.df[t] <= 0 {
			delete(c.df, t)
		}
	}
}

func validatePoint(p domain.Point, size int) error {
	if len(p.Dense) != size {
		return fmt.Errorf("%w: point %d has %d dense dimensions, collection expects %d", domain.ErrInvalidInput, p.ID, len(p.Dense), size)
	}
	if len(p.Sparse.Indices) != len(p.Sparse.Values) {
		return fmt.Errorf("%w: point %d sparse indices and values differ in length", domain.ErrInvalidInput, p.ID)
	}
	if !slices.IsSorted(p.Sparse.Indices) {
		return fmt.Errorf("%w: point %d sparse indices are not ascending", domain.ErrInvalidInput, p.ID)
	}
	return nil
}

func clonePoint(p domain.Point) domain.Point {
	p.Dense = slices.Clone(p.Dense)
	p.Sparse = domain.SparseVector{Indices: slices.Clone(p.Sparse.Indices), Values: slices.Clone(p.Sparse.Values)}
	return p
}

func notFound(name string) error {
	return fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
}
