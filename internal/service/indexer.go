package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"hybridrag/internal/domain"
	"hybridrag/internal/logger"
)

// contentNamespace scopes the UUIDv5 content ids of chunks.
var contentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("hybridrag:chunk"))

// ContentID identifies a chunk by its page, origin and text.
func ContentID(c domain.Chunk) string {
	key := strconv.Itoa(c.Page) + "|" +
		strconv.FormatFloat(c.X, 'g', -1, 64) + "|" +
		strconv.FormatFloat(c.Y, 'g', -1, 64) + "|" + c.Text
	return uuid.NewSHA1(contentNamespace, []byte(key)).String()
}

// InsertResult reports what an insert added. Warning is set to
// domain.ErrDuplicateInsert when some chunks were already stored; the insert
// still succeeded.
type InsertResult struct {
	Inserted int
	FirstID  uint64
	Warning  error
}

// Indexer embeds chunks and stores them as points.
type Indexer struct {
	store  domain.VectorStore
	dense  domain.DenseEmbedder
	sparse domain.SparseEmbedder
	locks  keyedMutex
}

func NewIndexer(store domain.VectorStore, dense domain.DenseEmbedder, sparse domain.SparseEmbedder) *Indexer {
	return &Indexer{store: store, dense: dense, sparse: sparse}
}

// Insert appends chunks to collection name in order. Point ids continue from
// the collection's current size, so a fresh collection numbers its chunks
// 0..len(chunks)-1. Every text is embedded before anything is written: an
// embedding failure leaves the collection untouched.
//
// Inserts into the same collection are serialised.
func (ix *Indexer) Insert(ctx context.Context, name string, chunks []domain.Chunk) (InsertResult, error) {
	unlock := ix.locks.lock(name)
	defer unlock()

	exists, err := ix.store.CollectionExists(ctx, name)
	if err != nil {
		return InsertResult{}, fmt.Errorf("check collection %q: %w", name, err)
	}
	if !exists {
		return InsertResult{}, fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	if len(chunks) == 0 {
		return InsertResult{}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	dense, sparse, err := embedBoth(ctx, ix.dense, ix.sparse, texts)
	if err != nil {
		return InsertResult{}, err
	}

	contentIDs := make([]string, len(chunks))
	for i, c := range chunks {
		contentIDs[i] = ContentID(c)
	}
	var result InsertResult
	dups, err := ix.store.CountContent(ctx, name, contentIDs)
	if err != nil {
		return InsertResult{}, fmt.Errorf("check duplicates in %q: %w", name, err)
	}
	if dups > 0 {
		result.Warning = fmt.Errorf("%w: %d of %d chunks already in %q", domain.ErrDuplicateInsert, dups, len(chunks), name)
		logger.Warn("%v", result.Warning)
	}

	count, err := ix.store.Count(ctx, name)
	if err != nil {
		return InsertResult{}, fmt.Errorf("count %q: %w", name, err)
	}
	base := uint64(count)
	points := make([]domain.Point, len(chunks))
	for i, c := range chunks {
		points[i] = domain.Point{
			ID:        base + uint64(i),
			Dense:     dense[i],
			Sparse:    sparse[i],
			Document:  c.Text,
			Metadata:  c.Metadata(),
			ContentID: contentIDs[i],
		}
	}
	if err := ix.store.Upsert(ctx, name, points); err != nil {
		return InsertResult{}, fmt.Errorf("insert into %q: %w", name, err)
	}
	logger.Debug("Inserted %d points into %s starting at id %d", len(points), name, base)

	result.Inserted = len(points)
	result.FirstID = base
	return result, nil
}

// embedBoth runs the dense and sparse embedders over texts and checks that
// each returned one vector per text.
func embedBoth(ctx context.Context, de domain.DenseEmbedder, se domain.SparseEmbedder, texts []string) ([][]float32, []domain.SparseVector, error) {
	dense, err := de.Embed(ctx, texts)
	if err != nil {
		return nil, nil, embeddingError(de.Name(), err)
	}
	if len(dense) != len(texts) {
		return nil, nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", domain.ErrEmbedding, de.Name(), len(dense), len(texts))
	}
	sparse, err := se.Embed(ctx, texts)
	if err != nil {
		return nil, nil, embeddingError(se.Name(), err)
	}
	if len(sparse) != len(texts) {
		return nil, nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", domain.ErrEmbedding, se.Name(), len(sparse), len(texts))
	}
	return dense, sparse, nil
}

func embeddingError(embedder string, err error) error {
	if errors.Is(err, domain.ErrEmbedding) {
		return fmt.Errorf("%s: %w", embedder, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrEmbedding, embedder, err)
}

// keyedMutex hands out one mutex per key. An entry lives only while some
// caller holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		if m.refs--; m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size reports how many keys are currently held or awaited.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
