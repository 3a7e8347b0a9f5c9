package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridrag/internal/chunker"
	"hybridrag/internal/domain"
	"hybridrag/internal/embedding/hashing"
	"hybridrag/internal/embedding/lexical"
	"hybridrag/internal/source"
	"hybridrag/internal/vectorstore/memory"
	"hybridrag/internal/vectorstore/sqlite"
)

type failingEmbedder struct{ calls int }

func (f *failingEmbedder) Name() string   { return "failing" }
func (f *failingEmbedder) Dimension() int { return 8 }
func (f *failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	f.calls++
	return nil, errors.New("upstream unavailable")
}

type fixture struct {
	store       *memory.Storage
	collections *CollectionManager
	indexer     *Indexer
	retriever   *Retriever
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStorage()
	dense := hashing.NewEmbedder(64)
	sparse := lexical.NewEmbedder()
	return fixture{
		store:       store,
		collections: NewCollectionManager(store, SpecFor(dense, true)),
		indexer:     NewIndexer(store, dense, sparse),
		retriever:   NewRetriever(store, dense, sparse, 0),
	}
}

func sampleChunks() []domain.Chunk {
	return []domain.Chunk{
		{Text: "Chapter 3 Photosynthesis in green plants", Page: 0, X: 40, Y: 30, Color: "#000000", Size: 20},
		{Text: "Leaves absorb sunlight to make food", Page: 0, X: 40, Y: 80, Color: "#000000", Size: 12},
		{Text: "Roots take up water from the soil", Page: 1, X: 320, Y: 60, Color: "#000000", Size: 12},
		{Text: "Activity 1\nCover a leaf with black paper", Page: 1, X: 40, Y: 200, Color: "#ff0000", Size: 14},
	}
}

func TestCollectionManager_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	name, err := f.collections.Create(ctx, "5_science_3")
	require.NoError(t, err)
	assert.Equal(t, "5_science_3", name)

	name, err = f.collections.Create(ctx, "5_science_3")
	require.NoError(t, err)
	assert.Equal(t, NoOp, name)

	_, err = f.collections.Create(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCollectionManager_CreateIsNotDestructive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.collections.Create(ctx, "c")
	require.NoError(t, err)
	_, err = f.indexer.Insert(ctx, "c", sampleChunks())
	require.NoError(t, err)

	_, err = f.collections.Create(ctx, "c")
	require.NoError(t, err)
	n, err := f.store.Count(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, f.collections.Recreate(ctx, "c"))
	n, err = f.store.Count(ctx, "c")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, f.collections.Delete(ctx, "c"))
	ok, err := f.collections.Exists(ctx, "c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSpecFor(t *testing.T) {
	spec := SpecFor(hashing.NewEmbedder(32), true)
	assert.Equal(t, 32, spec.DenseSize)
	assert.Equal(t, "Cosine", spec.Distance)
	require.NotNil(t, spec.Quantization)
	assert.Equal(t, "int8", spec.Quantization.Type)
	assert.Equal(t, 0.99, spec.Quantization.Quantile)
	assert.False(t, spec.Quantization.AlwaysRAM)

	assert.Nil(t, SpecFor(hashing.NewEmbedder(32), false).Quantization)
}

func TestInsert_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.collections.Create(ctx, "c")
	require.NoError(t, err)

	chunks := sampleChunks()
	res, err := f.indexer.Insert(ctx, "c", chunks)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Inserted)
	assert.Equal(t, uint64(0), res.FirstID)
	assert.NoError(t, res.Warning)

	// ids follow insertion order and every stored record matches its chunk
	for i, c := range chunks {
		got, err := f.retriever.GetByID(ctx, "c", uint64(i))
		require.NoError(t, err)
		assert.Equal(t, c.Text, got.Document)
		assert.Equal(t, c.Metadata(), got.Metadata)
	}

	desc, err := f.retriever.Descriptor(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, chunks[0].Text, desc.Document)
}

func TestInsert_ContinuesIDsAndWarnsOnDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.collections.Create(ctx, "c")
	require.NoError(t, err)
	_, err = f.indexer.Insert(ctx, "c", sampleChunks())
	require.NoError(t, err)

	res, err := f.indexer.Insert(ctx, "c", sampleChunks()[:2])
	require.NoError(t, err)
	assert.Equal(t, uint64(4), res.FirstID)
	assert.ErrorIs(t, res.Warning, domain.ErrDuplicateInsert)

	n, err := f.store.Count(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestInsert_EmbeddingFailureWritesNothing(t *testing.T) {
	store := memory.NewStorage()
	failing := &failingEmbedder{}
	ix := NewIndexer(store, failing, lexical.NewEmbedder())
	cm := NewCollectionManager(store, SpecFor(failing, false))
	ctx := context.Background()
	_, err := cm.Create(ctx, "c")
	require.NoError(t, err)

	_, err = ix.Insert(ctx, "c", sampleChunks())
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.Equal(t, 1, failing.calls)

	n, err := store.Count(ctx, "c")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsert_MissingCollection(t *testing.T) {
	f := newFixture(t)
	_, err := f.indexer.Insert(context.Background(), "nope", sampleChunks())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInsert_ConcurrentCallsGetDistinctIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.collections.Create(ctx, "c")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.indexer.Insert(ctx, "c", []domain.Chunk{{Text: fmt.Sprintf("chunk %d", i), Page: i}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for id := uint64(0); id < 5; id++ {
		_, err := f.retriever.GetByID(ctx, "c", id)
		assert.NoError(t, err)
	}
	assert.Zero(t, f.indexer.locks.size())
}

func TestKeyedMutex(t *testing.T) {
	var k keyedMutex

	unlockA := k.lock("a")
	unlockB := k.lock("b")
	assert.Equal(t, 2, k.size())

	acquired := make(chan struct{})
	go func() {
		unlock := k.lock("a")
		close(acquired)
		unlock()
	}()
	select {
	case <-acquired:
		t.Fatal("second holder acquired a locked key")
	case <-time.After(50 * time.Millisecond):
	}

	unlockA()
	<-acquired
	unlockB()
	assert.Eventually(t, func() bool { return k.size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestContentID(t *testing.T) {
	a := domain.Chunk{Text: "x", Page: 1, X: 2, Y: 3}
	b := a
	assert.Equal(t, ContentID(a), ContentID(b))
	b.Y = 4
	assert.NotEqual(t, ContentID(a), ContentID(b))
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.collections.Create(ctx, "c")
	require.NoError(t, err)
	_, err = f.indexer.Insert(ctx, "c", sampleChunks())
	require.NoError(t, err)

	res, err := f.retriever.Search(ctx, "c", "roots water soil", 3)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.LessOrEqual(t, len(res), 3)
	assert.Equal(t, "Roots take up water from the soil", res[0].Document)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}

	res, err = f.retriever.Search(ctx, "c", "leaf", 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestSearch_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.collections.Create(ctx, "c")
	require.NoError(t, err)

	_, err = f.retriever.Search(ctx, "c", "water", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.retriever.Search(ctx, "c", "   ", 5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.retriever.Search(ctx, "missing", "water", 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetByID_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.collections.Create(ctx, "c")
	require.NoError(t, err)

	_, err = f.retriever.Descriptor(ctx, "c")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCollectionName(t *testing.T) {
	name := CollectionName("5", "Science", "3")
	assert.Equal(t, "5_science_3", name)

	g, s, c, err := ParseCollectionName(name)
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "science", "3"}, []string{g, s, c})

	_, _, _, err = ParseCollectionName("5_social_science_3")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

const pageDump = `{"pages":[{"index":0,"blocks":[
  {"type":0,"bbox":[40,30,250,60],"lines":[{"spans":[{"text":"Chapter 3 Photosynthesis","size":20,"color":0}]}]},
  {"type":0,"bbox":[40,80,250,120],"lines":[{"spans":[{"text":"Leaves absorb sunlight","size":12,"color":0}]}]}
]}]}`

func TestIngestor_Run(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "ch3.json")
	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(good, []byte(pageDump), 0o600))
	require.NoError(t, os.WriteFile(empty, []byte(`{"pages":[]}`), 0o600))

	in := NewIngestor(source.ForPath, chunker.NewAssembler(chunker.DefaultOptions()), f.collections, f.indexer,
		IngestOptions{Concurrency: 2})
	results := in.Run(context.Background(), []Job{
		{Collection: "5_science_3", Path: good},
		{Collection: "5_science_4", Path: filepath.Join(dir, "missing.json")},
		{Collection: "5_science_5", Path: filepath.Join(dir, "notes.txt")},
		{Collection: "5_science_6", Path: empty},
	})
	require.Len(t, results, 4)

	require.NoError(t, results[0].Err)
	assert.True(t, results[0].Created)
	assert.Equal(t, 2, results[0].Chunks)
	assert.Equal(t, 2, results[0].Insert.Inserted)

	assert.Error(t, results[1].Err)
	assert.ErrorIs(t, results[2].Err, domain.ErrUnsupportedType)

	require.NoError(t, results[3].Err)
	assert.Zero(t, results[3].Chunks)

	desc, err := f.retriever.Descriptor(context.Background(), "5_science_3")
	require.NoError(t, err)
	assert.Equal(t, "Chapter 3 Photosynthesis", desc.Document)
}

func TestIngestor_RunOnSQLite(t *testing.T) {
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	dense := hashing.NewEmbedder(64)
	sparse := lexical.NewEmbedder()

	dir := t.TempDir()
	for ch := 1; ch <= 8; ch++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("chapter-%d.json", ch)), []byte(pageDump), 0o600))
	}
	jobs, err := BookJobs(dir, "9", "Science")
	require.NoError(t, err)
	require.Len(t, jobs, 8)

	in := NewIngestor(source.ForPath, chunker.NewAssembler(chunker.DefaultOptions()),
		NewCollectionManager(store, SpecFor(dense, true)), NewIndexer(store, dense, sparse),
		IngestOptions{Concurrency: 2})
	for _, r := range in.Run(context.Background(), jobs) {
		require.NoError(t, r.Err, r.Collection)
		assert.Equal(t, 2, r.Insert.Inserted, r.Collection)
	}
	for _, j := range jobs {
		n, err := store.Count(context.Background(), j.Collection)
		require.NoError(t, err)
		assert.Equal(t, 2, n, j.Collection)
	}
}

func TestIngestor_Recreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := NewIngestor(source.ForPath, chunker.NewAssembler(chunker.DefaultOptions()), f.collections, f.indexer,
		IngestOptions{Recreate: true})

	first := in.Store(ctx, "c", sampleChunks())
	require.NoError(t, first.Err)
	second := in.Store(ctx, "c", sampleChunks())
	require.NoError(t, second.Err)
	assert.NoError(t, second.Insert.Warning)
	assert.Equal(t, uint64(0), second.Insert.FirstID)

	n, err := f.store.Count(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestBookJobs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"chapter-10.pdf", "chapter-2.pdf", "ch01.PDF", "cover.pdf", "notes.txt", "7.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "extra9"), 0o700))

	jobs, err := BookJobs(dir, "6", "Science")
	require.NoError(t, err)
	var names []string
	for _, j := range jobs {
		names = append(names, j.Collection)
	}
	assert.Equal(t, []string{"6_science_1", "6_science_2", "6_science_7", "6_science_10"}, names)

	_, err = BookJobs(filepath.Join(dir, "missing"), "6", "Science")
	assert.Error(t, err)
}
