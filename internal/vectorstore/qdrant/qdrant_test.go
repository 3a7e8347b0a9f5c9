package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridrag/internal/domain"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
}

// fakeQdrant answers with canned bodies keyed by "METHOD path" and records
// every request it sees.
func fakeQdrant(t *testing.T, replies map[string]string) (*Storage, *[]recorded) {
	t.Helper()
	var seen []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		seen = append(seen, rec)
		reply, ok := replies[r.Method+" "+r.URL.Path]
		if !ok {
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	s := NewStorage(Config{URL: srv.URL, MaxRetries: 2})
	s.retry.Base = 1
	s.retry.MaxDelay = 1
	return s, &seen
}

func TestCreateCollection_Body(t *testing.T) {
	s, seen := fakeQdrant(t, map[string]string{"PUT /collections/books": `{"result":true}`})

	err := s.CreateCollection(context.Background(), "books", domain.CollectionSpec{
		DenseSize:    384,
		Distance:     "Cosine",
		Quantization: &domain.Quantization{Type: "int8", Quantile: 0.99},
	})
	require.NoError(t, err)
	require.Len(t, *seen, 1)

	body := (*seen)[0].body
	dense := body["vectors"].(map[string]any)["dense"].(map[string]any)
	assert.Equal(t, 384.0, dense["size"])
	assert.Equal(t, "Cosine", dense["distance"])
	sparse := body["sparse_vectors"].(map[string]any)["sparse"].(map[string]any)
	assert.Equal(t, "idf", sparse["modifier"])
	scalar := body["quantization_config"].(map[string]any)["scalar"].(map[string]any)
	assert.Equal(t, "int8", scalar["type"])
	assert.Equal(t, 0.99, scalar["quantile"])
	assert.Equal(t, false, scalar["always_ram"])
}

func TestCollectionExists(t *testing.T) {
	s, _ := fakeQdrant(t, map[string]string{
		"GET /collections/a/exists": `{"result":{"exists":true}}`,
		"GET /collections/b/exists": `{"result":{"exists":false}}`,
	})
	ok, err := s.CollectionExists(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.CollectionExists(context.Background(), "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsert_Body(t *testing.T) {
	s, seen := fakeQdrant(t, map[string]string{"PUT /collections/c/points": `{"result":{"status":"completed"}}`})

	err := s.Upsert(context.Background(), "c", []domain.Point{{
		ID:        3,
		Dense:     []float32{0.5, 0.25},
		Sparse:    domain.SparseVector{Indices: []uint32{7}, Values: []float32{2}},
		Document:  "text",
		Metadata:  domain.Metadata{Page: 1, X: 10, Y: 20, Color: "#000000", Size: 12},
		ContentID: "cid",
	}})
	require.NoError(t, err)

	point := (*seen)[0].body["points"].([]any)[0].(map[string]any)
	assert.Equal(t, 3.0, point["id"])
	vec := point["vector"].(map[string]any)
	assert.Equal(t, []any{0.5, 0.25}, vec["dense"])
	assert.Equal(t, []any{7.0}, vec["sparse"].(map[string]any)["indices"])
	pl := point["payload"].(map[string]any)
	assert.Equal(t, "text", pl["document"])
	assert.Equal(t, "cid", pl["content_id"])
	assert.Equal(t, 1.0, pl["metadata"].(map[string]any)["page"])
}

func TestQuery(t *testing.T) {
	s, seen := fakeQdrant(t, map[string]string{
		"POST /collections/c/points/query": `{"result":{"points":[
			{"id":4,"score":0.5,"payload":{"document":"best","metadata":{"page":2,"x":1,"y":2,"color":"#ff0000","size":14}}},
			{"id":1,"score":0.25,"payload":{"document":"next","metadata":{"page":0,"x":0,"y":0,"color":"#000000","size":10}}}
		]}}`,
	})

	res, err := s.Query(context.Background(), "c", domain.HybridQuery{
		Dense:    []float32{1, 0},
		Sparse:   domain.SparseVector{Indices: []uint32{5}, Values: []float32{1}},
		Limit:    2,
		Prefetch: 20,
	})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, uint64(4), res[0].ID)
	assert.Equal(t, "best", res[0].Document)
	assert.Equal(t, "#ff0000", res[0].Metadata.Color)

	body := (*seen)[0].body
	assert.Equal(t, map[string]any{"fusion": "rrf"}, body["query"])
	assert.Equal(t, 2.0, body["limit"])
	prefetch := body["prefetch"].([]any)
	require.Len(t, prefetch, 2)
	assert.Equal(t, "dense", prefetch[0].(map[string]any)["using"])
	assert.Equal(t, "sparse", prefetch[1].(map[string]any)["using"])
	assert.Equal(t, 20.0, prefetch[1].(map[string]any)["limit"])

	_, err = s.Query(context.Background(), "c", domain.HybridQuery{Limit: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGet(t *testing.T) {
	s, _ := fakeQdrant(t, map[string]string{
		"GET /collections/c/points/0": `{"result":{"id":0,"payload":{"document":"descriptor","metadata":{"page":0,"x":0,"y":0,"color":"#000000","size":20}}}}`,
	})
	got, err := s.Get(context.Background(), "c", 0)
	require.NoError(t, err)
	assert.Equal(t, "descriptor", got.Document)
	assert.Equal(t, 20.0, got.Metadata.Size)

	_, err = s.Get(context.Background(), "c", 9)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCountContent_Filter(t *testing.T) {
	s, seen := fakeQdrant(t, map[string]string{"POST /collections/c/points/count": `{"result":{"count":2}}`})
	n, err := s.CountContent(context.Background(), "c", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	must := (*seen)[0].body["filter"].(map[string]any)["must"].([]any)[0].(map[string]any)
	assert.Equal(t, "content_id", must["key"])
	assert.Equal(t, []any{"a", "b"}, must["match"].(map[string]any)["any"])
}

func TestDeleteCollection(t *testing.T) {
	s, _ := fakeQdrant(t, map[string]string{
		"DELETE /collections/a": `{"result":true}`,
		"DELETE /collections/b": `{"result":false}`,
	})
	require.NoError(t, s.DeleteCollection(context.Background(), "a"))
	assert.ErrorIs(t, s.DeleteCollection(context.Background(), "b"), domain.ErrNotFound)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"count":7}}`))
	}))
	defer srv.Close()
	s := NewStorage(Config{URL: srv.URL, MaxRetries: 3})
	s.retry.Base = 1
	s.retry.MaxDelay = 1

	n, err := s.Count(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"status":{"error":"Wrong input"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()
	s := NewStorage(Config{URL: srv.URL})

	_, err := s.Count(context.Background(), "c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Wrong input")
	assert.Equal(t, int32(1), calls.Load())
}
