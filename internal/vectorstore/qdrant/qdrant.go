// Package qdrant is a REST client for Qdrant collections that carry a named
// dense vector and a named sparse vector with server-side IDF. Hybrid queries
// are answered by Qdrant itself through prefetch + RRF fusion.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"hybridrag/internal/backoff"
	"hybridrag/internal/domain"
	"hybridrag/internal/logger"
)

var _ domain.VectorStore = (*Storage)(nil)

const DefaultURL = "http://localhost:6333"

// Storage is a minimal REST client to Qdrant.
type Storage struct {
	url    string
	apiKey string
	client *http.Client
	retry  backoff.Policy
}

type Config struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

func NewStorage(cfg Config) *Storage {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	retry := backoff.DefaultPolicy()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	return &Storage{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
		retry:  retry,
	}
}

type payload struct {
	Document  string          `json:"document"`
	Metadata  domain.Metadata `json:"metadata"`
	ContentID string          `json:"content_id,omitempty"`
}

type scoredPoint struct {
	ID      uint64  `json:"id"`
	Score   float64 `json:"score"`
	Payload payload `json:"payload"`
}

func (p scoredPoint) result() domain.SearchResult {
	return domain.SearchResult{ID: p.ID, Document: p.Payload.Document, Metadata: p.Payload.Metadata, Score: p.Score}
}

func (s *Storage) CollectionExists(ctx context.Context, name string) (bool, error) {
	var resp struct {
		Result struct {
			Exists bool `json:"exists"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.collectionPath(name)+"/exists", nil, &resp); err != nil {
		return false, err
	}
	return resp.Result.Exists, nil
}

func (s *Storage) CreateCollection(ctx context.Context, name string, spec domain.CollectionSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	distance := spec.Distance
	if distance == "" {
		distance = "Cosine"
	}
	body := map[string]any{
		"vectors": map[string]any{
			domain.DenseVectorName: map[string]any{
				"size":     spec.DenseSize,
				"distance": distance,
			},
		},
		"sparse_vectors": map[string]any{
			domain.SparseVectorName: map[string]any{"modifier": "idf"},
		},
	}
	if q := spec.Quantization; q != nil {
		body["quantization_config"] = map[string]any{"scalar": q}
	}
	if err := s.do(ctx, http.MethodPut, s.collectionPath(name), body, nil); err != nil {
		return fmt.Errorf("create collection %q: %w", name, err)
	}
	return nil
}

func (s *Storage) DeleteCollection(ctx context.Context, name string) error {
	var resp struct {
		Result bool `json:"result"`
	}
	if err := s.do(ctx, http.MethodDelete, s.collectionPath(name), nil, &resp); err != nil {
		return err
	}
	if !resp.Result {
		return notFound(name)
	}
	return nil
}

func (s *Storage) Count(ctx context.Context, name string) (int, error) {
	return s.count(ctx, name, map[string]any{"exact": true})
}

func (s *Storage) CountContent(ctx context.Context, name string, contentIDs []string) (int, error) {
	if len(contentIDs) == 0 {
		// still surfaces a missing collection
		_, err := s.Count(ctx, name)
		return 0, err
	}
	return s.count(ctx, name, map[string]any{
		"exact": true,
		"filter": map[string]any{
			"must": []any{
				map[string]any{"key": "content_id", "match": map[string]any{"any": contentIDs}},
			},
		},
	})
}

func (s *Storage) count(ctx context.Context, name string, body map[string]any) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionPath(name)+"/points/count", body, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Upsert writes points and waits until Qdrant has applied them.
func (s *Storage) Upsert(ctx context.Context, name string, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	items := make([]map[string]any, len(points))
	for i, p := range points {
		if len(p.Sparse.Indices) != len(p.Sparse.Values) {
			return fmt.Errorf("%w: point %d sparse indices and values differ in length", domain.ErrInvalidInput, p.ID)
		}
		items[i] = map[string]any{
			"id": p.ID,
			"vector": map[string]any{
				domain.DenseVectorName:  p.Dense,
				domain.SparseVectorName: sparse(p.Sparse),
			},
			"payload": payload{Document: p.Document, Metadata: p.Metadata, ContentID: p.ContentID},
		}
	}
	body := map[string]any{"points": items}
	if err := s.do(ctx, http.MethodPut, s.collectionPath(name)+"/points?wait=true", body, nil); err != nil {
		return fmt.Errorf("upsert %d points into %q: %w", len(points), name, err)
	}
	return nil
}

// Query prefetches candidates from both spaces and fuses them with RRF.
func (s *Storage) Query(ctx context.Context, name string, q domain.HybridQuery) ([]domain.SearchResult, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", domain.ErrInvalidInput, q.Limit)
	}
	prefetch := max(q.Prefetch, q.Limit)
	prefetches := []any{
		map[string]any{"query": q.Dense, "using": domain.DenseVectorName, "limit": prefetch},
	}
	// Qdrant rejects an empty sparse query
	if q.Sparse.Len() > 0 {
		prefetches = append(prefetches, map[string]any{"query": sparse(q.Sparse), "using": domain.SparseVectorName, "limit": prefetch})
	}
	body := map[string]any{
		"prefetch":     prefetches,
		"query":        map[string]any{"fusion": "rrf"},
		"limit":        q.Limit,
		"with_payload": true,
	}
	var resp struct {
		Result struct {
			Points []scoredPoint `json:"points"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionPath(name)+"/points/query", body, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		results = append(results, p.result())
	}
	return results, nil
}

func (s *Storage) Get(ctx context.Context, name string, id uint64) (domain.SearchResult, error) {
	var resp struct {
		Result *scoredPoint `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, fmt.Sprintf("%s/points/%d", s.collectionPath(name), id), nil, &resp)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.SearchResult{}, fmt.Errorf("%w: point %d in collection %q", domain.ErrNotFound, id, name)
		}
		return domain.SearchResult{}, err
	}
	if resp.Result == nil {
		return domain.SearchResult{}, fmt.Errorf("%w: point %d in collection %q", domain.ErrNotFound, id, name)
	}
	return resp.Result.result(), nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func sparse(v domain.SparseVector) map[string]any {
	indices := v.Indices
	values := v.Values
	if indices == nil {
		indices = []uint32{}
		values = []float32{}
	}
	return map[string]any{"indices": indices, "values": values}
}

// do sends one JSON request with retries on transport errors, 429 and 5xx.
// A 404 maps to domain.ErrNotFound.
func (s *Storage) do(ctx context.Context, method, path string, body, out any) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	target := s.url + path

	return s.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if s.apiKey != "" {
			req.Header.Set("api-key", s.apiKey)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return backoff.Retryable(fmt.Errorf("qdrant %s %s: %w", method, path, err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: qdrant %s %s", domain.ErrNotFound, method, path)
		case backoff.ShouldRetryStatus(resp.StatusCode):
			logger.Debug("qdrant %s %s: %s, retrying", method, path, resp.Status)
			return backoff.RetryableAfter(fmt.Errorf("qdrant %s %s failed: %s", method, path, resp.Status), backoff.RetryAfter(resp))
		case resp.StatusCode >= 300:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, bytes.TrimSpace(msg))
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
		return nil
	})
}

func notFound(name string) error {
	return fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
}
