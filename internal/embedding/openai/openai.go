// Package openai is a dense embedder for OpenAI-compatible /embeddings
// endpoints. Ollama's native response shape is accepted as well.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"hybridrag/internal/backoff"
	"hybridrag/internal/domain"
	"hybridrag/internal/logger"
)

var _ domain.DenseEmbedder = (*Client)(nil)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "text-embedding-3-small"
	DefaultTimeout   = 30 * time.Second
	DefaultBatchSize = 32
)

// ErrNoAPIKey is returned when the hosted OpenAI endpoint is used without a key.
var ErrNoAPIKey = errors.New("openai: missing API key")

// Model dimensions for known embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"all-minilm":             384,
}

// Client is an OpenAI-compatible embeddings client.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	batchSize int
	client    *http.Client
	limiter   *rate.Limiter
	retry     backoff.Policy
}

// Config configures the embeddings client. APIKey may be empty for local
// servers that do not authenticate.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
	BatchSize int
	// Dimension overrides the model's known output size.
	Dimension int
	// RequestsPerSecond throttles outgoing requests; zero disables throttling.
	RequestsPerSecond float64
	MaxRetries        int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKey == "" && cfg.BaseURL == DefaultBaseURL {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	dimension := cfg.Dimension
	if dimension == 0 {
		var ok bool
		dimension, ok = modelDimensions[cfg.Model]
		if !ok {
			return nil, fmt.Errorf("openai: unknown dimension for model %q; set it explicitly", cfg.Model)
		}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	retry := backoff.DefaultPolicy()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		dimension: dimension,
		batchSize: cfg.BatchSize,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(limit, 1),
		retry:     retry,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns one vector per text, requesting them in batches. Any failed
// batch fails the whole call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	// Ollama-native shape for single inputs
	Embedding  []float64   `json:"embedding"`
	Embeddings [][]float64 `json:"embeddings"`
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body := embeddingRequest{Input: texts, Model: c.model}
	if _, known := modelDimensions[c.model]; known && c.dimension != modelDimensions[c.model] {
		body.Dimensions = c.dimension
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var payload []byte
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return backoff.Retryable(fmt.Errorf("send request: %w", err))
		}
		defer resp.Body.Close()
		if backoff.ShouldRetryStatus(resp.StatusCode) {
			logger.Debug("openai embeddings: %s, retrying", resp.Status)
			return backoff.RetryableAfter(fmt.Errorf("openai embeddings failed: %s", resp.Status), backoff.RetryAfter(resp))
		}
		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("openai embeddings failed: %s: %s", resp.Status, bytes.TrimSpace(msg))
		}
		payload, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Retryable(fmt.Errorf("read response: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}

	vecs, err := decode(payload, len(texts))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}
	for _, v := range vecs {
		if len(v) != c.dimension {
			return nil, fmt.Errorf("%w: expected %d dimensions, got %d", domain.ErrEmbedding, c.dimension, len(v))
		}
	}
	return vecs, nil
}

func decode(payload []byte, want int) ([][]float32, error) {
	var out embeddingResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	vecs := make([][]float32, want)
	switch {
	case len(out.Data) > 0:
		for _, d := range out.Data {
			if d.Index < 0 || d.Index >= want {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			vecs[d.Index] = toFloat32(d.Embedding)
		}
	case len(out.Embeddings) > 0:
		for i := 0; i < want && i < len(out.Embeddings); i++ {
			vecs[i] = toFloat32(out.Embeddings[i])
		}
	case len(out.Embedding) > 0 && want == 1:
		vecs[0] = toFloat32(out.Embedding)
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
	}
	return vecs, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
