// Package hashing is a local dense embedder: word unigrams and bigrams are
// hashed into a fixed number of signed buckets and the result is
// L2-normalised. It needs no model or network and is deterministic, which
// makes it the default for offline ingestion and tests.
package hashing

import (
	"context"
	"hash/fnv"
	"math"

	"hybridrag/internal/domain"
	"hybridrag/internal/embedding/lexical"
)

var _ domain.DenseEmbedder = (*Embedder)(nil)

// DefaultDimension is the dense width used when none is configured.
const DefaultDimension = 512

// Embedder hashes text into dense vectors.
type Embedder struct {
	dimension int
}

// NewEmbedder creates an embedder. Non-positive dimensions use the default.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hashing" }

// Dimension returns the size of the produced vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed returns one unit-length vector per text; text without tokens maps
// to the zero vector.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float32 {
	vec := make([]float32, e.dimension)
	tokens := lexical.Tokenize(text)
	for i, tok := range tokens {
		e.add(vec, tok, 1)
		if i > 0 {
			e.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	norm := 0.0
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

func (e *Embedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := sum % uint64(e.dimension)
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}
