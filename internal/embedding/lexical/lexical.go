// Package lexical produces sparse term-frequency vectors for keyword matching.
// Terms are hashed into a 32-bit index space, so no vocabulary has to be
// built or shared between ingestion and query time; inverse document
// frequency is applied by the vector store.
package lexical

import (
	"context"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"

	"hybridrag/internal/domain"
)

var _ domain.SparseEmbedder = (*Embedder)(nil)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// Embedder maps text to hashed term-frequency vectors.
type Embedder struct {
	stopwords map[string]struct{}
}

// NewEmbedder creates an embedder using the built-in English stopword list.
func NewEmbedder() *Embedder {
	return &Embedder{stopwords: defaultStopwords()}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "lexical" }

// Embed returns one sparse vector per text. Texts without any indexable
// term map to an empty vector.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([]domain.SparseVector, error) {
	out := make([]domain.SparseVector, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *Embedder) vector(text string) domain.SparseVector {
	tf := make(map[uint32]float32)
	for _, tok := range Tokenize(text) {
		if _, isStop := e.stopwords[tok]; isStop {
			continue
		}
		tf[TermIndex(tok)]++
	}
	v := domain.SparseVector{
		Indices: make([]uint32, 0, len(tf)),
		Values:  make([]float32, 0, len(tf)),
	}
	for idx := range tf {
		v.Indices = append(v.Indices, idx)
	}
	// Stable ordering keeps payloads reproducible across runs
	sort.Slice(v.Indices, func(i, j int) bool { return v.Indices[i] < v.Indices[j] })
	for _, idx := range v.Indices {
		v.Values = append(v.Values, tf[idx])
	}
	return v
}

// Tokenize lower-cases text and returns its letter and digit runs.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// TermIndex returns the sparse index for a token.
func TermIndex(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return h.Sum32()
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
