package lexical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"chlorophyll", "absorbs", "light", "in", "leaves", "2"},
		Tokenize("Chlorophyll absorbs LIGHT in leaves (2)."))
	assert.Equal(t, []string{"plant's"}, Tokenize("plant's"))
	assert.Empty(t, Tokenize("  ... "))
}

func TestEmbed_TermFrequencies(t *testing.T) {
	e := NewEmbedder()
	vecs, err := e.Embed(context.Background(), []string{"Light and light and shade", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	v := vecs[0]
	require.Equal(t, 2, v.Len())
	weights := map[uint32]float32{}
	for i, idx := range v.Indices {
		weights[idx] = v.Values[i]
	}
	assert.Equal(t, float32(2), weights[TermIndex("light")])
	assert.Equal(t, float32(1), weights[TermIndex("shade")])
	assert.Zero(t, vecs[1].Len())
}

func TestEmbed_SortedIndicesAndDeterministic(t *testing.T) {
	e := NewEmbedder()
	a, err := e.Embed(context.Background(), []string{"photosynthesis converts light energy"})
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), []string{"photosynthesis converts light energy"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.IsNonDecreasing(t, a[0].Indices)
}

func TestEmbed_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder().Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestName(t *testing.T) {
	assert.Equal(t, "lexical", NewEmbedder().Name())
}
