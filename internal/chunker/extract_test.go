package chunker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridrag/internal/domain"
)

func span(text string, size float64, color string) domain.Span {
	return domain.Span{Text: text, Size: size, Color: color}
}

func TestExtract_JoinsSpansAndDropsNoise(t *testing.T) {
	page := domain.Page{
		Index: 3,
		Blocks: []domain.Block{
			{X: 40, Y: 100, Spans: []domain.Span{
				span("Light", 11, "#000000"),
				span("1 footnote", 8, "#777777"),
				span("reaction ", 11, "#000000"),
				span("caption", 9, "#000000"),
			}},
		},
	}

	chunks, err := Extract(page, DefaultMinFontSize)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, domain.Chunk{
		Text: "Light reaction", Page: 3, X: 40, Y: 100, Color: "#000000", Size: 11,
	}, chunks[0])
}

func TestExtract_SkipsImagesAndBlankBlocks(t *testing.T) {
	page := domain.Page{
		Blocks: []domain.Block{
			{Kind: domain.BlockImage, X: 0, Y: 0},
			{X: 10, Y: 10, Spans: []domain.Span{span("tiny", 6, "#000000")}},
			{X: 10, Y: 20, Spans: []domain.Span{span("   ", 12, "#000000")}},
			{X: 10, Y: 30},
			{X: 10, Y: 40, Spans: []domain.Span{span("kept", 12, "#000000")}},
		},
	}

	chunks, err := Extract(page, DefaultMinFontSize)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "kept", chunks[0].Text)
}

func TestExtract_EmptyPage(t *testing.T) {
	chunks, err := Extract(domain.Page{}, DefaultMinFontSize)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestExtract_NonFiniteGeometry(t *testing.T) {
	page := domain.Page{Blocks: []domain.Block{
		{X: math.NaN(), Y: 1, Spans: []domain.Span{span("x", 12, "")}},
	}}
	_, err := Extract(page, DefaultMinFontSize)
	assert.ErrorIs(t, err, domain.ErrParse)

	page = domain.Page{Blocks: []domain.Block{
		{X: 1, Y: 1, Spans: []domain.Span{span("x", math.Inf(1), "")}},
	}}
	_, err = Extract(page, DefaultMinFontSize)
	assert.ErrorIs(t, err, domain.ErrParse)
}

func TestVoteSize_CharacterMass(t *testing.T) {
	spans := []domain.Span{span("abcde", 10, ""), span("fgh", 12, "")}
	assert.Equal(t, 10.0, VoteSize(spans))

	// Fewer spans but more characters still win.
	spans = []domain.Span{span("a", 10, ""), span("b", 10, ""), span("longer text", 14, "")}
	assert.Equal(t, 14.0, VoteSize(spans))
}

func TestVote_SingleValueWins(t *testing.T) {
	spans := []domain.Span{span("a", 11, "red"), span("bb", 11, "red"), span("ccc", 11, "red")}
	assert.Equal(t, 11.0, VoteSize(spans))
	assert.Equal(t, "red", VoteColor(spans))
}

func TestVote_TieBreaksToLowestValue(t *testing.T) {
	spans := []domain.Span{span("abc", 14, "#ff0000"), span("xyz", 10, "#000000")}
	assert.Equal(t, 10.0, VoteSize(spans))
	assert.Equal(t, "#000000", VoteColor(spans))

	reversed := []domain.Span{spans[1], spans[0]}
	assert.Equal(t, 10.0, VoteSize(reversed))
	assert.Equal(t, "#000000", VoteColor(reversed))
}

func TestVote_CountsRunesNotBytes(t *testing.T) {
	// "éé" is two runes but four bytes.
	spans := []domain.Span{span("éé", 12, ""), span("abc", 11, "")}
	assert.Equal(t, 11.0, VoteSize(spans))
}
