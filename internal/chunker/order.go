package chunker

import (
	"slices"

	"hybridrag/internal/domain"
)

// DefaultColumnThreshold is the x-origin separating the left and right column.
const DefaultColumnThreshold = 300.0

// SortReadingOrder orders one page's chunks for a two-column layout: the
// left column (x < threshold) top to bottom, then the right column top to
// bottom. Pages with another column count still come out in a stable, if
// not human, order. The input slice is not modified.
func SortReadingOrder(chunks []domain.Chunk, threshold float64) []domain.Chunk {
	left := make([]domain.Chunk, 0, len(chunks))
	var right []domain.Chunk
	for _, c := range chunks {
		if c.X < threshold {
			left = append(left, c)
		} else {
			right = append(right, c)
		}
	}
	byY := func(a, b domain.Chunk) int {
		switch {
		case a.Y < b.Y:
			return -1
		case a.Y > b.Y:
			return 1
		}
		return 0
	}
	slices.SortStableFunc(left, byY)
	slices.SortStableFunc(right, byY)
	return append(left, right...)
}
