// Package chunker turns page-structured documents into an ordered sequence
// of text chunks: per-page extraction with style voting, two-column reading
// order, text normalisation, and merging of activity blocks.
package chunker

import (
	"fmt"
	"math"
	"strings"

	"hybridrag/internal/domain"
)

// DefaultMinFontSize is the noise threshold: spans at or below it are dropped.
const DefaultMinFontSize = 9.0

// Extract converts one page into candidate chunks in block order.
// Image blocks are skipped, as are spans whose font size does not exceed
// minFontSize. A block whose remaining text is blank yields no chunk.
func Extract(page domain.Page, minFontSize float64) ([]domain.Chunk, error) {
	chunks := make([]domain.Chunk, 0, len(page.Blocks))
	for bi, block := range page.Blocks {
		if block.Kind == domain.BlockImage {
			continue
		}
		if !finite(block.X) || !finite(block.Y) {
			return nil, fmt.Errorf("%w: page %d block %d has non-finite origin", domain.ErrParse, page.Index, bi)
		}
		var sb strings.Builder
		kept := make([]domain.Span, 0, len(block.Spans))
		for si, span := range block.Spans {
			if !finite(span.Size) {
				return nil, fmt.Errorf("%w: page %d block %d span %d has non-finite size", domain.ErrParse, page.Index, bi, si)
			}
			if span.Size <= minFontSize {
				continue
			}
			sb.WriteString(span.Text)
			sb.WriteByte(' ')
			kept = append(kept, span)
		}
		text := strings.TrimSpace(sb.String())
		if text == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			Text:  text,
			Page:  page.Index,
			X:     block.X,
			Y:     block.Y,
			Color: VoteColor(kept),
			Size:  VoteSize(kept),
		})
	}
	return chunks, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
