package chunker

import (
	"strings"

	"hybridrag/internal/domain"
)

// DefaultActivityMarker opens an activity group when found in a chunk's text.
const DefaultActivityMarker = "Activity"

// MergeActivities folds every chunk containing marker together with the run
// of chunks that follows it. The run continues while chunk sizes equal the
// size of the first chunk after the anchor (not the anchor's own size). The
// anchor keeps its position and style; absorbed texts are appended to it one
// per line. Scanning resumes after the run.
func MergeActivities(chunks []domain.Chunk, marker string) []domain.Chunk {
	if marker == "" {
		return append([]domain.Chunk(nil), chunks...)
	}
	out := make([]domain.Chunk, 0, len(chunks))
	for i := 0; i < len(chunks); i++ {
		anchor := chunks[i]
		if !strings.Contains(anchor.Text, marker) || i+1 >= len(chunks) {
			out = append(out, anchor)
			continue
		}
		size := chunks[i+1].Size
		parts := []string{anchor.Text}
		j := i + 1
		for ; j < len(chunks) && chunks[j].Size == size; j++ {
			parts = append(parts, chunks[j].Text)
		}
		anchor.Text = strings.Join(parts, "\n")
		out = append(out, anchor)
		i = j - 1
	}
	return out
}
