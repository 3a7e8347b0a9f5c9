package chunker

import (
	"cmp"
	"unicode/utf8"

	"hybridrag/internal/domain"
)

// VoteSize returns the font size carrying the most characters among spans.
func VoteSize(spans []domain.Span) float64 {
	return vote(spans, func(s domain.Span) float64 { return s.Size })
}

// VoteColor returns the colour carrying the most characters among spans.
func VoteColor(spans []domain.Span) string {
	return vote(spans, func(s domain.Span) string { return s.Color })
}

// vote weighs each attribute value by the characters of the spans holding it.
// Equal weights resolve to the lowest value so the outcome never depends on
// span order.
func vote[T cmp.Ordered](spans []domain.Span, attr func(domain.Span) T) T {
	counts := make(map[T]int, len(spans))
	for _, s := range spans {
		counts[attr(s)] += utf8.RuneCountInString(s.Text)
	}
	var (
		best      T
		bestCount = -1
	)
	for v, n := range counts {
		if n > bestCount || (n == bestCount && cmp.Less(v, best)) {
			best, bestCount = v, n
		}
	}
	return best
}
