package chunker

import "strings"

// Normalize trims s, collapses whitespace runs to one space, and keeps only
// the first occurrence of every word. This repairs repeated-token artifacts
// from extraction, at the cost of also dropping legitimate repeats:
// "the the cat the dog" becomes "the cat dog".
func Normalize(s string) string {
	words := strings.Fields(s)
	seen := make(map[string]struct{}, len(words))
	out := words[:0]
	for _, w := range words {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}
