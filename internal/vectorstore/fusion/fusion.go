// Package fusion holds the scoring shared by the local vector stores: dense
// cosine similarity, IDF-weighted sparse dot products and Reciprocal Rank
// Fusion of the two candidate lists.
package fusion

import (
	"cmp"
	"math"
	"slices"

	"hybridrag/internal/domain"
)

// DefaultK is the RRF rank constant.
const DefaultK = 60

// Ranked is a scored point id.
type Ranked struct {
	ID    uint64
	Score float64
}

// Dot returns the dot product of two equally sized dense vectors. The body
// walks four lanes per step and finishes the tail one element at a time.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var sum float64
	i := 0
	for ; i+4 <= len(a); i += 4 {
		s0 := a[i]*b[i] + a[i+1]*b[i+1]
		s1 := a[i+2]*b[i+2] + a[i+3]*b[i+3]
		sum += float64(s0 + s1)
	}
	for ; i < len(a); i++ {
		sum += float64(a[i] * b[i])
	}
	return sum
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or their sizes differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	na, nb := Dot(a, a), Dot(b, b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (math.Sqrt(na) * math.Sqrt(nb))
}

// IDF is the smoothed inverse document frequency of a term found in df of n
// documents. It is always positive.
func IDF(n, df int) float64 {
	return math.Log((float64(n-df)+0.5)/(float64(df)+0.5) + 1)
}

// SparseDot multiplies the query and document weights of shared terms and
// scales each product by weight(term). Both vectors must have ascending
// indices. A nil weight means 1.
func SparseDot(q, d domain.SparseVector, weight func(uint32) float64) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(q.Indices) && j < len(d.Indices) {
		switch {
		case q.Indices[i] < d.Indices[j]:
			i++
		case q.Indices[i] > d.Indices[j]:
			j++
		default:
			w := 1.0
			if weight != nil {
				w = weight(q.Indices[i])
			}
			sum += float64(q.Values[i]) * float64(d.Values[j]) * w
			i++
			j++
		}
	}
	return sum
}

// Sort orders ranked entries by descending score, lower id first on ties.
func Sort(r []Ranked) {
	slices.SortFunc(r, func(a, b Ranked) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// RRF fuses ranked lists with Reciprocal Rank Fusion: every entry earns
// 1/(k+rank+1) per list it appears in. At most limit entries are returned;
// limit <= 0 returns all of them.
func RRF(k, limit int, lists ...[]Ranked) []Ranked {
	if k <= 0 {
		k = DefaultK
	}
	scores := make(map[uint64]float64)
	for _, list := range lists {
		for rank, r := range list {
			scores[r.ID] += 1.0 / float64(k+rank+1)
		}
	}
	out := make([]Ranked, 0, len(scores))
	for id, s := range scores {
		out = append(out, Ranked{ID: id, Score: s})
	}
	Sort(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Hybrid scores points against q in both spaces, keeps the best q.Prefetch
// candidates of each and fuses them. df maps a sparse term to the number of
// points containing it. Sparse candidates must share at least one term with
// the query.
func Hybrid(points []domain.Point, df map[uint32]int, q domain.HybridQuery) []Ranked {
	prefetch := q.Prefetch
	if prefetch < q.Limit {
		prefetch = q.Limit
	}
	n := len(points)
	weight := func(term uint32) float64 { return IDF(n, df[term]) }

	dense := make([]Ranked, 0, len(points))
	sparse := make([]Ranked, 0)
	for _, p := range points {
		dense = append(dense, Ranked{ID: p.ID, Score: Cosine(q.Dense, p.Dense)})
		if s := SparseDot(q.Sparse, p.Sparse, weight); s > 0 {
			sparse = append(sparse, Ranked{ID: p.ID, Score: s})
		}
	}
	Sort(dense)
	Sort(sparse)
	return RRF(DefaultK, q.Limit, truncate(dense, prefetch), truncate(sparse, prefetch))
}

func truncate(r []Ranked, n int) []Ranked {
	if n > 0 && len(r) > n {
		return r[:n]
	}
	return r
}
