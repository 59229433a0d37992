// Package rank is the similarity ranking kernel: cosine scoring, bounded
// top-K selection and the deterministic result order.
package rank

import (
	"container/heap"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Key is the part of a ranked item that defines its position.
type Key struct {
	Score    float64
	EntityID string
	Kind     string
}

// Compare orders keys: higher score first, then lower entity id, then kind.
// Entity ids compare numerically when both are unsigned integers; numeric ids
// sort before non-numeric ones; anything else compares lexicographically.
// It returns a negative number when a ranks before b.
func Compare(a, b Key) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	}
	if c := compareIDs(a.EntityID, b.EntityID); c != 0 {
		return c
	}
	return strings.Compare(a.Kind, b.Kind)
}

// Less reports whether a ranks strictly before b.
func Less(a, b Key) bool { return Compare(a, b) < 0 }

func compareIDs(a, b string) int {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		// "007" and "7" parse equal; fall through to the text form.
		return strings.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// Sort re-applies the ranking order to any slice, given a key extractor.
func Sort[T any](items []T, key func(T) Key) {
	slices.SortStableFunc(items, func(a, b T) int {
		return Compare(key(a), key(b))
	})
}

// Cosine returns dot(a,b) / (|a|*|b|) accumulated in float64.
// Mismatched lengths, empty vectors and zero norms yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Rounding can push parallel vectors a hair past the bounds.
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

// Candidate is one pre-computed vector considered for a query.
type Candidate struct {
	EntityID string
	Kind     string
	Vector   []float32
}

// Scored is a ranked candidate. Index points back into the candidate slice.
type Scored struct {
	Key
	Index int
}

// TopK scores every candidate against query and returns the k best in rank order.
// Selection uses a bounded min-heap: O(N*d) scoring plus O(N log k) selection.
func TopK(query []float32, candidates []Candidate, k int) []Scored {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	h := make(worstFirst, 0, min(k, len(candidates)))
	for i := range candidates {
		c := &candidates[i]
		s := Scored{
			Key:   Key{Score: Cosine(query, c.Vector), EntityID: c.EntityID, Kind: c.Kind},
			Index: i,
		}
		if len(h) < k {
			heap.Push(&h, s)
			continue
		}
		if Less(s.Key, h[0].Key) {
			h[0] = s
			heap.Fix(&h, 0)
		}
	}
	out := []Scored(h)
	Sort(out, func(s Scored) Key { return s.Key })
	return out
}

// worstFirst keeps the lowest-ranked item at the root.
type worstFirst []Scored

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return Less(h[j].Key, h[i].Key) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *worstFirst) Push(x any) { *h = append(*h, x.(Scored)) }

func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
