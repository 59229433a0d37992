package rank

import (
	"math"
	"math/rand"
	"strconv"
	"testing"
)

func TestCosine_SelfSimilarity(t *testing.T) {
	v := []float32{0.3, -1.2, 4.5, 0.01}
	if got := Cosine(v, v); math.Abs(got-1) > 1e-9 {
		t.Errorf("Cosine(v, v) = %v, want 1", got)
	}
}

func TestCosine_DistinctVectors(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 1, 0}
	if got := Cosine(a, b); got >= 1 {
		t.Errorf("Cosine(a, b) = %v, want < 1", got)
	}
	if got := Cosine(a, []float32{0, 1, 0}); got != 0 {
		t.Errorf("orthogonal = %v, want 0", got)
	}
	if got := Cosine(a, []float32{-2, 0, 0}); math.Abs(got+1) > 1e-9 {
		t.Errorf("opposite = %v, want -1", got)
	}
}

func TestCosine_Guards(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
	}{
		{"zero norm a", []float32{0, 0}, []float32{1, 2}},
		{"zero norm b", []float32{1, 2}, []float32{0, 0}},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if got != 0 || math.IsNaN(got) {
				t.Errorf("Cosine = %v, want 0", got)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
		want int
	}{
		{"higher score first", Key{Score: 0.9, EntityID: "9"}, Key{Score: 0.5, EntityID: "1"}, -1},
		{"lower numeric id on tie", Key{Score: 0.5, EntityID: "2"}, Key{Score: 0.5, EntityID: "10"}, -1},
		{"numeric before text id", Key{Score: 0.5, EntityID: "99"}, Key{Score: 0.5, EntityID: "abc"}, -1},
		{"text ids lexicographic", Key{Score: 0.5, EntityID: "beta"}, Key{Score: 0.5, EntityID: "alpha"}, 1},
		{"kind breaks full tie", Key{Score: 0.5, EntityID: "7", Kind: "place"}, Key{Score: 0.5, EntityID: "7", Kind: "verse"}, -1},
		{"identical", Key{Score: 0.5, EntityID: "7", Kind: "verse"}, Key{Score: 0.5, EntityID: "7", Kind: "verse"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); sign(got) != tt.want {
				t.Errorf("Compare = %d, want %d", got, tt.want)
			}
			if got := Compare(tt.b, tt.a); sign(got) != -tt.want {
				t.Errorf("Compare reversed = %d, want %d", got, -tt.want)
			}
		})
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

func TestTopK_TieBreakIndependentOfInputOrder(t *testing.T) {
	// Every candidate has the same direction, so every score ties.
	base := []Candidate{
		{EntityID: "30", Vector: []float32{1, 1}},
		{EntityID: "4", Vector: []float32{2, 2}},
		{EntityID: "100", Vector: []float32{3, 3}},
		{EntityID: "7", Vector: []float32{0.5, 0.5}},
	}
	want := []string{"4", "7", "30"}

	rng := rand.New(rand.NewSource(1))
	for run := 0; run < 20; run++ {
		cands := make([]Candidate, len(base))
		copy(cands, base)
		rng.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })

		got := TopK([]float32{1, 1}, cands, 3)
		if len(got) != 3 {
			t.Fatalf("got %d results", len(got))
		}
		for i, s := range got {
			if s.EntityID != want[i] {
				t.Fatalf("run %d: position %d = %s, want %s", run, i, s.EntityID, want[i])
			}
			if cands[s.Index].EntityID != s.EntityID {
				t.Fatalf("Index %d does not point at %s", s.Index, s.EntityID)
			}
		}
	}
}

func TestTopK_MatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cands := make([]Candidate, 500)
	for i := range cands {
		v := make([]float32, 8)
		for j := range v {
			// Coarse values force plenty of exact score ties.
			v[j] = float32(rng.Intn(3) - 1)
		}
		cands[i] = Candidate{EntityID: strconv.Itoa(rng.Intn(1000)), Kind: "verse", Vector: v}
	}
	query := []float32{1, 0, -1, 1, 0, 1, -1, 0}

	all := make([]Scored, len(cands))
	for i, c := range cands {
		all[i] = Scored{Key: Key{Score: Cosine(query, c.Vector), EntityID: c.EntityID, Kind: c.Kind}, Index: i}
	}
	Sort(all, func(s Scored) Key { return s.Key })

	for _, k := range []int{1, 5, 20, 499, 500, 800} {
		got := TopK(query, cands, k)
		n := min(k, len(cands))
		if len(got) != n {
			t.Fatalf("k=%d: got %d results, want %d", k, len(got), n)
		}
		for i := range got {
			if Compare(got[i].Key, all[i].Key) != 0 {
				t.Fatalf("k=%d: position %d = %+v, want %+v", k, i, got[i].Key, all[i].Key)
			}
		}
	}
}

func TestTopK_Rechunked(t *testing.T) {
	// Ranking chunks separately and merging must agree with one pass.
	cands := []Candidate{
		{EntityID: "5", Vector: []float32{1, 0}},
		{EntityID: "3", Vector: []float32{1, 0}},
		{EntityID: "8", Vector: []float32{0, 1}},
		{EntityID: "1", Vector: []float32{1, 0.1}},
		{EntityID: "2", Vector: []float32{1, 0}},
	}
	q := []float32{1, 0}
	whole := TopK(q, cands, 3)

	merged := append(TopK(q, cands[:2], 3), TopK(q, cands[2:], 3)...)
	Sort(merged, func(s Scored) Key { return s.Key })
	merged = merged[:3]

	for i := range whole {
		if whole[i].EntityID != merged[i].EntityID {
			t.Errorf("position %d: whole=%s merged=%s", i, whole[i].EntityID, merged[i].EntityID)
		}
	}
	if whole[0].EntityID != "2" || whole[1].EntityID != "3" || whole[2].EntityID != "5" {
		t.Errorf("unexpected order: %v", whole)
	}
}

func TestTopK_Empty(t *testing.T) {
	if got := TopK([]float32{1}, nil, 5); len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
	if got := TopK([]float32{1}, []Candidate{{EntityID: "1", Vector: []float32{1}}}, 0); len(got) != 0 {
		t.Errorf("k=0: expected no results, got %d", len(got))
	}
}

func TestSort_Generic(t *testing.T) {
	type row struct {
		id    string
		score float64
	}
	rows := []row{{"10", 0.5}, {"2", 0.5}, {"x", 0.9}}
	Sort(rows, func(r row) Key { return Key{Score: r.score, EntityID: r.id} })
	if rows[0].id != "x" || rows[1].id != "2" || rows[2].id != "10" {
		t.Errorf("Sort = %v", rows)
	}
}
