package gallery

import (
	"errors"
	"math"
	"testing"

	"github.com/andresmejia3/faceguard/internal/types"
)

// fakeComparator scores a gallery feature by its first byte.
type fakeComparator struct {
	scores map[byte]float32
	fail   map[byte]bool
	calls  int
}

func (f *fakeComparator) Compare(probe, e types.Feature) (float32, error) {
	f.calls++
	key := e.Data[0]
	if f.fail[key] {
		return 0, errors.New("compare failed")
	}
	return f.scores[key], nil
}

func entries(n int) []types.GalleryEntry {
	out := make([]types.GalleryEntry, n)
	for i := range out {
		out[i] = types.GalleryEntry{Label: string(rune('A' + i)), Feature: types.Feature{Data: []byte{byte(i)}}}
	}
	return out
}

func TestRank(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name      string
		scores    map[byte]float32
		fail      map[byte]bool
		n         int
		threshold float32
		wantFound bool
		wantIndex int
		wantSim   float32
	}{
		{"Best of two wins", map[byte]float32{0: 0.9, 1: 0.95}, nil, 2, 0.8, true, 1, 0.95},
		{"Below threshold", map[byte]float32{0: 0.79}, nil, 1, 0.8, false, -1, 0},
		{"Equal to threshold is not a match", map[byte]float32{0: 0.8}, nil, 1, 0.8, false, -1, 0},
		{"Tie keeps first entry", map[byte]float32{0: 0.5, 1: 0.9, 2: 0.9}, nil, 3, 0.8, true, 1, 0.9},
		{"NaN counts as zero", map[byte]float32{0: nan, 1: 0.85}, nil, 2, 0.8, true, 1, 0.85},
		{"Inf never wins", map[byte]float32{0: inf, 1: 0.81}, nil, 2, 0.8, true, 1, 0.81},
		{"Compare error counts as zero", map[byte]float32{0: 0.99, 1: 0.82}, map[byte]bool{0: true}, 2, 0.8, true, 1, 0.82},
		{"Empty gallery", nil, nil, 0, 0.8, false, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmp := &fakeComparator{scores: tt.scores, fail: tt.fail}
			res := Rank(cmp, types.Feature{Data: []byte{0xAA}}, entries(tt.n), tt.threshold)

			if res.Found != tt.wantFound || res.Index != tt.wantIndex {
				t.Fatalf("Rank() = %+v, want found=%v index=%d", res.Match, tt.wantFound, tt.wantIndex)
			}
			if tt.wantFound && res.Similarity != tt.wantSim {
				t.Errorf("Similarity = %v, want %v", res.Similarity, tt.wantSim)
			}
			if cmp.calls != tt.n || len(res.Scores) != tt.n {
				t.Errorf("Expected %d comparisons and scores, got %d / %d", tt.n, cmp.calls, len(res.Scores))
			}
		})
	}
}

func TestRankCountsAnomalies(t *testing.T) {
	cmp := &fakeComparator{
		scores: map[byte]float32{0: float32(math.NaN()), 1: float32(math.Inf(-1)), 2: 0.3},
		fail:   map[byte]bool{3: true},
	}
	res := Rank(cmp, types.Feature{Data: []byte{1}}, entries(4), 0.8)
	if res.Anomalies != 2 || res.Errors != 1 {
		t.Errorf("Expected 2 anomalies and 1 error, got %d and %d", res.Anomalies, res.Errors)
	}
	if res.Scores[0] != 0 || res.Scores[1] != 0 || res.Scores[3] != 0 {
		t.Errorf("Anomalous scores must be reported as zero: %v", res.Scores)
	}
}

func TestRankIsIdempotent(t *testing.T) {
	cmp := &fakeComparator{scores: map[byte]float32{0: 0.85, 1: 0.95, 2: 0.4}}
	g := New()
	for _, e := range entries(3) {
		g.Append(e.Label, e.Feature)
	}
	snap, _ := g.Snapshot()
	first := Rank(cmp, types.Feature{Data: []byte{9}}, snap, 0.8)
	for i := 0; i < 5; i++ {
		if again := Rank(cmp, types.Feature{Data: []byte{9}}, snap, 0.8); again.Match != first.Match {
			t.Fatalf("Rank changed between calls: %+v vs %+v", first.Match, again.Match)
		}
	}
	if first.Label != "B" {
		t.Errorf("Expected label B, got %q", first.Label)
	}
}

func TestGalleryLifecycle(t *testing.T) {
	g := New()
	gen0 := g.Generation()

	feat := types.Feature{Data: []byte{1, 2}}
	if idx := g.Append("alice", feat); idx != 0 {
		t.Errorf("First index = %d, want 0", idx)
	}
	feat.Data[0] = 9 // caller reuses its buffer
	if idx := g.Append("bob", types.Feature{Data: []byte{3}}); idx != 1 {
		t.Errorf("Second index = %d, want 1", idx)
	}

	snap, gen := g.Snapshot()
	if gen != gen0 {
		t.Error("Append must not start a new generation")
	}
	if snap[0].Feature.Data[0] != 1 {
		t.Error("Gallery must own a copy of appended features")
	}

	g.Append("carol", types.Feature{Data: []byte{4}})
	if len(snap) != 2 {
		t.Error("Snapshot must not see later appends")
	}

	g.Clear()
	if g.Len() != 0 || g.Generation() == gen0 {
		t.Errorf("Clear left len=%d gen=%d", g.Len(), g.Generation())
	}

	g.Load([]types.GalleryEntry{{Label: "dave", Feature: types.Feature{Data: []byte{5}}}})
	if labels := g.Labels(); len(labels) != 1 || labels[0] != "dave" {
		t.Errorf("Load produced %v", labels)
	}
}

func TestMatchesFilter(t *testing.T) {
	tests := []struct {
		label, filter string
		want          bool
	}{
		{"Jiří Novák", "jiri", true},
		{"Jiří Novák", "NOVAK", true},
		{"mary-jane_watson", "jane watson", true},
		{"Zoë", "zoe", true},
		{"alice", "bob", false},
		{"anything", "   ", true},
	}
	for _, tt := range tests {
		if got := MatchesFilter(tt.label, tt.filter); got != tt.want {
			t.Errorf("MatchesFilter(%q, %q) = %v, want %v", tt.label, tt.filter, got, tt.want)
		}
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Jiří  Novák", "jiri novak"},
		{"Zoë_Saldaña", "zoe saldana"},
		{" mary-jane ", "mary jane"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeLabel(tt.in); got != tt.want {
			t.Errorf("NormalizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
