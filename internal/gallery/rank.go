package gallery

import (
	"math"

	"github.com/andresmejia3/faceguard/internal/types"
)

// Comparator scores two features; higher is more similar.
type Comparator interface {
	Compare(a, b types.Feature) (float32, error)
}

// Match is the best gallery entry for a probe. Found is false when nothing cleared the threshold.
type Match struct {
	Index      int
	Label      string
	Similarity float32
	Found      bool
}

// Result carries the match plus every per-entry score, for callers that display them.
type Result struct {
	Match
	Scores []float32
	// Anomalies counts non-finite similarities that were coerced to zero.
	Anomalies int
	// Errors counts compare calls that failed and were scored as zero.
	Errors int
}

// Rank compares probe against every entry in order and keeps the maximum. The maximum is a
// match only when it is strictly greater than threshold; equal maxima keep the earliest entry.
func Rank(cmp Comparator, probe types.Feature, entries []types.GalleryEntry, threshold float32) Result {
	res := Result{Match: Match{Index: -1}, Scores: make([]float32, len(entries))}

	best := -1
	var bestScore float32
	for i, e := range entries {
		score, err := cmp.Compare(probe, e.Feature)
		if err != nil {
			res.Errors++
			score = 0
		} else if !finite(score) {
			res.Anomalies++
			score = 0
		}
		res.Scores[i] = score

		if best == -1 || score > bestScore {
			best = i
			bestScore = score
		}
	}

	if best >= 0 && bestScore > threshold {
		res.Match = Match{Index: best, Label: entries[best].Label, Similarity: bestScore, Found: true}
	}
	return res
}

func finite(f float32) bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
