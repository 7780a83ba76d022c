package gallery

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeLabel folds a label for searching: accents stripped, lower case, dashes and
// underscores read as spaces, runs of whitespace collapsed.
func NormalizeLabel(label string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, label); err == nil {
		label = folded
	}
	label = strings.ToLower(label)
	label = strings.NewReplacer("-", " ", "_", " ").Replace(label)
	return strings.Join(strings.Fields(label), " ")
}

// MatchesFilter reports whether label contains filter once both are normalised.
// An empty filter matches everything.
func MatchesFilter(label, filter string) bool {
	f := NormalizeLabel(filter)
	if f == "" {
		return true
	}
	return strings.Contains(NormalizeLabel(label), f)
}
