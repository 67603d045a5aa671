package resolver

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Ratio is the Ratcliff/Obershelp similarity of a and b in [0, 1], computed
// over runes so multi-byte names compare per character.
func Ratio(a, b string) float64 {
	m := difflib.NewMatcher(splitRunes(a), splitRunes(b))
	return m.Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
