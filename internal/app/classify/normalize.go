// Package classify holds the deterministic text classifiers of the response
// pipeline: emotion, subtype, topic and intent. Every classifier works on
// normalized text (lower case, accents folded) and evaluates its rules in
// declaration order.
package classify

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases s, folds accents ("pánico" → "panico") and collapses
// whitespace. ñ is folded to n as well; patterns are written accordingly.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// WordCount counts whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// rx compiles a case-insensitive pattern over normalized text.
func rx(pattern string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + pattern)
}
