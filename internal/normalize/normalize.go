// Package normalize canonicalizes free-text event descriptions so that the same
// legal event reported by different sources compares equal.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxLen bounds the hash input and cuts off near-duplicate long-tail divergence.
const maxLen = 200

// stripMarks decomposes to NFD and drops combining marks, so "Sentença"
// normalizes the same as "Sentenca".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Description normalizes a raw event description for hashing and comparison:
// lower-case, strip diacritics, drop punctuation, collapse whitespace, trim,
// truncate to 200 runes. Deterministic and side-effect free.
func Description(raw string) string {
	s := strings.ToLower(raw)
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	s = strings.Join(strings.Fields(b.String()), " ")

	if runes := []rune(s); len(runes) > maxLen {
		s = strings.TrimSpace(string(runes[:maxLen]))
	}
	return s
}
