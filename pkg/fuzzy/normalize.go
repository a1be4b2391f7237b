// Package fuzzy provides text normalization and approximate name matching
// for coursebot.
package fuzzy

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD, removes combining marks, and recomposes.
// This maps "Cálculo" and "calculo" to the same byte sequence.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritical marks, and trims surrounding
// whitespace. It is deterministic and idempotent; the empty string maps to
// the empty string.
func Normalize(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		// Invalid UTF-8 passes through untransformed; lowercasing and
		// trimming still apply.
		out = s
	}
	return strings.TrimSpace(strings.ToLower(out))
}
