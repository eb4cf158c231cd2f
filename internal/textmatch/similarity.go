// Package textmatch provides the string-matching primitives used by identity
// resolution: a normalized edit-distance similarity score and the input
// normalizers applied before comparison.
package textmatch

import (
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
)

// Similarity scores how close two strings are on a 0..1 scale, where 1 means
// identical (after lowercasing) and 0 means completely different. The score is
// (maxLen - editDistance) / maxLen over the lowercased inputs, so it is
// symmetric and reflexive by construction.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return 1.0
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := levenshtein.Distance(a, b, nil)
	return float64(maxLen-dist) / float64(maxLen)
}

// NormalizeName lowercases and collapses runs of whitespace so that catalog
// lookups are insensitive to spacing and case.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormalizePhone reduces a phone number to bare digits and folds the common
// Indonesian prefix variants ("+62", "62", leading "0") onto a single form so
// that 0812..., 62812... and +62 812... all compare equal.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "62") && len(digits) > 9:
		return digits[2:]
	case strings.HasPrefix(digits, "0"):
		return digits[1:]
	default:
		return digits
	}
}
