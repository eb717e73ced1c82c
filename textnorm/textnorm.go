// Package textnorm folds medication and condition names into comparable keys.
// Keys are case-folded, stripped of diacritics and whitespace-collapsed so that
// "Amoxicilline", "AMOXICILLINE " and "amoxicilline" resolve identically.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key returns the lookup key for s. An empty or blank s yields "".
func Key(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// Casers and transform chains are stateful, so build them per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// Equal reports whether a and b have the same key.
func Equal(a, b string) bool {
	return Key(a) == Key(b)
}

// Contains reports whether the key of needle is a substring of the key of
// haystack. An empty needle never matches.
func Contains(haystack, needle string) bool {
	n := Key(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Key(haystack), n)
}
