// Package textnorm holds the pure normalization functions shared by the
// extractor, matcher, deduplicator and graph upserter.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripDiacritics decomposes s (NFD), drops combining marks and recomposes
// the result (NFC). "Nicolás" becomes "Nicolas".
func StripDiacritics(s string) string {
	if s == "" {
		return s
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CollapseSpace trims s and replaces every whitespace run with a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Key is the comparison form of a name: diacritics stripped, lower-cased and
// whitespace-collapsed.
func Key(s string) string {
	return CollapseSpace(strings.ToLower(StripDiacritics(s)))
}

// Tokens splits the key form of s on every rune that is neither a letter nor
// a digit.
func Tokens(s string) []string {
	return strings.FieldsFunc(Key(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// DisplayName is the canonical display form of a name: trimmed, whitespace
// collapsed, casing and diacritics kept.
func DisplayName(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return CollapseSpace(s)
}
