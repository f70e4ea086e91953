// Package similarity implements the string similarity measures used for
// registry matching and mention deduplication. All functions are pure and
// operate on runes.
package similarity

import (
	"sort"
	"strings"

	"github.com/faro-watch/faro/backend/pkg/textnorm"
)

// Jaro returns the Jaro similarity of a and b in [0, 1].
//
// The match window is floor(max(len)/2)-1. Either-empty pairs score 0.
func Jaro(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	// Greedy matching is order dependent; fixing the order keeps the
	// measure symmetric.
	if a > b {
		a, b = b, a
	}

	r1, r2 := []rune(a), []rune(b)
	len1, len2 := len(r1), len(r2)

	window := max(len1, len2)/2 - 1
	if window < 0 {
		window = 0
	}

	matched1 := make([]bool, len1)
	matched2 := make([]bool, len2)
	matches := 0
	for i := range r1 {
		lo := max(0, i-window)
		hi := min(len2, i+window+1)
		for j := lo; j < hi; j++ {
			if matched2[j] || r1[i] != r2[j] {
				continue
			}
			matched1[i] = true
			matched2[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	// Count matched characters that appear in a different order.
	transpositions := 0
	k := 0
	for i := range r1 {
		if !matched1[i] {
			continue
		}
		for !matched2[k] {
			k++
		}
		if r1[i] != r2[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(len1) + m/float64(len2) + (m-float64(transpositions)/2)/m) / 3
}

// JaroWinkler boosts the Jaro similarity by the length of the common prefix
// (at most 4 runes) with a scaling factor of 0.1, capped at 1.
func JaroWinkler(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	j := Jaro(a, b)

	prefix := 0
	r1, r2 := []rune(a), []rune(b)
	for prefix < 4 && prefix < len(r1) && prefix < len(r2) && r1[prefix] == r2[prefix] {
		prefix++
	}

	jw := j + float64(prefix)*0.1*(1-j)
	return min(jw, 1)
}

// indelDistance is the edit distance allowing only insertions and
// deletions, computed from the longest common subsequence.
func indelDistance(r1, r2 []rune) int {
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for i := 1; i <= len(r1); i++ {
		for j := 1; j <= len(r2); j++ {
			switch {
			case r1[i-1] == r2[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(r2)]
	return len(r1) + len(r2) - 2*lcs
}

// Ratio is the normalized edit-distance ratio of a and b in [0, 1]:
// (len(a)+len(b)-indel)/(len(a)+len(b)). Two empty strings score 0.
func Ratio(a, b string) float64 {
	r1, r2 := []rune(a), []rune(b)
	total := len(r1) + len(r2)
	if total == 0 {
		return 0
	}
	return float64(total-indelDistance(r1, r2)) / float64(total)
}

// SortedTokens normalizes s, splits it into tokens, sorts them and joins
// them with single spaces.
func SortedTokens(s string) string {
	tokens := textnorm.Tokens(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// TokenSortRatio is the word-order-insensitive similarity of a and b scaled
// to 0..100.
func TokenSortRatio(a, b string) float64 {
	return Ratio(SortedTokens(a), SortedTokens(b)) * 100
}
