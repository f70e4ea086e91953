package curation

import (
	"strings"
	"unicode/utf8"

	"github.com/faro-watch/faro/backend/pkg/common"
)

// SnippetRadius is the number of bytes of context taken on each side of a
// mention.
const SnippetRadius = 240

// Snippet returns the text around offsets, widened by radius bytes and
// trimmed to rune and word boundaries. Out-of-range offsets yield "".
func Snippet(text string, offsets common.ByteOffsets, radius int) string {
	if offsets.Start < 0 || offsets.End > len(text) || offsets.Start > offsets.End {
		return ""
	}
	start := max(offsets.Start-radius, 0)
	end := min(offsets.End+radius, len(text))

	for start > 0 && !utf8.RuneStart(text[start]) {
		start++
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}

	if start > 0 {
		if i := strings.IndexAny(text[start:offsets.Start], " \n\t"); i >= 0 {
			start += i + 1
		}
	}
	if end < len(text) {
		if i := strings.LastIndexAny(text[offsets.End:end], " \n\t"); i >= 0 {
			end = offsets.End + i
		}
	}
	return strings.Join(strings.Fields(text[start:end]), " ")
}
