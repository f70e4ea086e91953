package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sentence is a half-open byte span of the source text.
type sentence struct {
	start, end int
}

var abbreviations = map[string]struct{}{
	"sr": {}, "sra": {}, "srta": {}, "dr": {}, "dra": {}, "gral": {}, "gen": {},
	"lic": {}, "ing": {}, "cnel": {}, "tte": {}, "cap": {}, "mr": {}, "mrs": {},
	"ms": {}, "jr": {}, "st": {}, "nro": {}, "vs": {}, "etc": {}, "col": {},
}

// splitSentences splits text into sentence spans without copying it, so that
// byte offsets found inside a sentence stay valid for the whole text.
//
// A terminator only ends a sentence when it is followed by whitespace (after
// any closing quotes or brackets) and the next word does not start in lower
// case. Numeric listings ("1. "), initials ("J. Pérez") and common
// abbreviations never end a sentence. A blank line always does.
func splitSentences(text string) []sentence {
	var out []sentence
	start := 0

	emit := func(end int) {
		s, e := trimSpan(text, start, end)
		if s < e {
			out = append(out, sentence{start: s, end: e})
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]

		if c == '\n' {
			j := i + 1
			for j < len(text) && (text[j] == ' ' || text[j] == '\t' || text[j] == '\r') {
				j++
			}
			if j < len(text) && text[j] == '\n' {
				emit(i)
				start = j + 1
				i = j
			}
			continue
		}

		if c != '.' && c != '!' && c != '?' {
			continue
		}

		if i > 0 && unicode.IsDigit(rune(text[i-1])) && i+1 < len(text) && text[i+1] == ' ' {
			continue
		}
		if c == '.' && (isInitial(text, i) || isAbbreviation(text, i)) {
			continue
		}

		j := i + 1
		for j < len(text) && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
			j++
		}
		for j < len(text) && (text[j] == '"' || text[j] == '\'' || text[j] == ')' ||
			text[j] == ']' || text[j] == '}') {
			j++
		}
		if j < len(text) && !isSpace(text[j]) {
			continue
		}

		k := j
		for k < len(text) && isSpace(text[k]) {
			k++
		}
		if k < len(text) {
			r, _ := utf8.DecodeRuneInString(text[k:])
			if unicode.IsLower(r) {
				continue
			}
		}

		emit(j)
		start = j
		i = j - 1
	}

	emit(len(text))
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func trimSpan(text string, start, end int) (int, int) {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	return start, end
}

// isInitial reports whether the period at i closes a single upper-case
// letter standing on its own ("J." or the "S." of "S.A.").
func isInitial(text string, i int) bool {
	r, size := utf8.DecodeLastRuneInString(text[:i])
	if size == 0 || !unicode.IsUpper(r) {
		return false
	}
	before := i - size
	if before == 0 {
		return true
	}
	p, _ := utf8.DecodeLastRuneInString(text[:before])
	return !unicode.IsLetter(p)
}

func isAbbreviation(text string, i int) bool {
	j := i
	for j > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:j])
		if !unicode.IsLetter(r) {
			break
		}
		j -= size
	}
	if j == i {
		return false
	}
	_, ok := abbreviations[strings.ToLower(text[j:i])]
	return ok
}
