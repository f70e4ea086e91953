// Package dedupe compares mentions with each other to find variant spellings
// of the same entity, and raises quality issues that send a mention to
// human review.
package dedupe

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/similarity"
	"github.com/faro-watch/faro/backend/pkg/textnorm"
)

// DefaultMinSimilarity is the Jaro-Winkler threshold for duplicates.
const DefaultMinSimilarity = 0.85

// Issue messages raised by FlagForReview.
const (
	IssueTooShort  = "text shorter than 2 characters"
	IssueStopword  = "person name is a stopword or discourse marker"
	IssueAcronym   = "person name is all caps without vowels (suspected acronym)"
	IssueGazetteer = "person name matches a known place or country"
)

// Lists are the heuristic word tables used by FlagForReview. Entries are
// compared in normalized form.
type Lists struct {
	Stopwords []string
	Gazetteer []string
}

// DefaultLists returns the built-in Spanish/English tables.
func DefaultLists() Lists {
	return Lists{
		Stopwords: []string{
			"el", "la", "los", "las", "un", "una", "de", "del", "y", "o", "en", "por", "para",
			"con", "sin", "segun", "ademas", "tambien", "sin embargo", "asimismo", "luego",
			"entonces", "mientras", "aunque", "pero", "cuando", "donde", "este", "esta", "estos",
			"estas", "ese", "esa", "aquel", "dijo", "senalo", "afirmo", "informo", "agrego",
			"presidente", "ministro", "gobierno", "fuentes", "hoy", "ayer", "lunes", "martes",
			"miercoles", "jueves", "viernes", "sabado", "domingo", "enero", "febrero", "marzo",
			"abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre",
			"diciembre", "the", "a", "an", "and", "or", "in", "on", "for", "with", "however",
			"meanwhile", "according", "also", "this", "that", "these", "those", "he", "she",
			"they", "it", "said", "monday", "tuesday", "wednesday", "thursday", "friday",
			"saturday", "sunday", "president", "minister", "government", "sources", "today",
			"yesterday",
		},
		Gazetteer: []string{
			"venezuela", "caracas", "maracaibo", "valencia", "barquisimeto", "zulia", "miranda",
			"carabobo", "tachira", "merida", "anzoategui", "bolivar", "apure", "falcon",
			"colombia", "bogota", "cucuta", "panama", "miami", "florida", "madrid", "espana",
			"spain", "andorra", "suiza", "switzerland", "cuba", "la habana", "havana", "rusia",
			"russia", "iran", "china", "turquia", "turkey", "estados unidos", "united states",
			"eeuu", "mexico", "ecuador", "peru", "brasil", "brazil", "argentina", "chile",
			"nueva york", "new york", "washington", "londres", "london", "lisboa", "lisbon",
			"portugal", "aruba", "curazao", "curacao", "hong kong", "dubai",
		},
	}
}

// Deduplicator holds the compiled lists and similarity threshold. It is
// stateless across calls.
type Deduplicator struct {
	minSimilarity float64
	stopwords     map[string]struct{}
	gazetteer     map[string]struct{}
}

// New returns a Deduplicator. A non-positive minSimilarity falls back to
// DefaultMinSimilarity.
func New(lists Lists, minSimilarity float64) *Deduplicator {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	d := &Deduplicator{
		minSimilarity: minSimilarity,
		stopwords:     make(map[string]struct{}, len(lists.Stopwords)),
		gazetteer:     make(map[string]struct{}, len(lists.Gazetteer)),
	}
	for _, w := range lists.Stopwords {
		d.stopwords[textnorm.Key(w)] = struct{}{}
	}
	for _, w := range lists.Gazetteer {
		d.gazetteer[textnorm.Key(w)] = struct{}{}
	}
	return d
}

// Similarity is the duplicate score of two mentions: the larger of the
// Jaro-Winkler similarity of their normalized raw texts and of their stored
// normalized texts.
func Similarity(a, b common.Mention) float64 {
	raw := similarity.JaroWinkler(textnorm.Key(a.RawText), textnorm.Key(b.RawText))
	norm := similarity.JaroWinkler(textnorm.Key(a.NormalizedText), textnorm.Key(b.NormalizedText))
	return max(raw, norm)
}

// FindDuplicates ranks the candidates that score at least the threshold
// against mention, best first. The mention itself is skipped.
func (d *Deduplicator) FindDuplicates(mention common.Mention, candidates []common.Mention) []common.DuplicateCandidate {
	var out []common.DuplicateCandidate
	mentionKey := textnorm.Key(mention.RawText)
	for _, c := range candidates {
		if c.ID != "" && c.ID == mention.ID {
			continue
		}
		score := Similarity(mention, c)
		if score < d.minSimilarity {
			continue
		}

		reason := fmt.Sprintf("jaro-winkler %.3f", score)
		if textnorm.Key(c.RawText) == mentionKey {
			reason = "same normalized text"
		}
		out = append(out, common.DuplicateCandidate{MentionID: c.ID, Similarity: score, Reason: reason})
	}

	slices.SortStableFunc(out, func(a, b common.DuplicateCandidate) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	return out
}

// FlagForReview returns the quality issues of mention, in a fixed order.
// An empty result means the mention text looks clean.
func (d *Deduplicator) FlagForReview(mention common.Mention) []string {
	var issues []string
	text := strings.TrimSpace(mention.RawText)
	if utf8.RuneCountInString(text) < 2 {
		issues = append(issues, IssueTooShort)
	}
	if mention.Type != common.MentionPerson {
		return issues
	}

	key := textnorm.Key(text)
	if _, ok := d.stopwords[key]; ok {
		issues = append(issues, IssueStopword)
	}
	if isVowellessCaps(textnorm.StripDiacritics(text)) {
		issues = append(issues, IssueAcronym)
	}
	if _, ok := d.gazetteer[key]; ok {
		issues = append(issues, IssueGazetteer)
	}
	return issues
}

func isVowellessCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
		if strings.ContainsRune("AEIOUY", r) {
			return false
		}
		letters++
	}
	return letters > 0
}

// MergeMentions folds duplicate into primary. The longer raw text becomes
// the primary's text; on a tie the primary keeps its own.
func MergeMentions(primary, duplicate common.Mention) common.Mention {
	if utf8.RuneCountInString(duplicate.RawText) > utf8.RuneCountInString(primary.RawText) {
		primary.RawText = duplicate.RawText
		primary.NormalizedText = duplicate.NormalizedText
	}
	return primary
}
