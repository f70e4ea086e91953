// Package extract finds candidate person, organization and location mentions
// and relation phrases in raw article text using ordered pattern rules.
package extract

import (
	"iter"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/textnorm"
)

// Candidate carries exactly one of Mention or Relation.
//
// Candidates carry no ids and no article id; both are assigned when the
// candidates are persisted.
type Candidate struct {
	Mention  *common.Mention
	Relation *common.RelationMention
}

// Extractor applies a rule set to article text. It holds no per-call state
// and is safe for concurrent use.
type Extractor struct {
	c *compiled
}

// New returns an Extractor for rules.
func New(rules Rules) *Extractor {
	return &Extractor{c: compile(rules)}
}

var defaultExtractor = New(DefaultRules())

// Extract runs the default rules over text.
func Extract(text, language string) iter.Seq[Candidate] {
	return defaultExtractor.Extract(text, language)
}

var wordRe = regexp.MustCompile(`\p{L}[\p{L}\p{M}\p{N}'’-]*`)

type span struct {
	start, end int
	typ        common.MentionType
	confidence float64
}

// Extract returns the candidates found in text. The sequence is lazy and can
// be ranged over any number of times; every pass yields the same candidates
// in the same order. Mentions of a sentence come before its relations.
func (e *Extractor) Extract(text, language string) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		if strings.TrimSpace(text) == "" {
			return
		}

		seen := make(map[string]struct{})
		for _, s := range splitSentences(text) {
			spans := e.c.scan(text, s)

			for _, sp := range spans {
				raw := textnorm.DisplayName(text[sp.start:sp.end])
				dedupKey := strings.ToLower(raw)
				if _, ok := seen[dedupKey]; ok {
					continue
				}
				seen[dedupKey] = struct{}{}

				m := &common.Mention{
					Type:                 sp.typ,
					RawText:              raw,
					NormalizedText:       textnorm.Key(raw),
					Language:             language,
					ExtractionConfidence: sp.confidence,
					Offsets:              common.ByteOffsets{Start: sp.start, End: sp.end},
				}
				if !yield(Candidate{Mention: m}) {
					return
				}
			}

			for _, rel := range e.c.relations(text, s, spans) {
				if !yield(Candidate{Relation: rel}) {
					return
				}
			}
		}
	}
}

// Mentions collects the mention candidates of text.
func (e *Extractor) Mentions(text, language string) []common.Mention {
	var out []common.Mention
	for c := range e.Extract(text, language) {
		if c.Mention != nil {
			out = append(out, *c.Mention)
		}
	}
	return out
}

// Relations collects the relation candidates of text.
func (e *Extractor) Relations(text, language string) []common.RelationMention {
	var out []common.RelationMention
	for c := range e.Extract(text, language) {
		if c.Relation != nil {
			out = append(out, *c.Relation)
		}
	}
	return out
}

func isCapitalized(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	return unicode.IsUpper(r)
}

func onlySpace(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isSpace(s[i]) {
			return false
		}
	}
	return true
}

// scan applies the mention rules to one sentence and returns the spans in
// text order.
func (c *compiled) scan(text string, s sentence) []span {
	body := text[s.start:s.end]
	locs := wordRe.FindAllStringIndex(body, -1)
	for i := range locs {
		locs[i][0] += s.start
		locs[i][1] += s.start
	}
	word := func(i int) string { return text[locs[i][0]:locs[i][1]] }
	adjacent := func(i, j int) bool { return onlySpace(text[locs[i][1]:locs[j][0]]) }

	var spans []span
	for i := 0; i < len(locs); i++ {
		if !isCapitalized(word(i)) {
			continue
		}

		// Collect the run of capitalized words, bridging lower-case
		// connectors, and stop early at a legal-entity suffix.
		names := []int{i}
		last := i
		suffixEnd := c.suffixAfter(text, locs[last][1], s.end)
		for suffixEnd < 0 {
			next := last + 1
			if next >= len(locs) || !adjacent(last, next) {
				break
			}
			if isCapitalized(word(next)) {
				names = append(names, next)
				last = next
				suffixEnd = c.suffixAfter(text, locs[last][1], s.end)
				continue
			}
			if _, ok := c.connectors[textnorm.Key(word(next))]; ok &&
				next+1 < len(locs) && adjacent(next, next+1) && isCapitalized(word(next+1)) {
				// "Juan Pérez de Caracas" is a person followed by a place.
				if _, loc := c.locatives[textnorm.Key(word(next))]; loc &&
					!c.hasOrgKeyword(text, locs, names) && c.locationAt(text, locs, next+1) {
					break
				}
				names = append(names, next+1)
				last = next + 1
				suffixEnd = c.suffixAfter(text, locs[last][1], s.end)
				continue
			}
			break
		}
		i = last

		full := names
		for len(names) > 0 {
			if _, ok := c.leading[textnorm.Key(word(names[0]))]; !ok {
				break
			}
			names = names[1:]
		}

		if suffixEnd >= 0 {
			start := locs[full[0]][0]
			if len(names) > 0 {
				start = locs[names[0]][0]
			}
			spans = append(spans, span{start: start, end: suffixEnd, typ: common.MentionOrg, confidence: OrgSuffixConfidence})
			for i+1 < len(locs) && locs[i+1][0] < suffixEnd {
				i++
			}
			continue
		}

		if sp, ok := c.locative(text, locs, full, names); ok {
			spans = append(spans, sp)
			continue
		}

		if len(names) == 0 {
			continue
		}
		start, end := locs[names[0]][0], locs[last][1]
		spans = append(spans, span{start: start, end: end, typ: c.classify(text, locs, names), confidence: CapitalizedSequenceConfidence})
	}
	return spans
}

// suffixAfter returns the end offset of a legal-entity suffix that directly
// follows offset from, or -1.
func (c *compiled) suffixAfter(text string, from, limit int) int {
	if c.suffixRe == nil {
		return -1
	}
	loc := c.suffixRe.FindStringIndex(text[from:limit])
	if loc == nil {
		return -1
	}
	end := from + loc[1]
	if end < limit {
		r, _ := utf8.DecodeRuneInString(text[end:limit])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return -1
		}
	}
	return end
}

// locative reports a known location introduced by a locative preposition.
// The preposition may precede the run or, at the start of a sentence, be its
// capitalized first word ("En Caracas"). The run is tried as found and
// without its leading stopwords, so that both "La Habana" and "el Zulia"
// resolve.
func (c *compiled) locative(text string, locs [][]int, full, names []int) (span, bool) {
	if len(full) == 0 {
		return span{}, false
	}
	key := func(i int) string { return textnorm.Key(text[locs[i][0]:locs[i][1]]) }
	end := locs[full[len(full)-1]][1]

	var runs [][]int
	if _, ok := c.locatives[key(full[0])]; ok && len(full) > 1 {
		runs = append(runs, full[1:])
	}
	if prev := full[0] - 1; prev >= 0 && onlySpace(text[locs[prev][1]:locs[full[0]][0]]) {
		if _, ok := c.locatives[key(prev)]; ok {
			runs = append(runs, full, names)
		}
	}

	for _, run := range runs {
		if len(run) == 0 {
			continue
		}
		start := locs[run[0]][0]
		if _, ok := c.locations[textnorm.Key(text[start:end])]; ok {
			return span{start: start, end: end, typ: common.MentionLocation, confidence: LocativeConfidence}, true
		}
	}
	return span{}, false
}

// locationAt reports whether a prefix of the capitalized run starting at
// word j is a known location.
func (c *compiled) locationAt(text string, locs [][]int, j int) bool {
	for k := j; k < len(locs) && isCapitalized(text[locs[k][0]:locs[k][1]]); k++ {
		if k > j && !onlySpace(text[locs[k-1][1]:locs[k][0]]) {
			break
		}
		if _, ok := c.locations[textnorm.Key(text[locs[j][0]:locs[k][1]])]; ok {
			return true
		}
	}
	return false
}

func (c *compiled) hasOrgKeyword(text string, locs [][]int, names []int) bool {
	for _, n := range names {
		if _, ok := c.orgKeywords[textnorm.Key(text[locs[n][0]:locs[n][1]])]; ok {
			return true
		}
	}
	return false
}

// classify types a plain capitalized run. A single word is a person. A longer
// run is a person unless it carries an organization keyword or is longer
// than any plausible personal name.
func (c *compiled) classify(text string, locs [][]int, names []int) common.MentionType {
	if len(names) == 1 {
		return common.MentionPerson
	}
	if c.hasOrgKeyword(text, locs, names) {
		return common.MentionOrg
	}
	if len(names) > c.rules.MaxPersonTokens {
		return common.MentionOrg
	}
	return common.MentionPerson
}

// gapStart returns where the text joining a and b begins, skipping an origin
// qualifier ("de Caracas") that directly follows a.
func (c *compiled) gapStart(text string, a, b span, spans []span) int {
	for _, sp := range spans {
		if sp.typ != common.MentionLocation || sp.start < a.end || sp.end > b.start {
			continue
		}
		if _, ok := c.locatives[textnorm.Key(text[a.end:sp.start])]; ok {
			return sp.end
		}
	}
	return a.end
}

// relations matches the relation templates between consecutive person and
// organization spans of one sentence. The conjunction co-mention rule only
// runs when no template matched anywhere in the sentence.
func (c *compiled) relations(text string, s sentence, spans []span) []*common.RelationMention {
	var named []span
	for _, sp := range spans {
		if sp.typ == common.MentionPerson || sp.typ == common.MentionOrg {
			named = append(named, sp)
		}
	}
	if len(named) < 2 {
		return nil
	}

	sentenceText := textnorm.DisplayName(text[s.start:s.end])
	newRelation := func(a, b span, pattern string, confidence float64) *common.RelationMention {
		return &common.RelationMention{
			Pattern:      pattern,
			SentenceText: sentenceText,
			SubjectText:  textnorm.DisplayName(text[a.start:a.end]),
			ObjectText:   textnorm.DisplayName(text[b.start:b.end]),
			Confidence:   confidence,
		}
	}

	var out []*common.RelationMention
	for i := 0; i+1 < len(named); i++ {
		a, b := named[i], named[i+1]
		between := textnorm.Key(text[c.gapStart(text, a, b, spans):b.start])
		for _, tpl := range c.rules.Templates {
			if matchAny(tpl.Phrases, between) {
				out = append(out, newRelation(a, b, tpl.Pattern, tpl.Confidence))
				break
			}
		}
	}
	if len(out) > 0 {
		return out
	}

	for i := 0; i+1 < len(named); i++ {
		a, b := named[i], named[i+1]
		if _, ok := c.conj[textnorm.Key(text[a.end:b.start])]; ok {
			out = append(out, newRelation(a, b, common.PatternCoMentioned, CoMentionConfidence))
		}
	}
	return out
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
