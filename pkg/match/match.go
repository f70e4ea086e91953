// Package match resolves mentions against the verified identity registry.
//
// Matching is deliberately conservative: an exact canonical name wins over
// an alias, an alias wins over a fuzzy score, and a fuzzy score below
// FuzzyThreshold is no match at all.
package match

import (
	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/registry"
	"github.com/faro-watch/faro/backend/pkg/similarity"
	"github.com/faro-watch/faro/backend/pkg/textnorm"
)

const (
	// FuzzyThreshold is the minimum token-sort score of a fuzzy match.
	FuzzyThreshold = 85.0
	// HighConfidenceThreshold marks a match safe to auto-approve.
	HighConfidenceThreshold = 95.0
	// ExactScore is reported for canonical and alias matches.
	ExactScore = 100.0
)

// IsHighConfidence reports whether m may bypass human review.
func IsHighConfidence(m *common.IdentityMatch) bool {
	return m != nil && m.Score >= HighConfidenceThreshold
}

type entry struct {
	index  int
	sorted []string
}

type typeIndex struct {
	canonical map[string]int
	alias     map[string]int
	entries   []entry
}

// Matcher is built once per registry snapshot and is safe for concurrent use.
type Matcher struct {
	reg    *registry.Registry
	byType map[common.IdentityType]*typeIndex
}

// New indexes reg for matching.
func New(reg *registry.Registry) *Matcher {
	m := &Matcher{reg: reg, byType: make(map[common.IdentityType]*typeIndex)}
	for i, id := range reg.Identities() {
		idx, ok := m.byType[id.EntityType]
		if !ok {
			idx = &typeIndex{canonical: make(map[string]int), alias: make(map[string]int)}
			m.byType[id.EntityType] = idx
		}

		key := textnorm.Key(id.CanonicalName)
		if _, taken := idx.canonical[key]; !taken {
			idx.canonical[key] = i
		}
		e := entry{index: i, sorted: []string{similarity.SortedTokens(id.CanonicalName)}}
		for _, alias := range id.Aliases {
			ak := textnorm.Key(alias)
			if ak == "" {
				continue
			}
			if _, taken := idx.alias[ak]; !taken {
				idx.alias[ak] = i
			}
			e.sorted = append(e.sorted, similarity.SortedTokens(alias))
		}
		idx.entries = append(idx.entries, e)
	}
	return m
}

// Registry returns the snapshot the matcher was built from.
func (m *Matcher) Registry() *registry.Registry {
	return m.reg
}

// Match returns the best registry match for mention, or nil. Only
// identities of the mention's type are considered; locations never match.
func (m *Matcher) Match(mention common.Mention) *common.IdentityMatch {
	return m.MatchText(mention.Type, mention.RawText)
}

// MatchText matches a bare name of the given mention type.
func (m *Matcher) MatchText(t common.MentionType, text string) *common.IdentityMatch {
	identityType, ok := common.IdentityTypeFor(t)
	if !ok {
		return nil
	}
	idx, ok := m.byType[identityType]
	if !ok {
		return nil
	}
	key := textnorm.Key(text)
	if key == "" {
		return nil
	}
	identities := m.reg.Identities()

	if i, ok := idx.canonical[key]; ok {
		return &common.IdentityMatch{IdentityID: identities[i].ID, Score: ExactScore, MatchType: common.MatchExact}
	}
	if i, ok := idx.alias[key]; ok {
		return &common.IdentityMatch{IdentityID: identities[i].ID, Score: ExactScore, MatchType: common.MatchAlias}
	}

	sorted := similarity.SortedTokens(text)
	best, bestScore := -1, 0.0
	for _, e := range idx.entries {
		for _, name := range e.sorted {
			// Strictly greater keeps the first identity in registry order.
			if score := similarity.Ratio(sorted, name) * 100; score > bestScore {
				best, bestScore = e.index, score
			}
		}
	}
	if best < 0 || bestScore < FuzzyThreshold {
		return nil
	}
	return &common.IdentityMatch{IdentityID: identities[best].ID, Score: bestScore, MatchType: common.MatchFuzzy}
}
