// Package score rates graph nodes and edges on a 1 to 5 confidence scale
// with an auditable reasoning string.
package score

import (
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/faro-watch/faro/backend/pkg/common"
)

// Tier values shared by all components.
const (
	TierUnknown    = 1
	TierUnverified = 2
	TierCredible   = 3
	TierReliable   = 4
	TierOfficial   = 5
)

// Component weights of the overall node score, in hundredths.
const (
	WeightSource     = 35
	WeightExtraction = 15
	WeightMatch      = 35
	WeightEvidence   = 15
)

// Components are the 1..5 sub-scores of a node.
type Components struct {
	SourceReliability int `json:"source_reliability"`
	ExtractionQuality int `json:"extraction_quality"`
	MatchQuality      int `json:"match_quality"`
	EvidenceStrength  int `json:"evidence_strength"`
}

// NodeScore is the confidence of a node.
type NodeScore struct {
	Overall    int        `json:"overall"`
	Components Components `json:"components"`
	Reasoning  string     `json:"reasoning"`
}

// EdgeScore is the confidence of an edge.
type EdgeScore struct {
	Overall        int    `json:"overall"`
	NodeConfidence int    `json:"node_confidence"`
	WeightScore    int    `json:"weight_score,omitempty"`
	Reasoning      string `json:"reasoning"`
}

// SourceTierFunc rates the reliability of the sources behind a node.
type SourceTierFunc func(node common.GraphNode) int

// Scorer computes node and edge scores. The zero value is not usable; use
// New.
type Scorer struct {
	sourceTier SourceTierFunc
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithSourceTier replaces the default source reliability of CREDIBLE.
func WithSourceTier(fn SourceTierFunc) Option {
	return func(s *Scorer) {
		if fn != nil {
			s.sourceTier = fn
		}
	}
}

// New returns a Scorer.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		sourceTier: func(common.GraphNode) int { return TierCredible },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func clamp(v int) int {
	return min(max(v, TierUnknown), TierOfficial)
}

// EvidenceCount is the number of independent sightings behind a node.
func EvidenceCount(node common.GraphNode) int {
	return max(len(node.SourceIDs), len(node.AltNames)+1)
}

// EvidenceStrength buckets an evidence count.
func EvidenceStrength(count int) int {
	switch {
	case count >= 10:
		return 5
	case count >= 5:
		return 4
	case count >= 3:
		return 3
	case count >= 2:
		return 2
	default:
		return 1
	}
}

// isProperName reports a canonical name of at least two letters whose first
// letter is upper case.
func isProperName(name string) bool {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < 2 {
		return false
	}
	for _, r := range name {
		if unicode.IsLetter(r) {
			return unicode.IsUpper(r)
		}
	}
	return false
}

// Overall combines components with the fixed weights, rounding half up.
// The sum is kept in integer hundredths so a total of exactly x.5 always
// rounds up.
func Overall(c Components) int {
	v := WeightSource*c.SourceReliability +
		WeightExtraction*c.ExtractionQuality +
		WeightMatch*c.MatchQuality +
		WeightEvidence*c.EvidenceStrength
	if v < 0 {
		return TierUnknown
	}
	return clamp((v + 50) / 100)
}

// ScoreNode scores node.
func (s *Scorer) ScoreNode(node common.GraphNode) NodeScore {
	var c Components
	var reasons []string

	c.SourceReliability = clamp(s.sourceTier(node))
	if c.SourceReliability >= TierCredible {
		reasons = append(reasons, "source reliability "+tierName(c.SourceReliability))
	} else {
		reasons = append(reasons, "source reliability below credible ("+tierName(c.SourceReliability)+")")
	}

	if isProperName(node.CanonicalName) {
		c.ExtractionQuality = TierCredible
		reasons = append(reasons, "canonical name is a capitalized proper name")
	} else {
		c.ExtractionQuality = TierUnverified
		reasons = append(reasons, "canonical name is trivial or not capitalized")
	}

	if node.LinkedIdentityID != "" {
		c.MatchQuality = TierOfficial
		reasons = append(reasons, "linked to verified registry identity "+node.LinkedIdentityID)
	} else {
		c.MatchQuality = TierUnverified
		reasons = append(reasons, "not linked to a registry identity")
	}

	count := EvidenceCount(node)
	c.EvidenceStrength = EvidenceStrength(count)
	reasons = append(reasons, evidenceClause(count))

	return NodeScore{
		Overall:    Overall(c),
		Components: c,
		Reasoning:  strings.Join(reasons, "; "),
	}
}

// ScoreEdge scores edge from the scores of its endpoints. An edge is at most
// as trustworthy as its weaker endpoint; without a weight the endpoint score
// is the edge score.
func (s *Scorer) ScoreEdge(edge common.GraphEdge, src, dst common.GraphNode) EdgeScore {
	srcScore := s.ScoreNode(src).Overall
	dstScore := s.ScoreNode(dst).Overall
	nodeConfidence := min(srcScore, dstScore)

	reasons := []string{"weaker endpoint scores " + itoa(nodeConfidence)}
	if edge.Weight == nil {
		reasons = append(reasons, "no edge weight recorded")
		return EdgeScore{
			Overall:        nodeConfidence,
			NodeConfidence: nodeConfidence,
			Reasoning:      strings.Join(reasons, "; "),
		}
	}

	w := math.Min(math.Max(*edge.Weight, 0), 1)
	// 1e-9 absorbs float error in w*5 at exact multiples of 0.2.
	weightScore := int(math.Ceil(w*5 - 1e-9))
	reasons = append(reasons, "edge weight "+formatWeight(w)+" maps to "+itoa(weightScore))
	if edge.EvidenceRef != nil && edge.EvidenceRef.ArticleID != "" {
		reasons = append(reasons, "evidence from article "+edge.EvidenceRef.ArticleID)
	}

	return EdgeScore{
		Overall:        clamp((nodeConfidence + weightScore + 1) / 2),
		NodeConfidence: nodeConfidence,
		WeightScore:    weightScore,
		Reasoning:      strings.Join(reasons, "; "),
	}
}

func tierName(t int) string {
	switch t {
	case TierOfficial:
		return "OFFICIAL"
	case TierReliable:
		return "RELIABLE"
	case TierCredible:
		return "CREDIBLE"
	case TierUnverified:
		return "UNVERIFIED"
	default:
		return "UNKNOWN"
	}
}

func evidenceClause(count int) string {
	switch {
	case count >= 10:
		return "strong evidence (" + itoa(count) + " sightings)"
	case count >= 5:
		return "good evidence (" + itoa(count) + " sightings)"
	case count >= 3:
		return "moderate evidence (" + itoa(count) + " sightings)"
	case count >= 2:
		return "limited evidence (" + itoa(count) + " sightings)"
	default:
		return "single sighting"
	}
}

func itoa(v int) string {
	return strconv.Itoa(v)
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', 2, 64)
}
