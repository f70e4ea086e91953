package common

import "time"

// MentionType classifies an extracted mention.
type MentionType string

const (
	MentionPerson   MentionType = "PERSON"
	MentionOrg      MentionType = "ORG"
	MentionLocation MentionType = "LOCATION"
)

// IdentityType classifies a registry identity.
type IdentityType string

const (
	IdentityPerson       IdentityType = "PERSON"
	IdentityOrganization IdentityType = "ORGANIZATION"
)

// IdentityTypeFor maps a mention type onto the registry type it may match.
// Locations never match a registry identity.
func IdentityTypeFor(t MentionType) (IdentityType, bool) {
	switch t {
	case MentionPerson:
		return IdentityPerson, true
	case MentionOrg:
		return IdentityOrganization, true
	default:
		return "", false
	}
}

// Article is a news item handed over by the article source. The core only
// reads RawText and Language; ID is the opaque provenance key.
type Article struct {
	ID          string     `json:"id"`
	Outlet      string     `json:"outlet"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Language    string     `json:"language"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	RawText     string     `json:"raw_text"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// ByteOffsets is a half-open [Start, End) byte span in the article text.
type ByteOffsets struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Mention is a candidate entity occurrence extracted from an article.
//
// Mentions are immutable once stored, with the exception of a curator merge
// which may replace RawText/NormalizedText, and graph admission which sets
// NodeID.
type Mention struct {
	ID                   string      `json:"id"`
	SourceArticleID      string      `json:"source_article_id"`
	Type                 MentionType `json:"type"`
	RawText              string      `json:"raw_text"`
	NormalizedText       string      `json:"normalized_text"`
	Language             string      `json:"language"`
	ExtractionConfidence float64     `json:"extraction_confidence"`
	Offsets              ByteOffsets `json:"byte_offsets"`
	NodeID               string      `json:"node_id,omitempty"`
}

// RelationMention is a candidate relationship phrase between two mentions.
// Subject and object stay empty when they could not be resolved by
// normalized text.
type RelationMention struct {
	ID               string  `json:"id"`
	SourceArticleID  string  `json:"source_article_id"`
	Pattern          string  `json:"pattern"`
	SentenceText     string  `json:"sentence_text"`
	SubjectText      string  `json:"subject_text"`
	ObjectText       string  `json:"object_text"`
	SubjectMentionID string  `json:"subject_mention_id,omitempty"`
	ObjectMentionID  string  `json:"object_mention_id,omitempty"`
	Confidence       float64 `json:"confidence"`
}

// Relation patterns produced by the extractor.
const (
	PatternFrontManOf        = "front-man-of"
	PatternOfficerOf         = "officer-of"
	PatternBeneficialOwnerOf = "beneficial-owner-of"
	PatternCoMentioned       = "co-mentioned"
)

// Identity is a verified registry entry. It is read-only while matching.
type Identity struct {
	ID               string       `json:"id" yaml:"id"`
	CanonicalName    string       `json:"canonical_name" yaml:"canonical_name"`
	Aliases          []string     `json:"aliases" yaml:"aliases"`
	EntityType       IdentityType `json:"entity_type" yaml:"entity_type"`
	SanctionPrograms []string     `json:"sanction_programs" yaml:"sanction_programs"`
	SourceAuthority  string       `json:"source_authority" yaml:"source_authority"`
	Verified         bool         `json:"verified" yaml:"verified"`
}

// GraphNode is a canonical person or organization in the graph.
//
// CanonicalName is the display form; NameKey is its normalized lookup key.
// (Type, NameKey) is unique.
type GraphNode struct {
	ID               string            `json:"id"`
	Type             MentionType       `json:"type"`
	CanonicalName    string            `json:"canonical_name"`
	NameKey          string            `json:"name_key"`
	AltNames         []string          `json:"alt_names"`
	SourceIDs        map[string]string `json:"source_ids"`
	LinkedIdentityID string            `json:"linked_identity_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// EvidenceRef is the provenance payload attached to an edge.
type EvidenceRef struct {
	ArticleID  string `json:"article_id"`
	RelationID string `json:"relation_id"`
	Sentence   string `json:"sentence"`
	Pattern    string `json:"pattern"`
}

// GraphEdge is a typed, directed relationship between two nodes, unique per
// (SrcNodeID, DstNodeID, Type).
type GraphEdge struct {
	ID          string       `json:"id"`
	SrcNodeID   string       `json:"src_node_id"`
	DstNodeID   string       `json:"dst_node_id"`
	Type        string       `json:"type"`
	Weight      *float64     `json:"weight,omitempty"`
	EvidenceRef *EvidenceRef `json:"evidence_ref,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ReviewStatus is the curation state of a mention.
type ReviewStatus string

const (
	StatusPending      ReviewStatus = "PENDING"
	StatusApproved     ReviewStatus = "APPROVED"
	StatusRejected     ReviewStatus = "REJECTED"
	StatusMerged       ReviewStatus = "MERGED"
	StatusAutoApproved ReviewStatus = "AUTO_APPROVED"
)

// Terminal reports whether no further transition is allowed.
func (s ReviewStatus) Terminal() bool {
	return s != StatusPending
}

// Approving reports whether the status admits the mention into the graph.
func (s ReviewStatus) Approving() bool {
	return s == StatusApproved || s == StatusAutoApproved
}

// MatchType tells how a registry match was found.
type MatchType string

const (
	MatchExact MatchType = "EXACT"
	MatchAlias MatchType = "ALIAS"
	MatchFuzzy MatchType = "FUZZY"
)

// IdentityMatch is the best registry match for a mention.
type IdentityMatch struct {
	IdentityID string    `json:"identity_id"`
	Score      float64   `json:"score"`
	MatchType  MatchType `json:"match_type"`
}

// DuplicateCandidate is another mention that likely refers to the same entity.
type DuplicateCandidate struct {
	MentionID  string  `json:"mention_id"`
	Similarity float64 `json:"similarity"`
	Reason     string  `json:"reason,omitempty"`
}

// ReviewQueueItem is the curation record of a single mention.
type ReviewQueueItem struct {
	MentionID           string               `json:"mention_id"`
	Status              ReviewStatus         `json:"status"`
	Issues              []string             `json:"issues"`
	DuplicateCandidates []DuplicateCandidate `json:"duplicate_candidates"`
	IdentityMatch       *IdentityMatch       `json:"identity_match,omitempty"`
	ReviewerVerdict     *ReviewResult        `json:"reviewer_verdict,omitempty"`
	MergedInto          string               `json:"merged_into,omitempty"`
	DecidedBy           string               `json:"decided_by,omitempty"`
	DecidedAt           *time.Time           `json:"decided_at,omitempty"`
	Notes               string               `json:"notes,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// Recommendation is the automated reviewer's verdict.
type Recommendation string

const (
	RecommendApprove     Recommendation = "approve"
	RecommendFlag        Recommendation = "flag"
	RecommendInvestigate Recommendation = "investigate"
)

// ReviewRequest is sent to the automated reviewer.
type ReviewRequest struct {
	MentionID         string      `json:"mention_id"`
	MentionText       string      `json:"mention_text"`
	NormalizedText    string      `json:"normalized_text"`
	EntityType        MentionType `json:"entity_type"`
	CurrentConfidence float64     `json:"current_confidence"`
	ContextSnippet    string      `json:"context_snippet"`
}

// ReviewResult is the automated reviewer's answer.
type ReviewResult struct {
	Recommendation    Recommendation `json:"recommendation" jsonschema:"enum=approve,enum=flag,enum=investigate" jsonschema_description:"approve when the text clearly names a real person or organization of the given type, flag when unsure, investigate when it may refer to a sensitive or ambiguous party"`
	Confidence        float64        `json:"confidence" jsonschema_description:"Confidence in the recommendation between 0 and 1"`
	Explanation       string         `json:"explanation" jsonschema_description:"One or two sentences explaining the recommendation"`
	SuggestedCategory string         `json:"suggested_category" jsonschema_description:"Optional better entity type or category"`
}

// JobStatus is the lifecycle state of a queued article job.
type JobStatus string

const (
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
)

// Job tracks one article submission through the work queue.
type Job struct {
	ID        string    `json:"id"`
	ArticleID string    `json:"article_id"`
	Status    JobStatus `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
