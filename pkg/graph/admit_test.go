package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/registry"
	"github.com/faro-watch/faro/backend/pkg/store/memory"
)

func newAdmitter(t *testing.T, s *memory.Store) (*Admitter, IdentityLookup) {
	t.Helper()
	reg, err := registry.New([]common.Identity{{
		ID:            "id-maduro",
		CanonicalName: "Nicolás Maduro Moros",
		Aliases:       []string{"Nicolas Maduro"},
		EntityType:    common.IdentityPerson,
		Verified:      true,
	}})
	require.NoError(t, err)
	return NewAdmitter(s, NewUpserter(s)), reg
}

func seedMentions(t *testing.T, s *memory.Store) {
	t.Helper()
	ctx := context.Background()
	for _, m := range []common.Mention{
		{ID: "m-juan", SourceArticleID: "a1", Type: common.MentionPerson, RawText: "Juan Pérez", NormalizedText: "juan perez"},
		{ID: "m-maduro", SourceArticleID: "a1", Type: common.MentionPerson, RawText: "Nicolás Maduro", NormalizedText: "nicolas maduro"},
		{ID: "m-caracas", SourceArticleID: "a1", Type: common.MentionLocation, RawText: "Caracas", NormalizedText: "caracas"},
	} {
		_, err := s.AppendMention(ctx, m)
		require.NoError(t, err)
	}
	_, err := s.AppendRelation(ctx, common.RelationMention{
		ID:               "r1",
		SourceArticleID:  "a1",
		Pattern:          common.PatternFrontManOf,
		SentenceText:     "Juan Pérez es testaferro de Nicolás Maduro.",
		SubjectText:      "Juan Pérez",
		ObjectText:       "Nicolás Maduro",
		SubjectMentionID: "m-juan",
		ObjectMentionID:  "m-maduro",
		Confidence:       0.85,
	})
	require.NoError(t, err)
}

func TestAdmitMentionLinksHighConfidenceIdentity(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedMentions(t, s)
	a, reg := newAdmitter(t, s)

	adm, err := a.AdmitMention(ctx, reg, common.ReviewQueueItem{
		MentionID:     "m-maduro",
		Status:        common.StatusAutoApproved,
		IdentityMatch: &common.IdentityMatch{IdentityID: "id-maduro", Score: 100, MatchType: common.MatchAlias},
	})
	require.NoError(t, err)
	assert.True(t, adm.NodeCreated)
	assert.Equal(t, "Nicolás Maduro Moros", adm.Node.CanonicalName)
	assert.Equal(t, "id-maduro", adm.Node.LinkedIdentityID)
	assert.Equal(t, []string{"Nicolás Maduro"}, adm.Node.AltNames)
	assert.Equal(t, map[string]string{"a1": "m-maduro"}, adm.Node.SourceIDs)
	assert.Zero(t, adm.EdgesCreated)

	m, err := s.GetMention(ctx, "m-maduro")
	require.NoError(t, err)
	assert.Equal(t, adm.Node.ID, m.NodeID)
}

func TestAdmitMentionWiresEdgeOnceBothEndsResolve(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedMentions(t, s)
	a, reg := newAdmitter(t, s)

	maduro, err := a.AdmitMention(ctx, reg, common.ReviewQueueItem{
		MentionID:     "m-maduro",
		Status:        common.StatusAutoApproved,
		IdentityMatch: &common.IdentityMatch{IdentityID: "id-maduro", Score: 100, MatchType: common.MatchAlias},
	})
	require.NoError(t, err)

	juan, err := a.AdmitMention(ctx, reg, common.ReviewQueueItem{MentionID: "m-juan", Status: common.StatusAutoApproved})
	require.NoError(t, err)
	assert.Empty(t, juan.Node.LinkedIdentityID)
	assert.Empty(t, juan.Node.AltNames)
	require.Equal(t, 1, juan.EdgesCreated)

	edge := juan.Edges[0]
	assert.Equal(t, juan.Node.ID, edge.SrcNodeID)
	assert.Equal(t, maduro.Node.ID, edge.DstNodeID)
	assert.Equal(t, common.PatternFrontManOf, edge.Type)
	require.NotNil(t, edge.Weight)
	assert.InDelta(t, 0.85, *edge.Weight, 1e-9)
	require.NotNil(t, edge.EvidenceRef)
	assert.Equal(t, "r1", edge.EvidenceRef.RelationID)
	assert.Equal(t, "a1", edge.EvidenceRef.ArticleID)

	// Re-admission changes nothing.
	again, err := a.AdmitMention(ctx, reg, common.ReviewQueueItem{MentionID: "m-juan", Status: common.StatusAutoApproved})
	require.NoError(t, err)
	assert.False(t, again.NodeCreated)
	assert.Zero(t, again.EdgesCreated)

	edges, err := s.ListEdges(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestAdmitMentionFuzzyMatchNeedsCurator(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedMentions(t, s)
	a, reg := newAdmitter(t, s)
	fuzzy := &common.IdentityMatch{IdentityID: "id-maduro", Score: 88, MatchType: common.MatchFuzzy}

	auto, err := a.AdmitMention(ctx, reg, common.ReviewQueueItem{MentionID: "m-maduro", Status: common.StatusAutoApproved, IdentityMatch: fuzzy})
	require.NoError(t, err)
	assert.Empty(t, auto.Node.LinkedIdentityID)
	assert.Equal(t, "Nicolás Maduro", auto.Node.CanonicalName)

	curated, err := a.AdmitMention(ctx, reg, common.ReviewQueueItem{MentionID: "m-maduro", Status: common.StatusApproved, IdentityMatch: fuzzy})
	require.NoError(t, err)
	assert.Equal(t, "id-maduro", curated.Node.LinkedIdentityID)
	assert.Equal(t, "Nicolás Maduro Moros", curated.Node.CanonicalName)
}

func TestAdmitMentionFoldsMergedDuplicates(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedMentions(t, s)
	dup := common.Mention{ID: "m-juan-2", SourceArticleID: "a2", Type: common.MentionPerson, RawText: "Juan Peres", NormalizedText: "juan peres"}
	_, err := s.AppendMention(ctx, dup)
	require.NoError(t, err)
	a, reg := newAdmitter(t, s)

	adm, err := a.AdmitMention(ctx, reg, common.ReviewQueueItem{MentionID: "m-juan", Status: common.StatusApproved}, dup)
	require.NoError(t, err)
	assert.Equal(t, "Juan Pérez", adm.Node.CanonicalName)
	assert.Equal(t, []string{"Juan Peres"}, adm.Node.AltNames)
	assert.Equal(t, map[string]string{"a1": "m-juan", "a2": "m-juan-2"}, adm.Node.SourceIDs)

	stored, err := s.GetMention(ctx, "m-juan-2")
	require.NoError(t, err)
	assert.Equal(t, adm.Node.ID, stored.NodeID)
}

func TestAdmitMentionSkipsLocationsAndUnapproved(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedMentions(t, s)
	a, reg := newAdmitter(t, s)

	adm, err := a.AdmitMention(ctx, reg, common.ReviewQueueItem{MentionID: "m-caracas", Status: common.StatusApproved})
	require.NoError(t, err)
	assert.Empty(t, adm.Node.ID)

	_, err = a.AdmitMention(ctx, reg, common.ReviewQueueItem{MentionID: "m-juan", Status: common.StatusPending})
	assert.Error(t, err)

	nodes, err := s.ListNodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}
