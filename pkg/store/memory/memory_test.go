package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/store"
)

func TestArticles(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.SaveArticle(ctx, common.Article{ID: "a1", RawText: "x"}))
	require.NoError(t, s.SaveArticle(ctx, common.Article{ID: "a2", RawText: "y"}))

	unprocessed, err := s.ListUnprocessed(ctx, 0)
	require.NoError(t, err)
	require.Len(t, unprocessed, 2)
	assert.Equal(t, "a1", unprocessed[0].ID)

	require.NoError(t, s.MarkProcessed(ctx, "a1", time.Now()))
	unprocessed, err = s.ListUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)
	assert.Equal(t, "a2", unprocessed[0].ID)

	_, err = s.GetArticle(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.MarkProcessed(ctx, "missing", time.Now()), store.ErrNotFound)
}

func TestAppendMentionIsInsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.AppendMention(ctx, common.Mention{ID: "m1", RawText: "Juan", Type: common.MentionPerson, SourceArticleID: "a1"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.AppendMention(ctx, common.Mention{ID: "m1", RawText: "changed"})
	require.NoError(t, err)
	assert.False(t, created)

	m, err := s.GetMention(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Juan", m.RawText)

	require.NoError(t, s.SetMentionNode(ctx, "m1", "n1"))
	byType, err := s.ListMentionsByType(ctx, common.MentionPerson)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "n1", byType[0].NodeID)

	byArticle, err := s.ListMentionsByArticle(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, byArticle, 1)
}

func TestRelationsByMention(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.AppendRelation(ctx, common.RelationMention{ID: "r1", SourceArticleID: "a1", SubjectMentionID: "m1", ObjectMentionID: "m2"})
	require.NoError(t, err)
	_, err = s.AppendRelation(ctx, common.RelationMention{ID: "r2", SourceArticleID: "a1", SubjectMentionID: "m3"})
	require.NoError(t, err)

	rels, err := s.ListRelationsByMention(ctx, "m2")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "r1", rels[0].ID)

	rels, err = s.ListRelationsByArticle(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, rels, 2)
}

func TestNodeAndEdgeKeys(t *testing.T) {
	ctx := context.Background()
	s := New()

	n1 := common.GraphNode{ID: "n1", Type: common.MentionPerson, NameKey: "juan perez", AltNames: []string{"Juan"}}
	require.NoError(t, s.CreateNode(ctx, n1))
	err := s.CreateNode(ctx, common.GraphNode{ID: "n2", Type: common.MentionPerson, NameKey: "juan perez"})
	assert.ErrorIs(t, err, store.ErrConflict)
	require.NoError(t, s.CreateNode(ctx, common.GraphNode{ID: "n3", Type: common.MentionOrg, NameKey: "juan perez"}))

	got, err := s.FindNodeByKey(ctx, common.MentionPerson, "juan perez")
	require.NoError(t, err)
	got.AltNames[0] = "mutated"
	again, err := s.GetNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "Juan", again.AltNames[0])

	err = s.CreateEdge(ctx, common.GraphEdge{ID: "e0", SrcNodeID: "n1", DstNodeID: "missing", Type: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.CreateEdge(ctx, common.GraphEdge{ID: "e1", SrcNodeID: "n1", DstNodeID: "n3", Type: "x"}))
	err = s.CreateEdge(ctx, common.GraphEdge{ID: "e2", SrcNodeID: "n1", DstNodeID: "n3", Type: "x"})
	assert.ErrorIs(t, err, store.ErrConflict)

	edge, err := s.FindEdge(ctx, "n1", "n3", "x")
	require.NoError(t, err)
	assert.Equal(t, "e1", edge.ID)

	edges, err := s.ListEdges(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestTransitionAbortsOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateItem(ctx, common.ReviewQueueItem{MentionID: "m1", Status: common.StatusPending}))
	assert.ErrorIs(t, s.CreateItem(ctx, common.ReviewQueueItem{MentionID: "m1"}), store.ErrAlreadyExists)

	boom := errors.New("boom")
	_, err := s.Transition(ctx, "m1", func(item *common.ReviewQueueItem) error {
		item.Status = common.StatusApproved
		return boom
	})
	assert.ErrorIs(t, err, boom)

	item, err := s.GetItem(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, common.StatusPending, item.Status)

	updated, err := s.Transition(ctx, "m1", func(item *common.ReviewQueueItem) error {
		item.Status = common.StatusApproved
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, common.StatusApproved, updated.Status)
	assert.False(t, updated.UpdatedAt.IsZero())

	_, err = s.Transition(ctx, "missing", func(*common.ReviewQueueItem) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTransitionManyIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateItem(ctx, common.ReviewQueueItem{MentionID: "m1", Status: common.StatusPending}))
	require.NoError(t, s.CreateItem(ctx, common.ReviewQueueItem{MentionID: "m2", Status: common.StatusPending}))

	_, err := s.TransitionMany(ctx, []string{"m1", "missing"}, func([]*common.ReviewQueueItem) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)

	items, err := s.TransitionMany(ctx, []string{"m1", "m2"}, func(items []*common.ReviewQueueItem) error {
		for _, item := range items {
			item.Status = common.StatusMerged
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	merged, err := s.ListItems(ctx, common.StatusMerged)
	require.NoError(t, err)
	assert.Len(t, merged, 2)
	pending, err := s.ListItems(ctx, common.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestJobs(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateJob(ctx, common.Job{ID: "j1", Status: common.JobQueued}))

	job, err := s.UpdateJob(ctx, "j1", func(j *common.Job) {
		j.Status = common.JobRunning
		j.Attempts++
	})
	require.NoError(t, err)
	assert.Equal(t, common.JobRunning, job.Status)
	assert.Equal(t, 1, job.Attempts)

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIdentitiesKeepOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.ReplaceIdentities(ctx, []common.Identity{{ID: "b"}, {ID: "a"}}))
	ids, err := s.ListIdentities(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "b", ids[0].ID)
}
