package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/curation"
	"github.com/faro-watch/faro/backend/pkg/graph"
	"github.com/faro-watch/faro/backend/pkg/leaselock"
	"github.com/faro-watch/faro/backend/pkg/match"
	"github.com/faro-watch/faro/backend/pkg/registry"
	"github.com/faro-watch/faro/backend/pkg/store/memory"
)

const frontManText = "Juan Pérez es testaferro de Nicolás Maduro."

type env struct {
	store    *memory.Store
	holder   *match.Holder
	pipeline *Pipeline
}

func newEnv(t *testing.T, s Store, mem *memory.Store, locker leaselock.Locker, parallel int) *env {
	t.Helper()
	reg, err := registry.New([]common.Identity{{
		ID:              "id-maduro",
		CanonicalName:   "Nicolás Maduro Moros",
		Aliases:         []string{"Nicolas Maduro"},
		EntityType:      common.IdentityPerson,
		SourceAuthority: "OFAC",
		Verified:        true,
	}})
	require.NoError(t, err)

	holder := match.NewHolder(reg)
	admitter := graph.NewAdmitter(mem, graph.NewUpserter(mem))
	wf := curation.New(curation.Config{Queue: mem, Mentions: mem, Articles: mem, Matcher: holder, Admitter: admitter})
	return &env{
		store:    mem,
		holder:   holder,
		pipeline: New(Config{Store: s, Curation: wf, Locker: locker, Parallel: parallel}),
	}
}

func newMemoryEnv(t *testing.T) *env {
	mem := memory.New()
	return newEnv(t, mem, mem, leaselock.NewLocal(), 0)
}

func TestProcessArticleEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := newMemoryEnv(t)
	article := common.Article{ID: "a1", Language: "es", RawText: frontManText}
	require.NoError(t, e.store.SaveArticle(ctx, article))

	res := e.pipeline.ProcessArticle(ctx, article)
	require.Empty(t, res.Errors)
	assert.Equal(t, "a1", res.ArticleID)
	assert.Equal(t, 2, res.MentionsCreated)
	assert.Equal(t, 1, res.RelationsCreated)
	assert.Equal(t, 2, res.NodesCreated)
	assert.Equal(t, 1, res.EdgesCreated)
	assert.Equal(t, "id-maduro", res.FirstIdentityMatchID)

	mentions, err := e.store.ListMentionsByArticle(ctx, "a1")
	require.NoError(t, err)
	byText := map[string]common.Mention{}
	for _, m := range mentions {
		assert.Equal(t, common.MentionPerson, m.Type)
		assert.NotEmpty(t, m.NodeID)
		byText[m.NormalizedText] = m
	}
	require.Contains(t, byText, "juan perez")
	require.Contains(t, byText, "nicolas maduro")

	item, err := e.store.GetItem(ctx, byText["nicolas maduro"].ID)
	require.NoError(t, err)
	require.NotNil(t, item.IdentityMatch)
	assert.Equal(t, "id-maduro", item.IdentityMatch.IdentityID)
	assert.Equal(t, 100.0, item.IdentityMatch.Score)

	relations, err := e.store.ListRelationsByArticle(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, common.PatternFrontManOf, relations[0].Pattern)
	assert.Equal(t, byText["juan perez"].ID, relations[0].SubjectMentionID)
	assert.Equal(t, byText["nicolas maduro"].ID, relations[0].ObjectMentionID)

	edges, err := e.store.ListEdges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, byText["juan perez"].NodeID, edges[0].SrcNodeID)
	assert.Equal(t, byText["nicolas maduro"].NodeID, edges[0].DstNodeID)
	assert.Equal(t, common.PatternFrontManOf, edges[0].Type)

	maduro, err := e.store.GetNode(ctx, byText["nicolas maduro"].NodeID)
	require.NoError(t, err)
	assert.Equal(t, "Nicolás Maduro Moros", maduro.CanonicalName)
	assert.Equal(t, "id-maduro", maduro.LinkedIdentityID)

	stored, err := e.store.GetArticle(ctx, "a1")
	require.NoError(t, err)
	assert.NotNil(t, stored.ProcessedAt)
}

func TestProcessArticleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newMemoryEnv(t)
	article := common.Article{ID: "a1", Language: "es", RawText: frontManText}
	require.NoError(t, e.store.SaveArticle(ctx, article))

	first := e.pipeline.ProcessArticle(ctx, article)
	require.Empty(t, first.Errors)

	again := e.pipeline.ProcessArticle(ctx, article)
	require.Empty(t, again.Errors)
	assert.Zero(t, again.MentionsCreated)
	assert.Zero(t, again.RelationsCreated)
	assert.Zero(t, again.NodesCreated)
	assert.Zero(t, again.EdgesCreated)

	nodes, err := e.store.ListNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
	edges, err := e.store.ListEdges(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestSameEntityAcrossArticlesSharesNode(t *testing.T) {
	ctx := context.Background()
	e := newMemoryEnv(t)
	a1 := common.Article{ID: "a1", Language: "es", RawText: frontManText}
	a2 := common.Article{ID: "a2", Language: "es", RawText: "El gobierno de Nicolás Maduro negó las acusaciones."}
	require.NoError(t, e.store.SaveArticle(ctx, a1))
	require.NoError(t, e.store.SaveArticle(ctx, a2))

	results, err := e.pipeline.ProcessBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Empty(t, res.Errors, res.ArticleID)
	}
	assert.Zero(t, results[1].NodesCreated)

	node, err := e.store.FindNodeByKey(ctx, common.MentionPerson, "nicolas maduro moros")
	require.NoError(t, err)
	assert.Equal(t, 2, len(node.SourceIDs))
}

func TestProcessArticleGarbageText(t *testing.T) {
	ctx := context.Background()
	e := newMemoryEnv(t)
	article := common.Article{ID: "a1", RawText: "   \n\t ... 123 ;;"}
	require.NoError(t, e.store.SaveArticle(ctx, article))

	res := e.pipeline.ProcessArticle(ctx, article)
	assert.Empty(t, res.Errors)
	assert.Zero(t, res.MentionsCreated)
	assert.Zero(t, res.NodesCreated)
}

// faultyStore fails or panics for chosen articles.
type faultyStore struct {
	*memory.Store
	failOn  string
	panicOn string
}

func (f *faultyStore) AppendMention(ctx context.Context, m common.Mention) (bool, error) {
	if m.SourceArticleID == f.failOn {
		return false, errors.New("disk full")
	}
	return f.Store.AppendMention(ctx, m)
}

func (f *faultyStore) AppendRelation(ctx context.Context, r common.RelationMention) (bool, error) {
	if r.SourceArticleID == f.panicOn {
		panic("corrupt relation")
	}
	return f.Store.AppendRelation(ctx, r)
}

func TestProcessBatchCapturesPerArticleFailures(t *testing.T) {
	for _, parallel := range []int{0, 3} {
		ctx := context.Background()
		mem := memory.New()
		s := &faultyStore{Store: mem, failOn: "bad", panicOn: "panic"}
		e := newEnv(t, s, mem, nil, parallel)

		for _, id := range []string{"ok-1", "bad", "panic", "ok-2"} {
			require.NoError(t, mem.SaveArticle(ctx, common.Article{ID: id, Language: "es", RawText: frontManText}))
		}

		results, err := e.pipeline.ProcessBatch(ctx, 0)
		require.NoError(t, err)
		require.Len(t, results, 4)

		assert.Equal(t, "ok-1", results[0].ArticleID)
		assert.Empty(t, results[0].Errors)
		assert.Equal(t, "bad", results[1].ArticleID)
		require.Len(t, results[1].Errors, 1)
		assert.Contains(t, results[1].Errors[0], "disk full")
		assert.Equal(t, "panic", results[2].ArticleID)
		require.NotEmpty(t, results[2].Errors)
		assert.Contains(t, results[2].Errors[0], "corrupt relation")
		assert.Equal(t, "ok-2", results[3].ArticleID)
		assert.Empty(t, results[3].Errors)

		unprocessed, err := mem.ListUnprocessed(ctx, 0)
		require.NoError(t, err)
		ids := []string{}
		for _, a := range unprocessed {
			ids = append(ids, a.ID)
		}
		assert.ElementsMatch(t, []string{"bad", "panic"}, ids)
	}
}

// swappingStore runs swap once relations of article on are stored, which is
// after extraction and before curation.
type swappingStore struct {
	*memory.Store
	on   string
	swap func()
	once sync.Once
}

func (s *swappingStore) AppendRelation(ctx context.Context, r common.RelationMention) (bool, error) {
	if r.SourceArticleID == s.on {
		s.once.Do(s.swap)
	}
	return s.Store.AppendRelation(ctx, r)
}

func TestRegistryImportDoesNotChangeRunningBatch(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s := &swappingStore{Store: mem, on: "a1"}
	e := newEnv(t, s, mem, nil, 0)
	empty, err := registry.New(nil)
	require.NoError(t, err)
	s.swap = func() { e.holder.Replace(empty) }

	for _, id := range []string{"a1", "a2"} {
		require.NoError(t, mem.SaveArticle(ctx, common.Article{ID: id, Language: "es", RawText: frontManText}))
	}
	results, err := e.pipeline.ProcessBatch(ctx, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Empty(t, res.Errors)
		assert.Equal(t, "id-maduro", res.FirstIdentityMatchID, "article %s", res.ArticleID)
	}

	// The next run sees the swapped registry.
	require.NoError(t, mem.SaveArticle(ctx, common.Article{ID: "a3", Language: "es", RawText: frontManText}))
	res := e.pipeline.ProcessArticle(ctx, common.Article{ID: "a3", Language: "es", RawText: frontManText})
	assert.Empty(t, res.FirstIdentityMatchID)
}

func TestProcessBatchHoldsLease(t *testing.T) {
	ctx := context.Background()
	locker := leaselock.NewLocal()
	mem := memory.New()
	e := newEnv(t, mem, mem, locker, 0)

	err := locker.WithLease(ctx, leaselock.KeyPipelineBatch, leaselock.Options{}, func(ctx context.Context) error {
		_, err := e.pipeline.ProcessBatch(ctx, 10)
		return err
	})
	assert.ErrorIs(t, err, leaselock.ErrBusy)
}

func TestProcessArticleID(t *testing.T) {
	ctx := context.Background()
	e := newMemoryEnv(t)
	require.NoError(t, e.store.SaveArticle(ctx, common.Article{ID: "a1", RawText: frontManText}))

	res, err := e.pipeline.ProcessArticleID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.NodesCreated)

	res, err = e.pipeline.ProcessArticleID(ctx, "missing")
	assert.Error(t, err)
	assert.True(t, res.Failed())
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, Result{ArticleID: "a1"}.Err())
	err := Result{ArticleID: "a1", Errors: []string{"one", "two"}}.Err()
	assert.ErrorContains(t, err, "a1")
	assert.ErrorContains(t, err, "two")
}

func TestStableIDs(t *testing.T) {
	off := common.ByteOffsets{Start: 0, End: 10}
	assert.Equal(t, MentionID("a1", common.MentionPerson, off), MentionID("a1", common.MentionPerson, off))
	assert.NotEqual(t, MentionID("a1", common.MentionPerson, off), MentionID("a2", common.MentionPerson, off))
	assert.NotEqual(t, MentionID("a1", common.MentionPerson, off), MentionID("a1", common.MentionOrg, off))
}
