package graph

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/store"
	"github.com/faro-watch/faro/backend/pkg/store/memory"
)

func TestUpsertNodeMergesByNormalizedName(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := NewUpserter(s)

	first, created, err := u.UpsertNode(ctx, NodeInput{
		Type:          common.MentionPerson,
		CanonicalName: "Juan  Pérez",
		AltNames:      []string{"JP"},
		SourceIDs:     map[string]string{"a1": "m1"},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Juan Pérez", first.CanonicalName)
	assert.Equal(t, "juan perez", first.NameKey)

	second, created, err := u.UpsertNode(ctx, NodeInput{
		Type:          common.MentionPerson,
		CanonicalName: "JUAN PEREZ",
		AltNames:      []string{"Juanito", "JP"},
		SourceIDs:     map[string]string{"a2": "m2"},
		IdentityID:    "id-1",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Juan Pérez", second.CanonicalName)
	assert.Equal(t, []string{"JP", "Juanito"}, second.AltNames)
	assert.Equal(t, map[string]string{"a1": "m1", "a2": "m2"}, second.SourceIDs)
	assert.Equal(t, "id-1", second.LinkedIdentityID)

	nodes, err := s.ListNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestUpsertNodeKeepsLinkedIdentity(t *testing.T) {
	ctx := context.Background()
	u := NewUpserter(memory.New())

	_, _, err := u.UpsertNode(ctx, NodeInput{Type: common.MentionOrg, CanonicalName: "Acme", IdentityID: "first"})
	require.NoError(t, err)
	node, _, err := u.UpsertNode(ctx, NodeInput{Type: common.MentionOrg, CanonicalName: "acme", IdentityID: "second"})
	require.NoError(t, err)
	assert.Equal(t, "first", node.LinkedIdentityID)
}

func TestUpsertNodeSeparatesTypes(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := NewUpserter(s)

	a, _, err := u.UpsertNode(ctx, NodeInput{Type: common.MentionPerson, CanonicalName: "Orinoco"})
	require.NoError(t, err)
	b, _, err := u.UpsertNode(ctx, NodeInput{Type: common.MentionOrg, CanonicalName: "Orinoco"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestUpsertNodeRejectsEmptyName(t *testing.T) {
	u := NewUpserter(memory.New())
	_, _, err := u.UpsertNode(context.Background(), NodeInput{Type: common.MentionPerson, CanonicalName: "  "})
	assert.ErrorIs(t, err, ErrInvalidNode)
}

func TestUpsertNodeUnchangedSkipsWrite(t *testing.T) {
	ctx := context.Background()
	u := NewUpserter(memory.New())

	in := NodeInput{Type: common.MentionPerson, CanonicalName: "Ana Gómez", SourceIDs: map[string]string{"a1": "m1"}}
	first, _, err := u.UpsertNode(ctx, in)
	require.NoError(t, err)
	again, created, err := u.UpsertNode(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.UpdatedAt, again.UpdatedAt)
}

func TestUpsertNodeConcurrent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := NewUpserter(s)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := u.UpsertNode(ctx, NodeInput{
				Type:          common.MentionOrg,
				CanonicalName: "Derwick Associates",
				SourceIDs:     map[string]string{string(rune('a' + i)): "m"},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	nodes, err := s.ListNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Len(t, nodes[0].SourceIDs, 16)
}

func TestUpsertEdge(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := NewUpserter(s)

	src, _, err := u.UpsertNode(ctx, NodeInput{Type: common.MentionPerson, CanonicalName: "Juan Pérez"})
	require.NoError(t, err)
	dst, _, err := u.UpsertNode(ctx, NodeInput{Type: common.MentionPerson, CanonicalName: "Nicolás Maduro Moros"})
	require.NoError(t, err)

	w := 0.85
	edge, created, err := u.UpsertEdge(ctx, EdgeInput{SrcNodeID: src.ID, DstNodeID: dst.ID, Type: common.PatternFrontManOf, Weight: &w})
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, edge.Weight)
	assert.InDelta(t, 0.85, *edge.Weight, 1e-9)
	assert.Nil(t, edge.EvidenceRef)

	w2 := 0.9
	ref := &common.EvidenceRef{ArticleID: "a2", RelationID: "r2", Pattern: common.PatternFrontManOf}
	updated, created, err := u.UpsertEdge(ctx, EdgeInput{SrcNodeID: src.ID, DstNodeID: dst.ID, Type: common.PatternFrontManOf, Weight: &w2, EvidenceRef: ref})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, edge.ID, updated.ID)
	assert.InDelta(t, 0.9, *updated.Weight, 1e-9)
	assert.Equal(t, "a2", updated.EvidenceRef.ArticleID)

	// Nil fields leave stored values alone.
	same, _, err := u.UpsertEdge(ctx, EdgeInput{SrcNodeID: src.ID, DstNodeID: dst.ID, Type: common.PatternFrontManOf})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, *same.Weight, 1e-9)

	// Direction and type are part of the key.
	_, created, err = u.UpsertEdge(ctx, EdgeInput{SrcNodeID: dst.ID, DstNodeID: src.ID, Type: common.PatternFrontManOf})
	require.NoError(t, err)
	assert.True(t, created)

	edges, err := s.ListEdges(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestUpsertEdgeMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := NewUpserter(s)

	src, _, err := u.UpsertNode(ctx, NodeInput{Type: common.MentionPerson, CanonicalName: "Juan Pérez"})
	require.NoError(t, err)

	_, _, err = u.UpsertEdge(ctx, EdgeInput{SrcNodeID: src.ID, DstNodeID: "node_missing", Type: common.PatternOfficerOf})
	assert.ErrorIs(t, err, ErrNodeNotFound)

	nodes, err := s.ListNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
	edges, err := s.ListEdges(ctx)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

// conflictOnce makes the first CreateNode lose a race against another writer.
type conflictOnce struct {
	*memory.Store
	raced bool
}

func (c *conflictOnce) CreateNode(ctx context.Context, node common.GraphNode) error {
	if !c.raced {
		c.raced = true
		winner := node
		winner.ID = "node_winner"
		winner.AltNames = nil
		winner.SourceIDs = map[string]string{"other": "m0"}
		if err := c.Store.CreateNode(ctx, winner); err != nil {
			return err
		}
		return store.ErrConflict
	}
	return c.Store.CreateNode(ctx, node)
}

func TestUpsertNodeLostRaceMergesIntoWinner(t *testing.T) {
	ctx := context.Background()
	s := &conflictOnce{Store: memory.New()}
	u := NewUpserter(s)

	node, created, err := u.UpsertNode(ctx, NodeInput{
		Type:          common.MentionPerson,
		CanonicalName: "Juan Pérez",
		SourceIDs:     map[string]string{"a1": "m1"},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "node_winner", node.ID)
	assert.Equal(t, map[string]string{"other": "m0", "a1": "m1"}, node.SourceIDs)
}
