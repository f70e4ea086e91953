// Package memory is an in-process implementation of store.Store, used by
// tests, the CLI and single-node deployments without Postgres.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/store"
)

type nodeKey struct {
	t   common.MentionType
	key string
}

type edgeKey struct {
	src, dst, t string
}

// Store keeps every record in maps guarded by a single RWMutex. All values
// are copied in and out so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	articles     map[string]common.Article
	articleOrder []string

	mentions      map[string]common.Mention
	mentionOrder  []string
	relations     map[string]common.RelationMention
	relationOrder []string

	nodes     map[string]common.GraphNode
	nodeByKey map[nodeKey]string
	nodeOrder []string
	edges     map[string]common.GraphEdge
	edgeByKey map[edgeKey]string
	edgeOrder []string

	items     map[string]common.ReviewQueueItem
	itemOrder []string

	jobs map[string]common.Job

	identities []common.Identity
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		articles:  make(map[string]common.Article),
		mentions:  make(map[string]common.Mention),
		relations: make(map[string]common.RelationMention),
		nodes:     make(map[string]common.GraphNode),
		nodeByKey: make(map[nodeKey]string),
		edges:     make(map[string]common.GraphEdge),
		edgeByKey: make(map[edgeKey]string),
		items:     make(map[string]common.ReviewQueueItem),
		jobs:      make(map[string]common.Job),
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
}

// Articles

func (s *Store) SaveArticle(_ context.Context, a common.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[a.ID]; !ok {
		s.articleOrder = append(s.articleOrder, a.ID)
	}
	s.articles[a.ID] = a
	return nil
}

func (s *Store) GetArticle(_ context.Context, id string) (common.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[id]
	if !ok {
		return common.Article{}, notFound("article", id)
	}
	return a, nil
}

func (s *Store) ListUnprocessed(_ context.Context, limit int) ([]common.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []common.Article
	for _, id := range s.articleOrder {
		a := s.articles[id]
		if a.ProcessedAt != nil {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkProcessed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return notFound("article", id)
	}
	a.ProcessedAt = &at
	s.articles[id] = a
	return nil
}

// Mentions and relations

func (s *Store) AppendMention(_ context.Context, m common.Mention) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mentions[m.ID]; ok {
		return false, nil
	}
	s.mentions[m.ID] = m
	s.mentionOrder = append(s.mentionOrder, m.ID)
	return true, nil
}

func (s *Store) GetMention(_ context.Context, id string) (common.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mentions[id]
	if !ok {
		return common.Mention{}, notFound("mention", id)
	}
	return m, nil
}

func (s *Store) UpdateMentionText(_ context.Context, id, rawText, normalizedText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mentions[id]
	if !ok {
		return notFound("mention", id)
	}
	m.RawText = rawText
	m.NormalizedText = normalizedText
	s.mentions[id] = m
	return nil
}

func (s *Store) SetMentionNode(_ context.Context, id, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mentions[id]
	if !ok {
		return notFound("mention", id)
	}
	m.NodeID = nodeID
	s.mentions[id] = m
	return nil
}

func (s *Store) ListMentionsByType(_ context.Context, t common.MentionType) ([]common.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []common.Mention
	for _, id := range s.mentionOrder {
		if m := s.mentions[id]; m.Type == t {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) ListMentionsByArticle(_ context.Context, articleID string) ([]common.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []common.Mention
	for _, id := range s.mentionOrder {
		if m := s.mentions[id]; m.SourceArticleID == articleID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) AppendRelation(_ context.Context, r common.RelationMention) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relations[r.ID]; ok {
		return false, nil
	}
	s.relations[r.ID] = r
	s.relationOrder = append(s.relationOrder, r.ID)
	return true, nil
}

func (s *Store) ListRelationsByArticle(_ context.Context, articleID string) ([]common.RelationMention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []common.RelationMention
	for _, id := range s.relationOrder {
		if r := s.relations[id]; r.SourceArticleID == articleID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) ListRelationsByMention(_ context.Context, mentionID string) ([]common.RelationMention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []common.RelationMention
	for _, id := range s.relationOrder {
		r := s.relations[id]
		if r.SubjectMentionID == mentionID || r.ObjectMentionID == mentionID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Graph

func (s *Store) FindNodeByKey(_ context.Context, t common.MentionType, nameKey string) (common.GraphNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nodeByKey[nodeKey{t, nameKey}]
	if !ok {
		return common.GraphNode{}, notFound("node", string(t)+"/"+nameKey)
	}
	return store.CloneNode(s.nodes[id]), nil
}

func (s *Store) GetNode(_ context.Context, id string) (common.GraphNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return common.GraphNode{}, notFound("node", id)
	}
	return store.CloneNode(n), nil
}

func (s *Store) CreateNode(_ context.Context, n common.GraphNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := nodeKey{n.Type, n.NameKey}
	if _, ok := s.nodeByKey[k]; ok {
		return fmt.Errorf("node %s/%s: %w", n.Type, n.NameKey, store.ErrConflict)
	}
	if _, ok := s.nodes[n.ID]; ok {
		return fmt.Errorf("node %s: %w", n.ID, store.ErrConflict)
	}
	s.nodes[n.ID] = store.CloneNode(n)
	s.nodeByKey[k] = n.ID
	s.nodeOrder = append(s.nodeOrder, n.ID)
	return nil
}

func (s *Store) UpdateNode(_ context.Context, n common.GraphNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.nodes[n.ID]
	if !ok {
		return notFound("node", n.ID)
	}
	if old.Type != n.Type || old.NameKey != n.NameKey {
		return fmt.Errorf("node %s: key is immutable: %w", n.ID, store.ErrConflict)
	}
	s.nodes[n.ID] = store.CloneNode(n)
	return nil
}

func (s *Store) ListNodes(_ context.Context) ([]common.GraphNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.GraphNode, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		out = append(out, store.CloneNode(s.nodes[id]))
	}
	return out, nil
}

func (s *Store) FindEdge(_ context.Context, srcID, dstID, edgeType string) (common.GraphEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.edgeByKey[edgeKey{srcID, dstID, edgeType}]
	if !ok {
		return common.GraphEdge{}, notFound("edge", srcID+"->"+dstID+"/"+edgeType)
	}
	return store.CloneEdge(s.edges[id]), nil
}

func (s *Store) GetEdge(_ context.Context, id string) (common.GraphEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[id]
	if !ok {
		return common.GraphEdge{}, notFound("edge", id)
	}
	return store.CloneEdge(e), nil
}

func (s *Store) CreateEdge(_ context.Context, e common.GraphEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[e.SrcNodeID]; !ok {
		return notFound("node", e.SrcNodeID)
	}
	if _, ok := s.nodes[e.DstNodeID]; !ok {
		return notFound("node", e.DstNodeID)
	}
	k := edgeKey{e.SrcNodeID, e.DstNodeID, e.Type}
	if _, ok := s.edgeByKey[k]; ok {
		return fmt.Errorf("edge %s->%s/%s: %w", e.SrcNodeID, e.DstNodeID, e.Type, store.ErrConflict)
	}
	s.edges[e.ID] = store.CloneEdge(e)
	s.edgeByKey[k] = e.ID
	s.edgeOrder = append(s.edgeOrder, e.ID)
	return nil
}

func (s *Store) UpdateEdge(_ context.Context, e common.GraphEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.edges[e.ID]; !ok {
		return notFound("edge", e.ID)
	}
	s.edges[e.ID] = store.CloneEdge(e)
	return nil
}

func (s *Store) ListEdges(_ context.Context) ([]common.GraphEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.GraphEdge, 0, len(s.edgeOrder))
	for _, id := range s.edgeOrder {
		out = append(out, store.CloneEdge(s.edges[id]))
	}
	return out, nil
}

// Review queue

func (s *Store) CreateItem(_ context.Context, item common.ReviewQueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.MentionID]; ok {
		return fmt.Errorf("review item %s: %w", item.MentionID, store.ErrAlreadyExists)
	}
	s.items[item.MentionID] = store.CloneItem(item)
	s.itemOrder = append(s.itemOrder, item.MentionID)
	return nil
}

func (s *Store) GetItem(_ context.Context, mentionID string) (common.ReviewQueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[mentionID]
	if !ok {
		return common.ReviewQueueItem{}, notFound("review item", mentionID)
	}
	return store.CloneItem(item), nil
}

func (s *Store) ListItems(_ context.Context, status common.ReviewStatus) ([]common.ReviewQueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []common.ReviewQueueItem
	for _, id := range s.itemOrder {
		item := s.items[id]
		if status != "" && item.Status != status {
			continue
		}
		out = append(out, store.CloneItem(item))
	}
	return out, nil
}

func (s *Store) Transition(_ context.Context, mentionID string, fn store.TransitionFunc) (common.ReviewQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[mentionID]
	if !ok {
		return common.ReviewQueueItem{}, notFound("review item", mentionID)
	}
	working := store.CloneItem(item)
	if err := fn(&working); err != nil {
		return common.ReviewQueueItem{}, err
	}
	working.UpdatedAt = time.Now().UTC()
	s.items[mentionID] = store.CloneItem(working)
	return working, nil
}

func (s *Store) TransitionMany(_ context.Context, mentionIDs []string, fn func([]*common.ReviewQueueItem) error) ([]common.ReviewQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	working := make([]*common.ReviewQueueItem, 0, len(mentionIDs))
	for _, id := range mentionIDs {
		item, ok := s.items[id]
		if !ok {
			return nil, notFound("review item", id)
		}
		c := store.CloneItem(item)
		working = append(working, &c)
	}
	if err := fn(working); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]common.ReviewQueueItem, 0, len(working))
	for _, item := range working {
		item.UpdatedAt = now
		s.items[item.MentionID] = store.CloneItem(*item)
		out = append(out, *item)
	}
	return out, nil
}

// Jobs

func (s *Store) CreateJob(_ context.Context, job common.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s: %w", job.ID, store.ErrAlreadyExists)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (common.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return common.Job{}, notFound("job", id)
	}
	return job, nil
}

func (s *Store) UpdateJob(_ context.Context, id string, fn func(*common.Job)) (common.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return common.Job{}, notFound("job", id)
	}
	fn(&job)
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}

// Identities

func (s *Store) ReplaceIdentities(_ context.Context, identities []common.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities = slices.Clone(identities)
	return nil
}

func (s *Store) ListIdentities(_ context.Context) ([]common.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.identities), nil
}
