package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/logger"
	"github.com/faro-watch/faro/backend/pkg/store"
	"github.com/faro-watch/faro/backend/pkg/textnorm"
)

var (
	// ErrNodeNotFound is returned when an edge names a node that does not
	// exist. Edges never create nodes.
	ErrNodeNotFound = errors.New("graph node not found")
	ErrInvalidNode  = errors.New("invalid graph node")
)

// NodeInput describes a node upsert. Only Type and CanonicalName are
// required.
type NodeInput struct {
	Type          common.MentionType
	CanonicalName string
	AltNames      []string
	SourceIDs     map[string]string
	IdentityID    string
}

// EdgeInput describes an edge upsert. Nil Weight or EvidenceRef leave the
// stored values untouched.
type EdgeInput struct {
	SrcNodeID   string
	DstNodeID   string
	Type        string
	Weight      *float64
	EvidenceRef *common.EvidenceRef
}

// Upserter merges nodes and edges into the graph store by their natural
// keys: (type, normalized name) for nodes, (src, dst, type) for edges.
type Upserter struct {
	store store.GraphStore
	now   func() time.Time

	// Serialises read-merge-write cycles within this process.
	mu sync.Mutex
}

// NewUpserter returns an Upserter over s.
func NewUpserter(s store.GraphStore) *Upserter {
	return &Upserter{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// NodeKey returns the lookup key of a canonical name.
func NodeKey(canonicalName string) string {
	return textnorm.Key(canonicalName)
}

// UpsertNode creates the node or merges in into the existing one. The bool
// result reports whether a node was created.
func (u *Upserter) UpsertNode(ctx context.Context, in NodeInput) (common.GraphNode, bool, error) {
	name := textnorm.DisplayName(in.CanonicalName)
	key := NodeKey(name)
	if key == "" || in.Type == "" {
		return common.GraphNode{}, false, fmt.Errorf("%w: type %q, name %q", ErrInvalidNode, in.Type, in.CanonicalName)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	// A create can lose against a concurrent writer on another process; the
	// second pass then merges into the winner.
	for range 2 {
		existing, err := u.store.FindNodeByKey(ctx, in.Type, key)
		switch {
		case err == nil:
			merged, changed := mergeNode(existing, in)
			if !changed {
				return existing, false, nil
			}
			merged.UpdatedAt = u.now()
			if err := u.store.UpdateNode(ctx, merged); err != nil {
				return common.GraphNode{}, false, fmt.Errorf("failed to update node %s: %w", existing.ID, err)
			}
			logger.Debug("[Graph] Merged node", "id", merged.ID, "name", merged.CanonicalName)
			return merged, false, nil

		case errors.Is(err, store.ErrNotFound):
			now := u.now()
			node := common.GraphNode{
				ID:               common.NewID("node"),
				Type:             in.Type,
				CanonicalName:    name,
				NameKey:          key,
				AltNames:         unionNames(nil, in.AltNames),
				SourceIDs:        mergeSourceIDs(nil, in.SourceIDs),
				LinkedIdentityID: in.IdentityID,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := u.store.CreateNode(ctx, node); err != nil {
				if errors.Is(err, store.ErrConflict) {
					continue
				}
				return common.GraphNode{}, false, fmt.Errorf("failed to create node %q: %w", name, err)
			}
			logger.Debug("[Graph] Created node", "id", node.ID, "type", node.Type, "name", node.CanonicalName)
			return node, true, nil

		default:
			return common.GraphNode{}, false, fmt.Errorf("failed to look up node %q: %w", name, err)
		}
	}
	return common.GraphNode{}, false, fmt.Errorf("node %s/%s: %w", in.Type, key, store.ErrConflict)
}

// mergeNode folds in into node: alt names are unioned, source ids are
// last-write-wins per key and the identity is only backfilled.
func mergeNode(node common.GraphNode, in NodeInput) (common.GraphNode, bool) {
	merged := store.CloneNode(node)
	merged.AltNames = unionNames(node.AltNames, in.AltNames)
	merged.SourceIDs = mergeSourceIDs(node.SourceIDs, in.SourceIDs)
	if merged.LinkedIdentityID == "" && in.IdentityID != "" {
		merged.LinkedIdentityID = in.IdentityID
	}

	changed := !slices.Equal(merged.AltNames, node.AltNames) ||
		merged.LinkedIdentityID != node.LinkedIdentityID ||
		len(merged.SourceIDs) != len(node.SourceIDs)
	if !changed {
		for k, v := range merged.SourceIDs {
			if node.SourceIDs[k] != v {
				changed = true
				break
			}
		}
	}
	return merged, changed
}

func unionNames(existing, add []string) []string {
	out := slices.Clone(existing)
	for _, name := range add {
		name = textnorm.DisplayName(name)
		if name == "" || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func mergeSourceIDs(existing, add map[string]string) map[string]string {
	if len(existing) == 0 && len(add) == 0 {
		return nil
	}
	out := make(map[string]string, len(existing)+len(add))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range add {
		out[k] = v
	}
	return out
}

// UpsertEdge creates the edge or overwrites weight and evidence of the
// existing one. Both endpoints must already exist.
func (u *Upserter) UpsertEdge(ctx context.Context, in EdgeInput) (common.GraphEdge, bool, error) {
	if in.SrcNodeID == "" || in.DstNodeID == "" || in.Type == "" {
		return common.GraphEdge{}, false, fmt.Errorf("%w: edge needs src, dst and type", ErrInvalidNode)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	for range 2 {
		existing, err := u.store.FindEdge(ctx, in.SrcNodeID, in.DstNodeID, in.Type)
		switch {
		case err == nil:
			if in.Weight == nil && in.EvidenceRef == nil {
				return existing, false, nil
			}
			updated := store.CloneEdge(existing)
			if in.Weight != nil {
				w := *in.Weight
				updated.Weight = &w
			}
			if in.EvidenceRef != nil {
				ref := *in.EvidenceRef
				updated.EvidenceRef = &ref
			}
			updated.UpdatedAt = u.now()
			if err := u.store.UpdateEdge(ctx, updated); err != nil {
				return common.GraphEdge{}, false, fmt.Errorf("failed to update edge %s: %w", existing.ID, err)
			}
			return updated, false, nil

		case errors.Is(err, store.ErrNotFound):
			for _, id := range []string{in.SrcNodeID, in.DstNodeID} {
				if _, err := u.store.GetNode(ctx, id); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return common.GraphEdge{}, false, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
					}
					return common.GraphEdge{}, false, err
				}
			}

			now := u.now()
			edge := store.CloneEdge(common.GraphEdge{
				ID:          common.NewID("edge"),
				SrcNodeID:   in.SrcNodeID,
				DstNodeID:   in.DstNodeID,
				Type:        in.Type,
				Weight:      in.Weight,
				EvidenceRef: in.EvidenceRef,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			if err := u.store.CreateEdge(ctx, edge); err != nil {
				switch {
				case errors.Is(err, store.ErrConflict):
					continue
				case errors.Is(err, store.ErrNotFound):
					return common.GraphEdge{}, false, fmt.Errorf("%w: %v", ErrNodeNotFound, err)
				}
				return common.GraphEdge{}, false, fmt.Errorf("failed to create edge: %w", err)
			}
			logger.Debug("[Graph] Created edge", "id", edge.ID, "type", edge.Type, "src", edge.SrcNodeID, "dst", edge.DstNodeID)
			return edge, true, nil

		default:
			return common.GraphEdge{}, false, fmt.Errorf("failed to look up edge: %w", err)
		}
	}
	return common.GraphEdge{}, false, fmt.Errorf("edge %s->%s/%s: %w", in.SrcNodeID, in.DstNodeID, in.Type, store.ErrConflict)
}
