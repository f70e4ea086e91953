package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/logger"
	"github.com/faro-watch/faro/backend/pkg/match"
	"github.com/faro-watch/faro/backend/pkg/store"
	"github.com/faro-watch/faro/backend/pkg/textnorm"
)

// IdentityLookup resolves registry identities by id. *registry.Registry
// implements it.
type IdentityLookup interface {
	Get(id string) (common.Identity, bool)
}

// Admission reports what admitting a mention changed in the graph.
type Admission struct {
	Node         common.GraphNode
	NodeCreated  bool
	Edges        []common.GraphEdge
	EdgesCreated int
}

// Admitter turns approved mentions into graph nodes and wires the edges of
// their relations once both endpoints resolve.
type Admitter struct {
	mentions store.MentionStore
	upserter *Upserter
}

func NewAdmitter(mentions store.MentionStore, upserter *Upserter) *Admitter {
	return &Admitter{mentions: mentions, upserter: upserter}
}

// linkIdentity reports whether item's registry match may be attached to the
// node: either it is high-confidence or a curator approved the mention.
func linkIdentity(item common.ReviewQueueItem) bool {
	if item.IdentityMatch == nil {
		return false
	}
	return match.IsHighConfidence(item.IdentityMatch) || item.Status == common.StatusApproved
}

// AdmitMention upserts the node of an approved queue item. Mentions merged
// into it are folded into the same node as alternate names and sources.
// identities is the registry snapshot the item was matched against; it may
// be nil.
func (a *Admitter) AdmitMention(ctx context.Context, identities IdentityLookup, item common.ReviewQueueItem, merged ...common.Mention) (Admission, error) {
	if !item.Status.Approving() {
		return Admission{}, fmt.Errorf("mention %s is %s, not approved", item.MentionID, item.Status)
	}
	mention, err := a.mentions.GetMention(ctx, item.MentionID)
	if err != nil {
		return Admission{}, fmt.Errorf("failed to load mention %s: %w", item.MentionID, err)
	}
	if mention.Type == common.MentionLocation {
		return Admission{}, nil
	}

	in := NodeInput{
		Type:          mention.Type,
		CanonicalName: mention.RawText,
		SourceIDs:     map[string]string{mention.SourceArticleID: mention.ID},
	}
	if linkIdentity(item) {
		in.IdentityID = item.IdentityMatch.IdentityID
		if identities != nil {
			if identity, ok := identities.Get(in.IdentityID); ok && textnorm.Key(identity.CanonicalName) != "" {
				in.CanonicalName = identity.CanonicalName
			}
		}
	}
	nameKey := NodeKey(in.CanonicalName)
	addAlt := func(m common.Mention) {
		if NodeKey(m.RawText) != nameKey {
			in.AltNames = append(in.AltNames, m.RawText)
		}
	}
	addAlt(mention)
	for _, m := range merged {
		addAlt(m)
		in.SourceIDs[m.SourceArticleID] = m.ID
	}

	node, created, err := a.upserter.UpsertNode(ctx, in)
	if err != nil {
		return Admission{}, err
	}
	adm := Admission{Node: node, NodeCreated: created}

	admitted := append([]common.Mention{mention}, merged...)
	for _, m := range admitted {
		if err := a.mentions.SetMentionNode(ctx, m.ID, node.ID); err != nil {
			return adm, fmt.Errorf("failed to link mention %s to node %s: %w", m.ID, node.ID, err)
		}
	}
	for _, m := range admitted {
		if err := a.wireRelations(ctx, m.ID, &adm); err != nil {
			return adm, err
		}
	}

	logger.Debug("[Graph] Admitted mention", "mention", mention.ID, "node", node.ID, "created", created, "edges", adm.EdgesCreated)
	return adm, nil
}

// wireRelations upserts an edge for every stored relation of mentionID whose
// subject and object both have a node.
func (a *Admitter) wireRelations(ctx context.Context, mentionID string, adm *Admission) error {
	relations, err := a.mentions.ListRelationsByMention(ctx, mentionID)
	if err != nil {
		return fmt.Errorf("failed to list relations of mention %s: %w", mentionID, err)
	}
	for _, rel := range relations {
		src, ok, err := a.nodeOf(ctx, rel.SubjectMentionID)
		if err != nil || !ok {
			if err != nil {
				return err
			}
			continue
		}
		dst, ok, err := a.nodeOf(ctx, rel.ObjectMentionID)
		if err != nil || !ok {
			if err != nil {
				return err
			}
			continue
		}
		if src == dst {
			continue
		}

		weight := rel.Confidence
		edge, created, err := a.upserter.UpsertEdge(ctx, EdgeInput{
			SrcNodeID: src,
			DstNodeID: dst,
			Type:      rel.Pattern,
			Weight:    &weight,
			EvidenceRef: &common.EvidenceRef{
				ArticleID:  rel.SourceArticleID,
				RelationID: rel.ID,
				Sentence:   rel.SentenceText,
				Pattern:    rel.Pattern,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to upsert edge for relation %s: %w", rel.ID, err)
		}
		adm.Edges = append(adm.Edges, edge)
		if created {
			adm.EdgesCreated++
		}
	}
	return nil
}

func (a *Admitter) nodeOf(ctx context.Context, mentionID string) (string, bool, error) {
	if mentionID == "" {
		return "", false, nil
	}
	m, err := a.mentions.GetMention(ctx, mentionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to load mention %s: %w", mentionID, err)
	}
	return m.NodeID, m.NodeID != "", nil
}
