package store

import "github.com/faro-watch/faro/backend/pkg/common"

// DedupeStrings drops empty and repeated values, keeping first occurrences.
func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// CloneNode returns a deep copy of n.
func CloneNode(n common.GraphNode) common.GraphNode {
	n.AltNames = append([]string(nil), n.AltNames...)
	if n.SourceIDs != nil {
		ids := make(map[string]string, len(n.SourceIDs))
		for k, v := range n.SourceIDs {
			ids[k] = v
		}
		n.SourceIDs = ids
	}
	return n
}

// CloneEdge returns a deep copy of e.
func CloneEdge(e common.GraphEdge) common.GraphEdge {
	if e.Weight != nil {
		w := *e.Weight
		e.Weight = &w
	}
	if e.EvidenceRef != nil {
		ref := *e.EvidenceRef
		e.EvidenceRef = &ref
	}
	return e
}

// CloneItem returns a deep copy of item.
func CloneItem(item common.ReviewQueueItem) common.ReviewQueueItem {
	item.Issues = append([]string(nil), item.Issues...)
	item.DuplicateCandidates = append([]common.DuplicateCandidate(nil), item.DuplicateCandidates...)
	if item.IdentityMatch != nil {
		m := *item.IdentityMatch
		item.IdentityMatch = &m
	}
	if item.ReviewerVerdict != nil {
		v := *item.ReviewerVerdict
		item.ReviewerVerdict = &v
	}
	if item.DecidedAt != nil {
		t := *item.DecidedAt
		item.DecidedAt = &t
	}
	return item
}
