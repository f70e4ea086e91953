package pgx

import (
	"context"
	"encoding/json"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/faro-watch/faro/backend/pkg/common"
)

const nodeColumns = `id, type, canonical_name, name_key, alt_names, source_ids,
coalesce(linked_identity_id, ''), created_at, updated_at`

func scanNode(row pgxv5.Row) (common.GraphNode, error) {
	var (
		n         common.GraphNode
		sourceIDs []byte
	)
	if err := row.Scan(&n.ID, &n.Type, &n.CanonicalName, &n.NameKey, &n.AltNames, &sourceIDs,
		&n.LinkedIdentityID, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return n, err
	}
	if len(sourceIDs) > 0 {
		if err := json.Unmarshal(sourceIDs, &n.SourceIDs); err != nil {
			return n, fmt.Errorf("failed to unmarshal source ids of node %s: %w", n.ID, err)
		}
	}
	return n, nil
}

func (s *Storage) FindNodeByKey(ctx context.Context, t common.MentionType, nameKey string) (common.GraphNode, error) {
	n, err := scanNode(s.conn.QueryRow(ctx,
		`SELECT `+nodeColumns+` FROM graph_nodes WHERE type = $1 AND name_key = $2`, t, nameKey))
	return n, translate(err, "node", string(t)+"/"+nameKey)
}

func (s *Storage) GetNode(ctx context.Context, id string) (common.GraphNode, error) {
	n, err := scanNode(s.conn.QueryRow(ctx, `SELECT `+nodeColumns+` FROM graph_nodes WHERE id = $1`, id))
	return n, translate(err, "node", id)
}

func (s *Storage) CreateNode(ctx context.Context, n common.GraphNode) error {
	sourceIDs, err := marshalJSON(nonNilMap(n.SourceIDs))
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(ctx, `
INSERT INTO graph_nodes (id, type, canonical_name, name_key, alt_names, source_ids, linked_identity_id,
                         created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.Type, n.CanonicalName, n.NameKey, nonNilSlice(n.AltNames), sourceIDs,
		nullString(n.LinkedIdentityID), n.CreatedAt, n.UpdatedAt)
	return translate(err, "node", n.ID)
}

func (s *Storage) UpdateNode(ctx context.Context, n common.GraphNode) error {
	sourceIDs, err := marshalJSON(nonNilMap(n.SourceIDs))
	if err != nil {
		return err
	}
	tag, err := s.conn.Exec(ctx, `
UPDATE graph_nodes
SET canonical_name     = $2,
    alt_names          = $3,
    source_ids         = $4,
    linked_identity_id = $5,
    updated_at         = $6
WHERE id = $1`,
		n.ID, n.CanonicalName, nonNilSlice(n.AltNames), sourceIDs, nullString(n.LinkedIdentityID), n.UpdatedAt)
	if err != nil {
		return translate(err, "node", n.ID)
	}
	return expectOne(tag, "node", n.ID)
}

func (s *Storage) ListNodes(ctx context.Context) ([]common.GraphNode, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+nodeColumns+` FROM graph_nodes ORDER BY created_at, id`)
	if err != nil {
		return nil, translate(err, "nodes", "all")
	}
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.GraphNode, error) {
		return scanNode(row)
	})
}

const edgeColumns = `id, src_node_id, dst_node_id, type, weight, evidence_ref, created_at, updated_at`

func scanEdge(row pgxv5.Row) (common.GraphEdge, error) {
	var (
		e        common.GraphEdge
		evidence []byte
	)
	if err := row.Scan(&e.ID, &e.SrcNodeID, &e.DstNodeID, &e.Type, &e.Weight, &evidence,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return e, err
	}
	ref, err := unmarshalNullable[common.EvidenceRef](evidence)
	if err != nil {
		return e, err
	}
	e.EvidenceRef = ref
	return e, nil
}

func (s *Storage) FindEdge(ctx context.Context, srcID, dstID, edgeType string) (common.GraphEdge, error) {
	e, err := scanEdge(s.conn.QueryRow(ctx,
		`SELECT `+edgeColumns+` FROM graph_edges WHERE src_node_id = $1 AND dst_node_id = $2 AND type = $3`,
		srcID, dstID, edgeType))
	return e, translate(err, "edge", srcID+"->"+dstID+"/"+edgeType)
}

func (s *Storage) GetEdge(ctx context.Context, id string) (common.GraphEdge, error) {
	e, err := scanEdge(s.conn.QueryRow(ctx, `SELECT `+edgeColumns+` FROM graph_edges WHERE id = $1`, id))
	return e, translate(err, "edge", id)
}

func (s *Storage) CreateEdge(ctx context.Context, e common.GraphEdge) error {
	evidence, err := marshalNullable(e.EvidenceRef)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(ctx, `
INSERT INTO graph_edges (id, src_node_id, dst_node_id, type, weight, evidence_ref, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.SrcNodeID, e.DstNodeID, e.Type, e.Weight, evidence, e.CreatedAt, e.UpdatedAt)
	return translate(err, "edge", e.ID)
}

func (s *Storage) UpdateEdge(ctx context.Context, e common.GraphEdge) error {
	evidence, err := marshalNullable(e.EvidenceRef)
	if err != nil {
		return err
	}
	tag, err := s.conn.Exec(ctx, `
UPDATE graph_edges
SET weight = $2, evidence_ref = $3, updated_at = $4
WHERE id = $1`, e.ID, e.Weight, evidence, e.UpdatedAt)
	if err != nil {
		return translate(err, "edge", e.ID)
	}
	return expectOne(tag, "edge", e.ID)
}

func (s *Storage) ListEdges(ctx context.Context) ([]common.GraphEdge, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+edgeColumns+` FROM graph_edges ORDER BY created_at, id`)
	if err != nil {
		return nil, translate(err, "edges", "all")
	}
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.GraphEdge, error) {
		return scanEdge(row)
	})
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
