package pgx

import (
	"context"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/faro-watch/faro/backend/pkg/common"
)

const mentionColumns = `id, source_article_id, type, raw_text, normalized_text, language,
extraction_confidence, start_offset, end_offset, coalesce(node_id, '')`

func scanMention(row pgxv5.Row) (common.Mention, error) {
	var m common.Mention
	err := row.Scan(&m.ID, &m.SourceArticleID, &m.Type, &m.RawText, &m.NormalizedText, &m.Language,
		&m.ExtractionConfidence, &m.Offsets.Start, &m.Offsets.End, &m.NodeID)
	return m, err
}

func collectMentions(rows pgxv5.Rows) ([]common.Mention, error) {
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Mention, error) {
		return scanMention(row)
	})
}

func (s *Storage) AppendMention(ctx context.Context, m common.Mention) (bool, error) {
	tag, err := s.conn.Exec(ctx, `
INSERT INTO mentions (id, source_article_id, type, raw_text, normalized_text, language,
                      extraction_confidence, start_offset, end_offset, node_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING`,
		m.ID, m.SourceArticleID, m.Type, m.RawText, m.NormalizedText, m.Language,
		m.ExtractionConfidence, m.Offsets.Start, m.Offsets.End, nullString(m.NodeID))
	if err != nil {
		return false, translate(err, "mention", m.ID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Storage) GetMention(ctx context.Context, id string) (common.Mention, error) {
	m, err := scanMention(s.conn.QueryRow(ctx, `SELECT `+mentionColumns+` FROM mentions WHERE id = $1`, id))
	return m, translate(err, "mention", id)
}

func (s *Storage) UpdateMentionText(ctx context.Context, id, rawText, normalizedText string) error {
	tag, err := s.conn.Exec(ctx,
		`UPDATE mentions SET raw_text = $2, normalized_text = $3 WHERE id = $1`, id, rawText, normalizedText)
	if err != nil {
		return translate(err, "mention", id)
	}
	return expectOne(tag, "mention", id)
}

func (s *Storage) SetMentionNode(ctx context.Context, id, nodeID string) error {
	tag, err := s.conn.Exec(ctx, `UPDATE mentions SET node_id = $2 WHERE id = $1`, id, nullString(nodeID))
	if err != nil {
		return translate(err, "mention", id)
	}
	return expectOne(tag, "mention", id)
}

func (s *Storage) ListMentionsByType(ctx context.Context, t common.MentionType) ([]common.Mention, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+mentionColumns+` FROM mentions WHERE type = $1 ORDER BY created_at, id`, t)
	if err != nil {
		return nil, translate(err, "mentions of type", string(t))
	}
	return collectMentions(rows)
}

func (s *Storage) ListMentionsByArticle(ctx context.Context, articleID string) ([]common.Mention, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+mentionColumns+` FROM mentions WHERE source_article_id = $1 ORDER BY start_offset, id`, articleID)
	if err != nil {
		return nil, translate(err, "mentions of article", articleID)
	}
	return collectMentions(rows)
}

const relationColumns = `id, source_article_id, pattern, sentence_text, subject_text, object_text,
coalesce(subject_mention_id, ''), coalesce(object_mention_id, ''), confidence`

func collectRelations(rows pgxv5.Rows) ([]common.RelationMention, error) {
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.RelationMention, error) {
		var r common.RelationMention
		err := row.Scan(&r.ID, &r.SourceArticleID, &r.Pattern, &r.SentenceText, &r.SubjectText, &r.ObjectText,
			&r.SubjectMentionID, &r.ObjectMentionID, &r.Confidence)
		return r, err
	})
}

func (s *Storage) AppendRelation(ctx context.Context, r common.RelationMention) (bool, error) {
	tag, err := s.conn.Exec(ctx, `
INSERT INTO relation_mentions (id, source_article_id, pattern, sentence_text, subject_text, object_text,
                               subject_mention_id, object_mention_id, confidence)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`,
		r.ID, r.SourceArticleID, r.Pattern, r.SentenceText, r.SubjectText, r.ObjectText,
		nullString(r.SubjectMentionID), nullString(r.ObjectMentionID), r.Confidence)
	if err != nil {
		return false, translate(err, "relation", r.ID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Storage) ListRelationsByArticle(ctx context.Context, articleID string) ([]common.RelationMention, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+relationColumns+` FROM relation_mentions WHERE source_article_id = $1 ORDER BY created_at, id`, articleID)
	if err != nil {
		return nil, translate(err, "relations of article", articleID)
	}
	return collectRelations(rows)
}

func (s *Storage) ListRelationsByMention(ctx context.Context, mentionID string) ([]common.RelationMention, error) {
	rows, err := s.conn.Query(ctx, `
SELECT `+relationColumns+`
FROM relation_mentions
WHERE subject_mention_id = $1 OR object_mention_id = $1
ORDER BY created_at, id`, mentionID)
	if err != nil {
		return nil, translate(err, "relations of mention", mentionID)
	}
	return collectRelations(rows)
}
