package pgx

import (
	"context"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/faro-watch/faro/backend/pkg/common"
)

const articleColumns = `id, outlet, title, url, language, published_at, raw_text, processed_at`

func scanArticle(row pgxv5.Row) (common.Article, error) {
	var a common.Article
	err := row.Scan(&a.ID, &a.Outlet, &a.Title, &a.URL, &a.Language, &a.PublishedAt, &a.RawText, &a.ProcessedAt)
	return a, err
}

func (s *Storage) SaveArticle(ctx context.Context, a common.Article) error {
	_, err := s.conn.Exec(ctx, `
INSERT INTO articles (id, outlet, title, url, language, published_at, raw_text)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
SET outlet       = EXCLUDED.outlet,
    title        = EXCLUDED.title,
    url          = EXCLUDED.url,
    language     = EXCLUDED.language,
    published_at = EXCLUDED.published_at,
    raw_text     = EXCLUDED.raw_text`,
		a.ID, a.Outlet, a.Title, a.URL, a.Language, a.PublishedAt, a.RawText)
	return translate(err, "article", a.ID)
}

func (s *Storage) GetArticle(ctx context.Context, id string) (common.Article, error) {
	a, err := scanArticle(s.conn.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1`, id))
	return a, translate(err, "article", id)
}

func (s *Storage) ListUnprocessed(ctx context.Context, limit int) ([]common.Article, error) {
	rows, err := s.conn.Query(ctx, `
SELECT `+articleColumns+`
FROM articles
WHERE processed_at IS NULL
ORDER BY created_at, id
LIMIT $1`, limitArg(limit))
	if err != nil {
		return nil, translate(err, "articles", "unprocessed")
	}
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Article, error) {
		return scanArticle(row)
	})
}

func (s *Storage) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	tag, err := s.conn.Exec(ctx, `UPDATE articles SET processed_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return translate(err, "article", id)
	}
	return expectOne(tag, "article", id)
}
