package pgx

import (
	"context"
	"fmt"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/store"
)

const jobColumns = `id, article_id, status, attempts, last_error, created_at, updated_at`

func scanJob(row pgxv5.Row) (common.Job, error) {
	var j common.Job
	err := row.Scan(&j.ID, &j.ArticleID, &j.Status, &j.Attempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	return j, err
}

func (s *Storage) CreateJob(ctx context.Context, j common.Job) error {
	tag, err := s.conn.Exec(ctx, `
INSERT INTO jobs (id, article_id, status, attempts, last_error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`,
		j.ID, j.ArticleID, j.Status, j.Attempts, j.LastError, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return translate(err, "job", j.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", j.ID, store.ErrAlreadyExists)
	}
	return nil
}

func (s *Storage) GetJob(ctx context.Context, id string) (common.Job, error) {
	j, err := scanJob(s.conn.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	return j, translate(err, "job", id)
}

func (s *Storage) UpdateJob(ctx context.Context, id string, fn func(*common.Job)) (common.Job, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return common.Job{}, err
	}
	defer tx.Rollback(ctx)

	j, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return common.Job{}, translate(err, "job", id)
	}
	fn(&j)
	j.UpdatedAt = time.Now().UTC()

	if _, err := tx.Exec(ctx, `
UPDATE jobs SET status = $2, attempts = $3, last_error = $4, updated_at = $5 WHERE id = $1`,
		j.ID, j.Status, j.Attempts, j.LastError, j.UpdatedAt); err != nil {
		return common.Job{}, translate(err, "job", id)
	}
	if err := tx.Commit(ctx); err != nil {
		return common.Job{}, err
	}
	return j, nil
}
