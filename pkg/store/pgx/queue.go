package pgx

import (
	"context"
	"fmt"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/faro-watch/faro/backend/pkg/common"
	"github.com/faro-watch/faro/backend/pkg/store"
)

const itemColumns = `mention_id, status, issues, duplicate_candidates, identity_match, reviewer_verdict,
coalesce(merged_into, ''), coalesce(decided_by, ''), decided_at, notes, created_at, updated_at`

func scanItem(row pgxv5.Row) (common.ReviewQueueItem, error) {
	var item common.ReviewQueueItem
	var issues, dups, identityMatch, verdict []byte
	if err := row.Scan(&item.MentionID, &item.Status, &issues, &dups, &identityMatch, &verdict,
		&item.MergedInto, &item.DecidedBy, &item.DecidedAt, &item.Notes, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return item, err
	}

	issueList, err := unmarshalNullable[[]string](issues)
	if err != nil {
		return item, err
	}
	if issueList != nil {
		item.Issues = *issueList
	}
	dupList, err := unmarshalNullable[[]common.DuplicateCandidate](dups)
	if err != nil {
		return item, err
	}
	if dupList != nil {
		item.DuplicateCandidates = *dupList
	}
	if item.IdentityMatch, err = unmarshalNullable[common.IdentityMatch](identityMatch); err != nil {
		return item, err
	}
	if item.ReviewerVerdict, err = unmarshalNullable[common.ReviewResult](verdict); err != nil {
		return item, err
	}
	return item, nil
}

type itemArgs struct {
	issues, dups, identityMatch, verdict []byte
}

func encodeItem(item common.ReviewQueueItem) (itemArgs, error) {
	var (
		a   itemArgs
		err error
	)
	if a.issues, err = marshalJSON(nonNilSlice(item.Issues)); err != nil {
		return a, err
	}
	dups := item.DuplicateCandidates
	if dups == nil {
		dups = []common.DuplicateCandidate{}
	}
	if a.dups, err = marshalJSON(dups); err != nil {
		return a, err
	}
	if a.identityMatch, err = marshalNullable(item.IdentityMatch); err != nil {
		return a, err
	}
	if a.verdict, err = marshalNullable(item.ReviewerVerdict); err != nil {
		return a, err
	}
	return a, nil
}

func (s *Storage) CreateItem(ctx context.Context, item common.ReviewQueueItem) error {
	a, err := encodeItem(item)
	if err != nil {
		return err
	}
	tag, err := s.conn.Exec(ctx, `
INSERT INTO review_queue (mention_id, status, issues, duplicate_candidates, identity_match, reviewer_verdict,
                          merged_into, decided_by, decided_at, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (mention_id) DO NOTHING`,
		item.MentionID, item.Status, a.issues, a.dups, a.identityMatch, a.verdict,
		nullString(item.MergedInto), nullString(item.DecidedBy), item.DecidedAt, item.Notes,
		item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return translate(err, "review item", item.MentionID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("review item %s: %w", item.MentionID, store.ErrAlreadyExists)
	}
	return nil
}

func (s *Storage) GetItem(ctx context.Context, mentionID string) (common.ReviewQueueItem, error) {
	item, err := scanItem(s.conn.QueryRow(ctx, `SELECT `+itemColumns+` FROM review_queue WHERE mention_id = $1`, mentionID))
	return item, translate(err, "review item", mentionID)
}

func (s *Storage) ListItems(ctx context.Context, status common.ReviewStatus) ([]common.ReviewQueueItem, error) {
	rows, err := s.conn.Query(ctx, `
SELECT `+itemColumns+`
FROM review_queue
WHERE $1 = '' OR status = $1
ORDER BY created_at, mention_id`, string(status))
	if err != nil {
		return nil, translate(err, "review items", string(status))
	}
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.ReviewQueueItem, error) {
		return scanItem(row)
	})
}

func updateItem(ctx context.Context, tx pgxv5.Tx, item common.ReviewQueueItem) error {
	a, err := encodeItem(item)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
UPDATE review_queue
SET status               = $2,
    issues               = $3,
    duplicate_candidates = $4,
    identity_match       = $5,
    reviewer_verdict     = $6,
    merged_into          = $7,
    decided_by           = $8,
    decided_at           = $9,
    notes                = $10,
    updated_at           = $11
WHERE mention_id = $1`,
		item.MentionID, item.Status, a.issues, a.dups, a.identityMatch, a.verdict,
		nullString(item.MergedInto), nullString(item.DecidedBy), item.DecidedAt, item.Notes, item.UpdatedAt)
	return translate(err, "review item", item.MentionID)
}

// Transition locks the row for the duration of fn, so concurrent curator
// actions and reviewer events on one item are serialised.
func (s *Storage) Transition(ctx context.Context, mentionID string, fn store.TransitionFunc) (common.ReviewQueueItem, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return common.ReviewQueueItem{}, err
	}
	defer tx.Rollback(ctx)

	item, err := scanItem(tx.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM review_queue WHERE mention_id = $1 FOR UPDATE`, mentionID))
	if err != nil {
		return common.ReviewQueueItem{}, translate(err, "review item", mentionID)
	}
	if err := fn(&item); err != nil {
		return common.ReviewQueueItem{}, err
	}
	item.UpdatedAt = time.Now().UTC()
	if err := updateItem(ctx, tx, item); err != nil {
		return common.ReviewQueueItem{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return common.ReviewQueueItem{}, err
	}
	return item, nil
}

// TransitionMany locks all rows in key order to avoid deadlocks between
// overlapping merges, then hands them to fn in the requested order.
func (s *Storage) TransitionMany(ctx context.Context, mentionIDs []string, fn func([]*common.ReviewQueueItem) error) ([]common.ReviewQueueItem, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
SELECT `+itemColumns+`
FROM review_queue
WHERE mention_id = ANY($1)
ORDER BY mention_id
FOR UPDATE`, mentionIDs)
	if err != nil {
		return nil, translate(err, "review items", "batch")
	}
	locked, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.ReviewQueueItem, error) {
		return scanItem(row)
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*common.ReviewQueueItem, len(locked))
	for i := range locked {
		byID[locked[i].MentionID] = &locked[i]
	}
	working := make([]*common.ReviewQueueItem, 0, len(mentionIDs))
	for _, id := range mentionIDs {
		item, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("review item %s: %w", id, store.ErrNotFound)
		}
		working = append(working, item)
	}

	if err := fn(working); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]common.ReviewQueueItem, 0, len(working))
	for _, item := range working {
		item.UpdatedAt = now
		if err := updateItem(ctx, tx, *item); err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}
