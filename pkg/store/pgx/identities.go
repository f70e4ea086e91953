package pgx

import (
	"context"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/faro-watch/faro/backend/pkg/common"
)

// ReplaceIdentities swaps the whole registry snapshot in one transaction.
// Registry order is kept in the ordinal column.
func (s *Storage) ReplaceIdentities(ctx context.Context, identities []common.Identity) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM identities`); err != nil {
		return translate(err, "identities", "all")
	}

	batch := &pgxv5.Batch{}
	for i, id := range identities {
		batch.Queue(`
INSERT INTO identities (id, ordinal, canonical_name, aliases, entity_type, sanction_programs,
                        source_authority, verified)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id.ID, i, id.CanonicalName, nonNilSlice(id.Aliases), id.EntityType,
			nonNilSlice(id.SanctionPrograms), id.SourceAuthority, id.Verified)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return translate(err, "identities", "batch")
		}
	}
	return tx.Commit(ctx)
}

func (s *Storage) ListIdentities(ctx context.Context) ([]common.Identity, error) {
	rows, err := s.conn.Query(ctx, `
SELECT id, canonical_name, aliases, entity_type, sanction_programs, source_authority, verified
FROM identities
ORDER BY ordinal`)
	if err != nil {
		return nil, translate(err, "identities", "all")
	}
	return pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Identity, error) {
		var id common.Identity
		err := row.Scan(&id.ID, &id.CanonicalName, &id.Aliases, &id.EntityType, &id.SanctionPrograms,
			&id.SourceAuthority, &id.Verified)
		return id, err
	})
}
