// Package pgx implements store.Store on PostgreSQL.
package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/faro-watch/faro/backend/pkg/store"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Storage implements store.Store over a pgx pool or connection.
type Storage struct {
	conn pgxIConn
}

var _ store.Store = (*Storage)(nil)

// NewStorage wraps an existing pool or connection.
func NewStorage(conn pgxIConn) *Storage {
	return &Storage{conn: conn}
}

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// translate maps driver errors onto the store sentinels.
func translate(err error, kind, id string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, pgxv5.ErrNoRows):
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	case pgCode(err) == codeUniqueViolation:
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrConflict)
	case pgCode(err) == codeForeignKeyViolation:
		return fmt.Errorf("%s %s references a missing row: %w", kind, id, store.ErrNotFound)
	default:
		return fmt.Errorf("%s %s: %w", kind, id, err)
	}
}

func expectOne(tag pgconn.CommandTag, kind, id string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

func marshalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	return data, nil
}

// marshalNullable encodes a nil pointer as SQL NULL.
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return marshalJSON(v)
}

func unmarshalNullable[T any](data []byte) (*T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %T: %w", v, err)
	}
	return &v, nil
}

func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
