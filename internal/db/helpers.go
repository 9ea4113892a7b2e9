package db

import (
	"context"
	"database/sql"
	"errors"
)

// QueryRower is satisfied by *sql.DB and *sql.Tx.
type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NullIfEmpty helps store optional strings as NULL so unique indexes ignore them.
func NullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// HasColumn reports whether table.column exists in the current MySQL schema.
func HasColumn(ctx context.Context, q QueryRower, table, column string) (bool, error) {
	return probe(ctx, q, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		  AND table_name = ?
		  AND column_name = ?
		LIMIT 1
	`, table, column)
}

// HasIndex reports whether an index named index exists on table.
func HasIndex(ctx context.Context, q QueryRower, table, index string) (bool, error) {
	return probe(ctx, q, `
		SELECT index_name
		FROM information_schema.statistics
		WHERE table_schema = DATABASE()
		  AND table_name = ?
		  AND index_name = ?
		LIMIT 1
	`, table, index)
}

func probe(ctx context.Context, q QueryRower, query string, args ...any) (bool, error) {
	var name sql.NullString
	err := q.QueryRowContext(ctx, query, args...).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return name.Valid && name.String != "", nil
}
