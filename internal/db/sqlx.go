package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// sqlxQueryer adapts any sqlx execution context (live pool or open
// transaction) to the Queryer contract. Placeholders are rebound through
// sqlx, so the same `?` query text works against both engines.
type sqlxQueryer struct {
	ext sqlx.ExtContext
}

func (q sqlxQueryer) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	row := q.ext.QueryRowxContext(ctx, q.ext.Rebind(query), args...)
	out := Row{}
	if err := row.MapScan(out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch one: %w", err)
	}
	return out, nil
}

func (q sqlxQueryer) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := q.ext.QueryxContext(ctx, q.ext.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("fetch all: %w", err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		r := Row{}
		if err := rows.MapScan(r); err != nil {
			return nil, fmt.Errorf("fetch all: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch all: %w", err)
	}
	return out, nil
}

func (q sqlxQueryer) Execute(ctx context.Context, query string, args ...any) error {
	if _, err := q.ext.ExecContext(ctx, q.ext.Rebind(query), args...); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	return nil
}

// runTransaction is the shared transaction scope for sqlx-backed adapters.
// Commit on nil, rollback and propagate on error. BeginTxx binds the
// transaction to ctx, so cancellation rolls back as well.
func runTransaction(ctx context.Context, d *sqlx.DB, fn func(Queryer) error) error {
	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(sqlxQueryer{ext: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
