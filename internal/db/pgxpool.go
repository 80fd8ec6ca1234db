package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
)

// pgxPoolDB is the networked engine in non-blocking mode: pgx's native pool.
// Acquire suspends the calling goroutine on ctx until a slot frees; slots
// are released on every exit path, including cancellation mid-wait.
type pgxPoolDB struct {
	dsn   string
	limit int32

	mu   sync.Mutex
	pool *pgxpool.Pool
}

func newPgxPool(cfg Config) *pgxPoolDB {
	return &pgxPoolDB{dsn: cfg.Target, limit: int32(cfg.poolLimit())}
}

// Connect establishes the pool, verifies reachability, and applies the
// schema. Memoized.
func (p *pgxPoolDB) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool != nil {
		return nil
	}

	cfg, err := pgxpool.ParseConfig(p.dsn)
	if err != nil {
		return &ConnectionError{Engine: EnginePostgres, Target: p.dsn, Err: err}
	}
	cfg.MaxConns = p.limit

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return &ConnectionError{Engine: EnginePostgres, Target: p.dsn, Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return &ConnectionError{Engine: EnginePostgres, Target: p.dsn, Err: err}
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return &ConnectionError{Engine: EnginePostgres, Target: p.dsn, Err: err}
	}

	p.pool = pool
	return nil
}

func (p *pgxPoolDB) live(ctx context.Context) (*pgxpool.Pool, error) {
	if err := p.Connect(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pool, nil
}

func (p *pgxPoolDB) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	pool, err := p.live(ctx)
	if err != nil {
		return nil, err
	}
	return pgxQueryer{q: pool}.FetchOne(ctx, query, args...)
}

func (p *pgxPoolDB) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	pool, err := p.live(ctx)
	if err != nil {
		return nil, err
	}
	return pgxQueryer{q: pool}.FetchAll(ctx, query, args...)
}

func (p *pgxPoolDB) Execute(ctx context.Context, query string, args ...any) error {
	pool, err := p.live(ctx)
	if err != nil {
		return err
	}
	return pgxQueryer{q: pool}.Execute(ctx, query, args...)
}

func (p *pgxPoolDB) Transaction(ctx context.Context, fn func(Queryer) error) error {
	pool, err := p.live(ctx)
	if err != nil {
		return err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return &ConnectionError{Engine: EnginePostgres, Target: p.dsn, Err: err}
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(pgxQueryer{q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close releases the pool. Idempotent.
func (p *pgxPoolDB) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return nil
}

// pgxQueryer adapts a pgx pool or transaction to the Queryer contract.
type pgxQueryer struct {
	q interface {
		Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	}
}

func (q pgxQueryer) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	rows, err := q.q.Query(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return nil, fmt.Errorf("fetch one: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("fetch one: %w", err)
		}
		return nil, nil
	}
	out, err := scanPgxRow(rows)
	if err != nil {
		return nil, fmt.Errorf("fetch one: %w", err)
	}
	return out, nil
}

func (q pgxQueryer) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := q.q.Query(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return nil, fmt.Errorf("fetch all: %w", err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		r, err := scanPgxRow(rows)
		if err != nil {
			return nil, fmt.Errorf("fetch all: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch all: %w", err)
	}
	return out, nil
}

func (q pgxQueryer) Execute(ctx context.Context, query string, args ...any) error {
	// Exec via Query keeps the adapter to one interface; pgx drains the
	// result the same way.
	rows, err := q.q.Query(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	return nil
}

// scanPgxRow converts the current pgx row into a column-keyed map.
func scanPgxRow(rows pgx.Rows) (Row, error) {
	values, err := rows.Values()
	if err != nil {
		return nil, err
	}
	fields := rows.FieldDescriptions()
	out := Row{}
	for i, fd := range fields {
		out[fd.Name] = values[i]
	}
	return out, nil
}
