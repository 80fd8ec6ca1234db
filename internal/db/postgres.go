package db

import (
	"context"
	_ "embed"
	"sync"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema_postgres.sql
var postgresSchema string

// postgresDB is the networked engine in blocking mode: a database/sql pool
// over the pgx stdlib driver. The pool is bounded at PoolSize+MaxOverflow;
// when every connection is checked out, callers block until a slot frees
// rather than failing.
type postgresDB struct {
	dsn   string
	limit int
	idle  int

	mu sync.Mutex
	db *sqlx.DB
}

func newPostgres(cfg Config) *postgresDB {
	size := cfg.PoolSize
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &postgresDB{dsn: cfg.Target, limit: cfg.poolLimit(), idle: size}
}

// Connect establishes the pool, verifies reachability, and applies the
// schema. Memoized.
func (p *postgresDB) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil {
		return nil
	}

	d, err := sqlx.Open("pgx", p.dsn)
	if err != nil {
		return &ConnectionError{Engine: EnginePostgres, Target: p.dsn, Err: err}
	}
	if err := d.PingContext(ctx); err != nil {
		d.Close()
		return &ConnectionError{Engine: EnginePostgres, Target: p.dsn, Err: err}
	}

	d.SetMaxOpenConns(p.limit)
	d.SetMaxIdleConns(p.idle)

	if _, err := d.ExecContext(ctx, postgresSchema); err != nil {
		d.Close()
		return &ConnectionError{Engine: EnginePostgres, Target: p.dsn, Err: err}
	}

	p.db = d
	return nil
}

func (p *postgresDB) live(ctx context.Context) (*sqlx.DB, error) {
	if err := p.Connect(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db, nil
}

func (p *postgresDB) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	d, err := p.live(ctx)
	if err != nil {
		return nil, err
	}
	return sqlxQueryer{ext: d}.FetchOne(ctx, query, args...)
}

func (p *postgresDB) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	d, err := p.live(ctx)
	if err != nil {
		return nil, err
	}
	return sqlxQueryer{ext: d}.FetchAll(ctx, query, args...)
}

func (p *postgresDB) Execute(ctx context.Context, query string, args ...any) error {
	d, err := p.live(ctx)
	if err != nil {
		return err
	}
	return sqlxQueryer{ext: d}.Execute(ctx, query, args...)
}

func (p *postgresDB) Transaction(ctx context.Context, fn func(Queryer) error) error {
	d, err := p.live(ctx)
	if err != nil {
		return err
	}
	return runTransaction(ctx, d, fn)
}

// Close releases the pool. Idempotent.
func (p *postgresDB) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}
