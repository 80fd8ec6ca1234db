package db

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on conversations.last_interaction for idle sweeps
const sqliteSchemaVersion = 1

// sqliteDB is the embedded engine: one persistent connection, no pooling.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// SQLite supports one writer at a time; the pool is pinned to a single
// connection so writes never race into SQLITE_BUSY.
type sqliteDB struct {
	path string

	mu sync.Mutex // guards conn
	db *sqlx.DB
}

func newSQLite(path string) *sqliteDB {
	return &sqliteDB{path: path}
}

// Connect opens the database file (creating it if absent), applies pragmas
// and the schema, and memoizes the connection. Safe to call repeatedly.
func (s *sqliteDB) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	d, err := sqlx.Open("sqlite3", s.path)
	if err != nil {
		return &ConnectionError{Engine: EngineSQLite, Target: s.path, Err: err}
	}
	if err := d.PingContext(ctx); err != nil {
		d.Close()
		return &ConnectionError{Engine: EngineSQLite, Target: s.path, Err: err}
	}

	// Single writer
	d.SetMaxOpenConns(1)
	d.SetMaxIdleConns(1)

	if err := applySQLitePragmas(ctx, d); err != nil {
		d.Close()
		return &ConnectionError{Engine: EngineSQLite, Target: s.path, Err: err}
	}
	if err := applySQLiteSchema(ctx, d); err != nil {
		d.Close()
		return &ConnectionError{Engine: EngineSQLite, Target: s.path, Err: err}
	}

	s.db = d
	return nil
}

func (s *sqliteDB) live(ctx context.Context) (*sqlx.DB, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db, nil
}

func (s *sqliteDB) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	d, err := s.live(ctx)
	if err != nil {
		return nil, err
	}
	return sqlxQueryer{ext: d}.FetchOne(ctx, query, args...)
}

func (s *sqliteDB) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	d, err := s.live(ctx)
	if err != nil {
		return nil, err
	}
	return sqlxQueryer{ext: d}.FetchAll(ctx, query, args...)
}

func (s *sqliteDB) Execute(ctx context.Context, query string, args ...any) error {
	d, err := s.live(ctx)
	if err != nil {
		return err
	}
	return sqlxQueryer{ext: d}.Execute(ctx, query, args...)
}

func (s *sqliteDB) Transaction(ctx context.Context, fn func(Queryer) error) error {
	d, err := s.live(ctx)
	if err != nil {
		return err
	}
	return runTransaction(ctx, d, fn)
}

// Close releases the connection. Idempotent.
func (s *sqliteDB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func applySQLitePragmas(ctx context.Context, d *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := d.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return nil
}

// applySQLiteSchema creates tables if they don't exist and runs incremental
// migrations keyed off PRAGMA user_version. Idempotent.
func applySQLiteSchema(ctx context.Context, d *sqlx.DB) error {
	if _, err := d.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := d.QueryRowxContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := sqliteMigrateToV1(ctx, d); err != nil {
			return err
		}
	}

	if _, err := d.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// sqliteMigrateToV1 adds the last_interaction index for databases created
// before the idle-sweep command existed. New databases get it from
// schema_sqlite.sql; CREATE INDEX IF NOT EXISTS makes this a no-op there.
func sqliteMigrateToV1(ctx context.Context, d *sqlx.DB) error {
	_, err := d.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_conversations_last_interaction
		ON conversations(last_interaction)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
