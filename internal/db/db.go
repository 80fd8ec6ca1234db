// Package db provides the persistence backend for stagehand.
//
// Two storage engines are supported behind one contract: an embedded SQLite
// database (single persistent connection) and a networked PostgreSQL
// database (bounded connection pool with overflow). Each engine is available
// in a blocking and a non-blocking execution mode; callers never branch on
// engine or mode, they go through Open and the Database interface.
//
// Queries are written with `?` placeholders. Adapters rebind placeholders to
// their engine's native form, so higher layers stay dialect-free.
package db

import "context"

// Row is a single result row keyed by column name.
type Row = map[string]any

// Engine identifies a concrete storage engine.
type Engine string

const (
	// EngineSQLite is the embedded single-connection engine.
	EngineSQLite Engine = "sqlite"

	// EnginePostgres is the networked pooled engine.
	EnginePostgres Engine = "postgres"
)

// Mode selects the execution discipline for database operations.
type Mode string

const (
	// ModeBlocking runs operations on the caller's goroutine. The embedded
	// engine serializes on its single connection; the networked engine
	// checks connections out of a database/sql pool.
	ModeBlocking Mode = "blocking"

	// ModeNonBlocking suspends the caller on its context while the
	// operation is in flight. The embedded engine dispatches to a worker
	// goroutine that owns the connection; the networked engine acquires
	// from a context-aware native pool.
	ModeNonBlocking Mode = "nonblocking"
)

// Config describes a backend to open.
type Config struct {
	// Engine is the storage engine ("sqlite" | "postgres").
	Engine Engine

	// Target is the connection target: a file path for sqlite, a DSN for
	// postgres.
	Target string

	// Mode is the execution discipline ("blocking" | "nonblocking").
	Mode Mode

	// PoolSize bounds the networked engine's connection pool.
	// Ignored by the embedded engine. Defaults to 5.
	PoolSize int

	// MaxOverflow allows the networked pool to grow past PoolSize under
	// load. Defaults to 10.
	MaxOverflow int
}

// DefaultPoolSize and DefaultMaxOverflow size the networked pool when the
// corresponding Config fields are zero.
const (
	DefaultPoolSize    = 5
	DefaultMaxOverflow = 10
)

func (c Config) poolLimit() int {
	size := c.PoolSize
	if size <= 0 {
		size = DefaultPoolSize
	}
	overflow := c.MaxOverflow
	if overflow < 0 {
		overflow = DefaultMaxOverflow
	}
	return size + overflow
}

// Queryer is the read/write surface shared by a live connection and a
// transaction scope.
type Queryer interface {
	// FetchOne returns the first row of the query, or (nil, nil) when no
	// row matches. A missing row is a result, not an error.
	FetchOne(ctx context.Context, query string, args ...any) (Row, error)

	// FetchAll returns all rows of the query in result order. An empty
	// result is an empty slice, never nil.
	FetchAll(ctx context.Context, query string, args ...any) ([]Row, error)

	// Execute runs a mutating statement.
	Execute(ctx context.Context, query string, args ...any) error
}

// Database is the uniform backend contract. Implementations are selected by
// Open; no other component branches on engine or mode.
type Database interface {
	Queryer

	// Connect lazily establishes the underlying connection or pool and
	// applies the engine's schema. Memoized: repeat calls are cheap.
	// Returns a *ConnectionError when the target is unreachable.
	Connect(ctx context.Context) error

	// Transaction runs fn inside a transaction scope. The transaction
	// commits when fn returns nil, and rolls back (and propagates the
	// error) when fn returns an error. The underlying connection or pool
	// slot is released on every exit path, including cancellation.
	Transaction(ctx context.Context, fn func(Queryer) error) error

	// Close releases the connection or pool. Idempotent.
	Close() error
}
