package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// ConfigError reports an unusable backend configuration, such as an
// unrecognized engine or mode. Fatal at startup, never raised per message.
type ConfigError struct {
	Field string
	Value string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid database config: %s %q", e.Field, e.Value)
}

// ConnectionError reports an unreachable or invalid connection target.
type ConnectionError struct {
	Engine Engine
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: failed to connect to %q: %v", e.Engine, e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a backend configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsConnectionError reports whether err is a backend connection error.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a uniqueness constraint violation
// from either engine. Driver error types never leak past this package;
// callers use this predicate to resolve create races by re-fetching the
// winning row.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	return false
}
