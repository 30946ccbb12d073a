// Package db reads aggregate usage statistics out of a chat
// application's database. The same logical queries run against
// either a SQLite file or a PostgreSQL server; Dialect selects
// which SQL variant the builder emits.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL syntax variant of the active backend.
type Dialect int

const (
	// DialectSQLite targets the JSON1 functions of a SQLite
	// row store (json_extract, json_each).
	DialectSQLite Dialect = iota
	// DialectPostgres targets native jsonb operators
	// (->, ->>, jsonb_array_elements).
	DialectPostgres
)

// String returns the dialect name for logs.
func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// Store is the single process-wide handle to the chat database.
// It is read-only: a pooled connection for PostgreSQL, a
// read-only handle for SQLite. Safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect Dialect

	// now is overridden in tests to pin trailing-window
	// cutoffs. Nil means time.Now.
	now func() time.Time
}

// makeSQLiteDSN builds a read-only SQLite connection string with
// shared pragmas.
func makeSQLiteDSN(path string) string {
	params := url.Values{}
	params.Set("mode", "ro")
	params.Set("_busy_timeout", "5000")
	params.Set("_mmap_size", "268435456")
	params.Set("_cache_size", "-64000")
	return "file:" + path + "?" + params.Encode()
}

// sqlitePath strips the sqlite:// or sqlite:/// prefix from a DSN.
func sqlitePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "sqlite://")
	return strings.TrimPrefix(p, "/")
}

// Open connects to the database named by dsn and resolves its
// dialect from the URL scheme. Supported schemes: sqlite://,
// sqlite:///, postgres://, postgresql://.
func Open(dsn string) (*Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"),
		strings.HasPrefix(dsn, "postgresql://"):
		pool, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening postgres pool: %w", err)
		}
		pool.SetMaxOpenConns(10)
		if err := pool.Ping(); err != nil {
			pool.Close()
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return &Store{db: pool, dialect: DialectPostgres}, nil

	case strings.HasPrefix(dsn, "sqlite://"):
		path := sqlitePath(dsn)
		handle, err := sql.Open("sqlite3", makeSQLiteDSN(path))
		if err != nil {
			return nil, fmt.Errorf("opening sqlite db: %w", err)
		}
		handle.SetMaxOpenConns(4)
		if err := handle.Ping(); err != nil {
			handle.Close()
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		return &Store{db: handle, dialect: DialectSQLite}, nil
	}
	return nil, fmt.Errorf(
		"unsupported database URL %q: only sqlite:// and postgres:// are supported",
		dsn,
	)
}

// Dialect returns the active backend's SQL dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}
