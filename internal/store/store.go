// Package store owns the single *sql.DB connection to the embedded
// database file and the small set of primitives every other component
// builds on: opening the file, running outstanding migrations,
// formatting/parsing the fixed-width textual timestamps every table
// uses, and running a block inside an exclusive transaction for the
// callers that need one (dispatcher selection, lock counting).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mercadoq/embedqueue/internal/schema"
)

// TimeLayout is the fixed-width textual timestamp format used for every
// stored instant. Fixed width (always 9 fractional digits, always UTC)
// is what lets the underlying store compare timestamps lexicographically
// and still compute offsets in seconds.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Store wraps the database connection shared by every backend
// component. Each process should open its own Store against the
// database file rather than share one across processes.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database file at path and
// brings it up to the current schema version.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	// A single writer connection avoids SQLITE_BUSY storms between this
	// process's own goroutines; cross-process contention is handled by
	// SQLite's own locking plus the busy_timeout pragma above.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA foreign_keys = ON`,
		`PRAGMA synchronous = NORMAL`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: set %s: %w", pragma, err)
		}
	}

	if err := schema.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying *sql.DB for components that need to run
// their own queries directly.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Now returns the current instant truncated to the precision TimeLayout
// preserves, so round-tripping a value through FormatTime/ParseTime is
// lossless.
func Now() time.Time {
	return time.Now().UTC()
}

// FormatTime renders t in the fixed-width textual form stored in the
// database.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a value previously produced by FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// Queryer is the common subset of *sql.DB, *sql.Conn and *sql.Tx that
// the helpers in jobs.go, internal/registry and internal/complete need.
// It lets those helpers run unchanged whether they're called against the plain
// pool (reporter/reads) or against an ExclusiveTx (dispatcher/lock
// writes).
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ExclusiveTx is the subset of *sql.Tx components run their queries
// against inside WithExclusiveTx.
type ExclusiveTx struct {
	conn *sql.Conn
}

// ExecContext runs a statement on the exclusive connection.
func (t *ExclusiveTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.conn.ExecContext(ctx, query, args...)
}

// QueryContext runs a query on the exclusive connection.
func (t *ExclusiveTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return t.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query on the exclusive connection.
func (t *ExclusiveTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.conn.QueryRowContext(ctx, query, args...)
}

// WithExclusiveTx runs fn inside a transaction that holds SQLite's
// write lock for its full duration, so dispatch claims and lock counts
// stay atomic even across separate OS processes. BEGIN IMMEDIATE grabs
// the cross-process write lock up front instead of on first write,
// closing the read-then-write race window a plain BEGIN leaves open
// between the candidate read and the claiming write.
func (s *Store) WithExclusiveTx(ctx context.Context, fn func(tx *ExclusiveTx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("store: acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return fmt.Errorf("store: begin immediate: %w", err)
	}

	etx := &ExclusiveTx{conn: conn}
	if err := fn(etx); err != nil {
		conn.ExecContext(ctx, `ROLLBACK`)
		return err
	}

	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		conn.ExecContext(ctx, `ROLLBACK`)
		return fmt.Errorf("store: commit: %w", err)
	}

	return nil
}
