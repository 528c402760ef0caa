// Package schema owns the relational layout and the forward-only
// migrations that bring a fresh or older database file up to date on
// first use.
package schema

import (
	"database/sql"
	"fmt"
)

// migration is one forward step. Migrations are numbered 1..N and
// applied in order, each inside its own transaction; a migration never
// changes once released, it is only ever appended to.
type migration struct {
	version int
	name    string
	up      []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "jobs",
		up: []string{
			`CREATE TABLE jobs (
				id        INTEGER PRIMARY KEY AUTOINCREMENT,
				task      TEXT NOT NULL,
				args      TEXT NOT NULL DEFAULT '',
				queue     TEXT NOT NULL DEFAULT 'default',
				priority  INTEGER NOT NULL DEFAULT 0,
				state     TEXT NOT NULL DEFAULT 'inactive',
				attempts  INTEGER NOT NULL DEFAULT 1,
				retries   INTEGER NOT NULL DEFAULT 0,
				delayed   TEXT NOT NULL,
				expires   TEXT,
				lax       INTEGER NOT NULL DEFAULT 0,
				parents   TEXT NOT NULL DEFAULT '[]',
				notes     TEXT NOT NULL DEFAULT '{}',
				result    TEXT NOT NULL DEFAULT '',
				worker    INTEGER,
				created   TEXT NOT NULL,
				started   TEXT,
				retried   TEXT,
				finished  TEXT
			)`,
			`CREATE INDEX idx_jobs_state_queue ON jobs(state, queue)`,
			`CREATE INDEX idx_jobs_delayed ON jobs(delayed)`,
			`CREATE INDEX idx_jobs_finished ON jobs(finished)`,
		},
	},
	{
		version: 2,
		name:    "workers",
		up: []string{
			`CREATE TABLE workers (
				id       INTEGER PRIMARY KEY AUTOINCREMENT,
				host     TEXT NOT NULL DEFAULT '',
				pid      INTEGER NOT NULL DEFAULT 0,
				status   TEXT NOT NULL DEFAULT '{}',
				inbox    TEXT NOT NULL DEFAULT '[]',
				started  TEXT NOT NULL,
				notified TEXT NOT NULL
			)`,
			`CREATE INDEX idx_workers_notified ON workers(notified)`,
		},
	},
	{
		version: 3,
		name:    "locks",
		up: []string{
			`CREATE TABLE locks (
				id      INTEGER PRIMARY KEY AUTOINCREMENT,
				name    TEXT NOT NULL,
				expires TEXT NOT NULL
			)`,
			`CREATE INDEX idx_locks_name_expires ON locks(name, expires)`,
		},
	},
}

// Migrate applies every migration not yet recorded in
// schema_migrations, in version order, each inside its own transaction.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name    TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("schema: create schema_migrations: %w", err)
	}

	applied := map[int]bool{}
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("schema: read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("schema: scan schema_migrations: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("schema: iterate schema_migrations: %w", err)
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("schema: begin migration %d: %w", m.version, err)
		}

		for _, stmt := range m.up {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("schema: apply migration %d (%s): %w", m.version, m.name, err)
			}
		}

		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("schema: record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("schema: commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

// Version returns the highest migration version known to this build,
// independent of what's been applied to any particular database.
func Version() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].version
}
