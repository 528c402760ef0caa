// Package lock implements a named counted lease manager: up to limit
// concurrent holders of a name, each lease expiring on its own timer.
// It is built on the same store.WithExclusiveTx primitive the
// dispatcher uses so that the lease count for a name never exceeds the
// limit that granted it.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mercadoq/embedqueue/internal/store"
)

// DefaultLimit is the limit applied when a caller doesn't specify one.
const DefaultLimit = 1

// Lock acquires one lease named name for duration, provided fewer than
// limit non-expired leases with that name currently exist. A duration
// <= 0 checks feasibility only and never inserts a row. Returns
// whether the lock was acquired.
func Lock(ctx context.Context, s *store.Store, name string, duration time.Duration, limit int) (bool, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	if _, err := s.DB().ExecContext(ctx, `DELETE FROM locks WHERE expires <= ?`, store.FormatTime(store.Now())); err != nil {
		return false, fmt.Errorf("lock: prune expired locks: %w", err)
	}

	var acquired bool
	err := s.WithExclusiveTx(ctx, func(tx *store.ExclusiveTx) error {
		now := store.Now()

		var count int
		row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM locks WHERE name = ? AND expires > ?`, name, store.FormatTime(now))
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("lock: count leases for %q: %w", name, err)
		}
		if count >= limit {
			acquired = false
			return nil
		}
		acquired = true

		if duration <= 0 {
			return nil
		}

		_, err := tx.ExecContext(ctx, `INSERT INTO locks (name, expires) VALUES (?, ?)`,
			name, store.FormatTime(now.Add(duration)))
		if err != nil {
			return fmt.Errorf("lock: insert lease for %q: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// Unlock deletes exactly one non-expired lock with that name,
// preferring the earliest-expiring, and reports whether a row was
// deleted.
func Unlock(ctx context.Context, s *store.Store, name string) (bool, error) {
	var deleted bool
	err := s.WithExclusiveTx(ctx, func(tx *store.ExclusiveTx) error {
		now := store.FormatTime(store.Now())

		var id int64
		row := tx.QueryRowContext(ctx, `
			SELECT id FROM locks WHERE name = ? AND expires > ?
			ORDER BY expires ASC LIMIT 1`, name, now)
		err := row.Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			deleted = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock: find lease for %q: %w", name, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM locks WHERE id = ?`, id); err != nil {
			return fmt.Errorf("lock: delete lease %d: %w", id, err)
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// WithLock acquires name for duration with the given limit, runs fn if
// acquired, and releases the lease on every exit path, including when
// fn returns an error. Returns false if the lock could not be acquired
// and fn was not run.
func WithLock(ctx context.Context, s *store.Store, name string, duration time.Duration, limit int, fn func() error) (bool, error) {
	acquired, err := Lock(ctx, s, name, duration, limit)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer Unlock(ctx, s, name)

	if err := fn(); err != nil {
		return true, err
	}
	return true, nil
}
