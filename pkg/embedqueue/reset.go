package embedqueue

import (
	"context"
	"fmt"
)

// ResetOptions selects what Reset clears.
type ResetOptions struct {
	// All truncates jobs, workers and locks and resets their id
	// sequences back to zero.
	All bool
	// Locks truncates only the locks table, leaving jobs and workers
	// untouched.
	Locks bool
}

// Reset clears backend state per opts. It's meant for tests and local
// development against a database no other process is using; it takes
// no exclusive transaction of its own.
func (b *Backend) Reset(ctx context.Context, opts ResetOptions) error {
	if opts.All {
		for _, table := range []string{"jobs", "workers", "locks"} {
			if _, err := b.store.DB().ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("embedqueue: reset %s: %w", table, err)
			}
		}
		if _, err := b.store.DB().ExecContext(ctx,
			`DELETE FROM sqlite_sequence WHERE name IN ('jobs', 'workers', 'locks')`); err != nil {
			return fmt.Errorf("embedqueue: reset id sequences: %w", err)
		}
		return nil
	}

	if opts.Locks {
		if _, err := b.store.DB().ExecContext(ctx, `DELETE FROM locks`); err != nil {
			return fmt.Errorf("embedqueue: reset locks: %w", err)
		}
	}
	return nil
}
