package embedqueue

import (
	"context"
	"time"

	"github.com/mercadoq/embedqueue/internal/lock"
	"github.com/mercadoq/embedqueue/internal/metrics"
)

// Lock acquires one lease named name for duration, provided fewer than
// the configured limit (WithLimit, default lock.DefaultLimit)
// non-expired leases with that name currently exist. A duration <= 0
// checks feasibility only and never creates a lease.
func (b *Backend) Lock(ctx context.Context, name string, duration time.Duration, opts ...LockOption) (bool, error) {
	o := defaultLockOptions()
	for _, opt := range opts {
		opt(&o)
	}

	acquired, err := lock.Lock(ctx, b.store, name, duration, o.limit)
	if err != nil {
		return false, err
	}
	if !acquired {
		metrics.RecordLockContended()
	}
	return acquired, nil
}

// Unlock releases one non-expired lease named name, if any exist.
func (b *Backend) Unlock(ctx context.Context, name string) (bool, error) {
	return lock.Unlock(ctx, b.store, name)
}

// WithLock acquires name for duration under the given options, runs fn
// if acquired, and releases the lease on every exit path including
// when fn returns an error. It returns false if the lock could not be
// acquired and fn was not run.
func (b *Backend) WithLock(ctx context.Context, name string, duration time.Duration, fn func() error, opts ...LockOption) (bool, error) {
	o := defaultLockOptions()
	for _, opt := range opts {
		opt(&o)
	}

	acquired, err := lock.WithLock(ctx, b.store, name, duration, o.limit, fn)
	if err != nil {
		return acquired, err
	}
	if !acquired {
		metrics.RecordLockContended()
	}
	return acquired, nil
}
