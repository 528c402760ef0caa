package embedqueue

import (
	"context"

	"github.com/mercadoq/embedqueue/internal/report"
)

// ListJobs returns a page of jobs ordered descending by id, plus the
// total count matching filter before pagination.
func (b *Backend) ListJobs(ctx context.Context, offset, limit int, filter JobFilter) ([]Job, int, error) {
	jobs, total, err := report.ListJobs(ctx, b.store, offset, limit, filter)
	return jobs, int(total), err
}

// ListWorkers returns a page of workers ordered descending by id, plus
// the total count matching filter.
func (b *Backend) ListWorkers(ctx context.Context, offset, limit int, filter WorkerFilter) ([]Worker, int, error) {
	workers, total, err := report.ListWorkers(ctx, b.store, offset, limit, filter)
	return workers, int(total), err
}

// ListLocks returns a page of locks ordered descending by id, plus the
// total count matching filter.
func (b *Backend) ListLocks(ctx context.Context, offset, limit int, filter LockFilter) ([]Lock, int, error) {
	locks, total, err := report.ListLocks(ctx, b.store, offset, limit, filter)
	return locks, int(total), err
}
