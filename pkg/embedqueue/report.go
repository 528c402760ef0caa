package embedqueue

import (
	"context"

	"github.com/mercadoq/embedqueue/internal/report"
)

// Stats computes the current aggregated job, worker and lock counters.
func (b *Backend) Stats(ctx context.Context) (Stats, error) {
	return report.Stats(ctx, b.store)
}

// History returns 24 hourly buckets for the trailing day, oldest first.
// Hours with no activity still appear, with zero counts.
func (b *Backend) History(ctx context.Context) (History, error) {
	buckets, err := report.History(ctx, b.store)
	return History(buckets), err
}
