package embedqueue

import (
	"context"
	"time"

	"github.com/mercadoq/embedqueue/internal/dispatch"
	"github.com/mercadoq/embedqueue/internal/store"
)

// Dequeue blocks up to wait for a job eligible to run under workerID,
// polling at the interval configured at Open. It returns (nil, nil) if
// nothing became eligible before the deadline.
func (b *Backend) Dequeue(ctx context.Context, workerID int64, wait time.Duration, opts ...DequeueOption) (*Job, error) {
	var o dispatch.DequeueOptions
	for _, opt := range opts {
		opt(&o)
	}

	d, err := dispatch.Dequeue(ctx, b.store, workerID, wait, b.cfg.Dispatch.DequeueInterval, o)
	if err != nil || d == nil {
		return nil, err
	}
	return store.GetJob(ctx, b.store.DB(), d.ID)
}
