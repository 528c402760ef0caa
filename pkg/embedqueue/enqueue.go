package embedqueue

import (
	"context"

	"github.com/mercadoq/embedqueue/internal/codec"
	"github.com/mercadoq/embedqueue/internal/dispatch"
)

// Enqueue inserts a new inactive job for task with args and returns its
// id.
func (b *Backend) Enqueue(ctx context.Context, task string, args codec.Value, opts ...EnqueueOption) (int64, error) {
	var o dispatch.EnqueueOptions
	for _, opt := range opts {
		opt(&o)
	}
	return dispatch.Enqueue(ctx, b.store, task, args, o)
}
