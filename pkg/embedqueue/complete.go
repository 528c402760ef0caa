package embedqueue

import (
	"context"
	"errors"

	"github.com/mercadoq/embedqueue/internal/codec"
	"github.com/mercadoq/embedqueue/internal/complete"
	"github.com/mercadoq/embedqueue/internal/metrics"
	"github.com/mercadoq/embedqueue/internal/store"
)

// FinishJob marks job id finished and stores result, provided it is
// still active with the given retries count. ok is false with a nil
// error if the (id, retries) pair no longer matches the row.
func (b *Backend) FinishJob(ctx context.Context, id int64, retries int, result codec.Value) (ok bool, err error) {
	j, err := store.GetJob(ctx, b.store.DB(), id)
	if err != nil {
		return false, err
	}

	if err := complete.FinishJob(ctx, b.store.DB(), id, int64(retries), result); err != nil {
		if errors.Is(err, complete.ErrStale) {
			return false, nil
		}
		return false, err
	}

	metrics.RecordFinish(j.Queue, j.Task, activeSeconds(j))
	return true, nil
}

// FailJob marks job id failed and stores result, provided it is still
// active with the given retries count. If the job still has attempts
// left it is rescheduled as part of the same call, per
// internal/complete's auto-retry. ok is false with a nil error if the
// (id, retries) pair no longer matches the row.
func (b *Backend) FailJob(ctx context.Context, id int64, retries int, result codec.Value) (ok bool, err error) {
	j, err := store.GetJob(ctx, b.store.DB(), id)
	if err != nil {
		return false, err
	}

	if err := complete.FailJob(ctx, b.store.DB(), id, int64(retries), result, b.backoff); err != nil {
		if errors.Is(err, complete.ErrStale) {
			return false, nil
		}
		return false, err
	}

	metrics.RecordFailure(j.Queue, j.Task, activeSeconds(j))
	if j.CanRetry() {
		metrics.RecordRetry(j.Queue, j.Task)
	}
	return true, nil
}

// RetryJob is the explicit retry operation: it returns job id to
// inactive regardless of its attempts budget, overriding any fields
// opts supplies. ok is false with a nil error if the (id, retries) pair
// no longer matches the row.
func (b *Backend) RetryJob(ctx context.Context, id int64, retries int, opts ...RetryOption) (ok bool, err error) {
	j, err := store.GetJob(ctx, b.store.DB(), id)
	if err != nil {
		return false, err
	}

	var o complete.RetryOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := complete.RetryJob(ctx, b.store.DB(), id, int64(retries), o); err != nil {
		if errors.Is(err, complete.ErrStale) {
			return false, nil
		}
		return false, err
	}

	metrics.RecordRetry(j.Queue, j.Task)
	return true, nil
}

// RemoveJob deletes job id's row, provided it is inactive, failed or
// finished.
func (b *Backend) RemoveJob(ctx context.Context, id int64) (bool, error) {
	return store.RemoveJob(ctx, b.store.DB(), id)
}

func activeSeconds(j *Job) float64 {
	if j.Started == nil {
		return 0
	}
	return store.Now().Sub(*j.Started).Seconds()
}
