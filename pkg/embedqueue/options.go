package embedqueue

import (
	"time"

	"github.com/mercadoq/embedqueue/internal/codec"
	"github.com/mercadoq/embedqueue/internal/complete"
	"github.com/mercadoq/embedqueue/internal/dispatch"
	"github.com/mercadoq/embedqueue/internal/lock"
)

// EnqueueOption configures a single Enqueue call. Applying none of them
// matches the documented defaults: queue "default", priority 0,
// attempts 1, no delay, no expiry, strict (non-lax) dependencies.
type EnqueueOption func(*dispatch.EnqueueOptions)

// WithAttempts sets the number of times the job may be attempted
// before it's left failed for good.
func WithAttempts(n int) EnqueueOption {
	return func(o *dispatch.EnqueueOptions) { o.Attempts = n }
}

// WithDelay makes the job ineligible for dequeue until d has elapsed.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *dispatch.EnqueueOptions) { o.Delay = d }
}

// WithExpire makes the job ineligible for dequeue once d has elapsed
// since enqueue. An expired inactive parent counts as satisfied for the
// children that depend on it.
func WithExpire(d time.Duration) EnqueueOption {
	return func(o *dispatch.EnqueueOptions) { o.Expire = &d }
}

// WithLax marks the job as satisfied by a failed parent, not just a
// finished one.
func WithLax(lax bool) EnqueueOption {
	return func(o *dispatch.EnqueueOptions) { o.Lax = lax }
}

// WithNotes attaches an initial notes map to the job.
func WithNotes(notes map[string]codec.Value) EnqueueOption {
	return func(o *dispatch.EnqueueOptions) { o.Notes = notes }
}

// WithParents makes the job dependent on every id in parents per its
// lax setting.
func WithParents(parents ...int64) EnqueueOption {
	return func(o *dispatch.EnqueueOptions) { o.Parents = parents }
}

// WithPriority sets the job's dispatch priority; higher dispatches
// first among otherwise-eligible candidates.
func WithPriority(p int) EnqueueOption {
	return func(o *dispatch.EnqueueOptions) { o.Priority = p }
}

// WithQueue assigns the job to a named queue instead of DefaultQueue.
func WithQueue(queue string) EnqueueOption {
	return func(o *dispatch.EnqueueOptions) { o.Queue = queue }
}

// DequeueOption narrows a Dequeue call's candidate selection. Applying
// none of them matches the documented defaults: any task, queue
// DefaultQueue only.
type DequeueOption func(*dispatch.DequeueOptions)

// WithJobID pins selection to a single job id. The task and queue
// filters still apply, so the pinned job must also be on one of the
// selected queues.
func WithJobID(id int64) DequeueOption {
	return func(o *dispatch.DequeueOptions) { o.ID = &id }
}

// WithTasks restricts selection to jobs whose task is in tasks.
func WithTasks(tasks ...string) DequeueOption {
	return func(o *dispatch.DequeueOptions) { o.Tasks = tasks }
}

// WithQueues restricts selection to jobs on one of queues, instead of
// DefaultQueue only.
func WithQueues(queues ...string) DequeueOption {
	return func(o *dispatch.DequeueOptions) { o.Queues = queues }
}

// RetryOption overrides a field on an explicit RetryJob call. A field
// left unset keeps the job's existing value.
type RetryOption func(*complete.RetryOptions)

// WithRetryDelay sets how long before the retried job becomes eligible
// again, counted from now.
func WithRetryDelay(d time.Duration) RetryOption {
	return func(o *complete.RetryOptions) { o.Delay = d }
}

// WithRetryAttempts replaces the job's attempts budget.
func WithRetryAttempts(n int) RetryOption {
	return func(o *complete.RetryOptions) { o.Attempts = &n }
}

// WithRetryExpire replaces the job's expiry, counted from now.
func WithRetryExpire(d time.Duration) RetryOption {
	return func(o *complete.RetryOptions) { o.Expire = &d }
}

// WithRetryLax replaces the job's lax setting.
func WithRetryLax(lax bool) RetryOption {
	return func(o *complete.RetryOptions) { o.Lax = &lax }
}

// WithRetryParents replaces the job's parent id list.
func WithRetryParents(parents ...int64) RetryOption {
	return func(o *complete.RetryOptions) { o.Parents = &parents }
}

// WithRetryPriority replaces the job's dispatch priority.
func WithRetryPriority(p int) RetryOption {
	return func(o *complete.RetryOptions) { o.Priority = &p }
}

// WithRetryQueue replaces the job's queue.
func WithRetryQueue(queue string) RetryOption {
	return func(o *complete.RetryOptions) { o.Queue = &queue }
}

// LockOption configures Lock/WithLock's acquisition limit.
type LockOption func(*lockOptions)

type lockOptions struct {
	limit int
}

func defaultLockOptions() lockOptions {
	return lockOptions{limit: lock.DefaultLimit}
}

// WithLimit sets how many concurrent holders of the same name may hold
// a lease at once. The default is lock.DefaultLimit (1).
func WithLimit(n int) LockOption {
	return func(o *lockOptions) { o.limit = n }
}
