// Package job defines the Job entity and the pure helpers shared by
// the dispatcher, completion path and reporter. It does not itself
// talk to the database — internal/store owns persistence,
// internal/dispatch and internal/complete own the state transitions.
package job

import (
	"time"

	"github.com/mercadoq/embedqueue/internal/codec"
)

// DefaultQueue is the queue name assigned when a caller doesn't specify
// one.
const DefaultQueue = "default"

// ForegroundQueue is the queue name repair's orphan sweep exempts from
// reclaiming: jobs enqueued on it are expected to run synchronously in
// the enqueuing process rather than be picked up by a crashed worker's
// replacement.
const ForegroundQueue = "foreground"

// Job is a durable unit of deferred work.
type Job struct {
	ID       int64
	Task     string
	Args     codec.Value
	Queue    string
	Priority int
	State    State
	Attempts int
	Retries  int
	Delayed  time.Time
	Expires  *time.Time
	Lax      bool
	Parents  []int64
	Notes    map[string]codec.Value
	Result   codec.Value
	Worker   *int64

	Created  time.Time
	Started  *time.Time
	Retried  *time.Time
	Finished *time.Time
}

// CanRetry reports whether a failed job still has attempts left for
// the completion path's automatic retry: once retries reaches
// attempts-1, the job is terminal and is not rescheduled.
func (j *Job) CanRetry() bool {
	return j.Retries < j.Attempts-1
}

// DependencySatisfied evaluates the dependency predicate for a single
// parent, given the parent's current state and (for inactive parents)
// whether it has expired.
func DependencySatisfied(lax bool, parentExists bool, parentState State, parentExpired bool) bool {
	if !parentExists {
		return true
	}
	switch parentState {
	case StateFinished:
		return true
	case StateFailed:
		return lax
	case StateInactive:
		return parentExpired
	case StateActive:
		return false
	default:
		return false
	}
}
