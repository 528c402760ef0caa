package embedqueue

import (
	"github.com/mercadoq/embedqueue/internal/job"
	"github.com/mercadoq/embedqueue/internal/report"
)

// Job is a durable unit of deferred work.
type Job = job.Job

// State is where a job currently sits in its lifecycle.
type State = job.State

const (
	StateInactive = job.StateInactive
	StateActive   = job.StateActive
	StateFailed   = job.StateFailed
	StateFinished = job.StateFinished
)

// DefaultQueue is the queue name assigned when a caller doesn't specify
// one.
const DefaultQueue = job.DefaultQueue

// ForegroundQueue is the queue name Repair's orphan sweep exempts from
// reclaiming: jobs enqueued here are expected to run synchronously in
// the enqueuing process rather than be picked up by a crashed worker's
// replacement.
const ForegroundQueue = job.ForegroundQueue

// Worker is the reporter's view of a registered worker.
type Worker = report.Worker

// Lock is the reporter's view of a lock row.
type Lock = report.Lock

// JobFilter narrows ListJobs's result set.
type JobFilter = report.JobFilter

// WorkerFilter narrows ListWorkers's result set.
type WorkerFilter = report.WorkerFilter

// LockFilter narrows ListLocks's result set.
type LockFilter = report.LockFilter

// Stats is the aggregated job, worker and lock counters Stats returns.
type Stats = report.Stats

// HourBucket is one entry of History's trailing-day window.
type HourBucket = report.HourBucket

// History is 24 hourly buckets covering the trailing day, oldest
// first.
type History [24]HourBucket
