package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Job lifecycle metrics
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedqueue_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"queue", "task"},
	)

	JobsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedqueue_jobs_dispatched_total",
			Help: "Total number of jobs claimed by a worker",
		},
		[]string{"queue", "task"},
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedqueue_jobs_finished_total",
			Help: "Total number of jobs that completed successfully",
		},
		[]string{"queue", "task"},
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedqueue_jobs_failed_total",
			Help: "Total number of jobs that transitioned to failed",
		},
		[]string{"queue", "task"},
	)

	JobsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedqueue_jobs_retried_total",
			Help: "Total number of jobs rescheduled after a failure or an explicit retry",
		},
		[]string{"queue", "task"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embedqueue_job_duration_seconds",
			Help:    "Time a job spent active before finishing or failing",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"task"},
	)

	// Queue depth, sampled by the reporter on each stats() call.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "embedqueue_queue_depth",
			Help: "Current number of jobs in a given state",
		},
		[]string{"state"},
	)

	// Worker metrics
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "embedqueue_active_workers",
			Help: "Current number of workers with at least one active job",
		},
	)

	InactiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "embedqueue_inactive_workers",
			Help: "Current number of registered workers with no active job",
		},
	)

	WorkersExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "embedqueue_workers_expired_total",
			Help: "Total number of worker rows removed for missing their heartbeat",
		},
	)

	// Lock metrics
	ActiveLocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "embedqueue_active_locks",
			Help: "Current number of unexpired lock leases",
		},
	)

	LockContended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "embedqueue_lock_contended_total",
			Help: "Total number of lock attempts rejected because the limit was already held",
		},
	)

	// Repair sweep metrics
	RepairJobsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "embedqueue_repair_jobs_removed_total",
			Help: "Total number of old finished or expired jobs deleted by a repair sweep",
		},
	)

	RepairJobsReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "embedqueue_repair_jobs_reclaimed_total",
			Help: "Total number of active jobs reclaimed from workers that went away",
		},
	)

	RepairJobsStuck = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "embedqueue_repair_jobs_stuck_total",
			Help: "Total number of inactive jobs force-failed for sitting in queue too long",
		},
	)
)

// RecordEnqueue records a job being added to a queue.
func RecordEnqueue(queue, task string) {
	JobsEnqueued.WithLabelValues(queue, task).Inc()
}

// RecordDispatch records a job being claimed by a worker.
func RecordDispatch(queue, task string) {
	JobsDispatched.WithLabelValues(queue, task).Inc()
}

// RecordFinish records a job completing successfully and its active duration.
func RecordFinish(queue, task string, activeSeconds float64) {
	JobsFinished.WithLabelValues(queue, task).Inc()
	JobDuration.WithLabelValues(task).Observe(activeSeconds)
}

// RecordFailure records a job transitioning to failed and its active duration.
func RecordFailure(queue, task string, activeSeconds float64) {
	JobsFailed.WithLabelValues(queue, task).Inc()
	JobDuration.WithLabelValues(task).Observe(activeSeconds)
}

// RecordRetry records a job being rescheduled, whether by auto-retry or explicit retry.
func RecordRetry(queue, task string) {
	JobsRetried.WithLabelValues(queue, task).Inc()
}

// SetQueueDepth sets the gauge tracking how many jobs sit in a given state.
func SetQueueDepth(state string, depth float64) {
	QueueDepth.WithLabelValues(state).Set(depth)
}

// SetWorkerCounts sets the active and inactive worker gauges together,
// since both derive from the same total worker count.
func SetWorkerCounts(active, inactive float64) {
	ActiveWorkers.Set(active)
	InactiveWorkers.Set(inactive)
}

// RecordWorkerExpired records a repair sweep evicting a dead worker row.
func RecordWorkerExpired() {
	WorkersExpired.Inc()
}

// SetActiveLocks sets the active lock leases gauge.
func SetActiveLocks(count float64) {
	ActiveLocks.Set(count)
}

// RecordLockContended records a lock attempt rejected at its limit.
func RecordLockContended() {
	LockContended.Inc()
}

// RecordRepairSweep records the outcome of one repair pass.
func RecordRepairSweep(jobsRemoved, jobsReclaimed, jobsStuck int64) {
	RepairJobsRemoved.Add(float64(jobsRemoved))
	RepairJobsReclaimed.Add(float64(jobsReclaimed))
	RepairJobsStuck.Add(float64(jobsStuck))
}
