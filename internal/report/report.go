// Package report implements aggregate stats, the trailing-day history
// buckets, and paged listings of jobs, workers and locks. It is
// read-only — every query here runs against the plain connection pool
// rather than an exclusive transaction, since nothing it does needs to
// be atomic with a state change.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/mercadoq/embedqueue/internal/job"
	"github.com/mercadoq/embedqueue/internal/metrics"
	"github.com/mercadoq/embedqueue/internal/store"
)

// Stats is the single aggregated row a stats query returns.
type Stats struct {
	ActiveJobs      int64
	InactiveJobs    int64
	ActiveWorkers   int64
	InactiveWorkers int64
	FailedJobs      int64
	FinishedJobs    int64
	DelayedJobs     int64
	ActiveLocks     int64
	EnqueuedJobs    int64
	Uptime          time.Duration
}

// StartTime is process start, used to compute Uptime. Backend records
// this once at Open.
var StartTime = time.Time{}

// Stats computes the aggregated job, worker and lock counters.
func Stats(ctx context.Context, s *store.Store) (Stats, error) {
	var st Stats
	now := store.FormatTime(store.Now())

	row := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE state = 'active'`)
	if err := row.Scan(&st.ActiveJobs); err != nil {
		return st, fmt.Errorf("report: count active jobs: %w", err)
	}

	row = s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE state = 'inactive'`)
	if err := row.Scan(&st.InactiveJobs); err != nil {
		return st, fmt.Errorf("report: count inactive jobs: %w", err)
	}

	row = s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE state = 'inactive' AND delayed > ?`, now)
	if err := row.Scan(&st.DelayedJobs); err != nil {
		return st, fmt.Errorf("report: count delayed jobs: %w", err)
	}

	row = s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE state = 'failed'`)
	if err := row.Scan(&st.FailedJobs); err != nil {
		return st, fmt.Errorf("report: count failed jobs: %w", err)
	}

	row = s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE state = 'finished'`)
	if err := row.Scan(&st.FinishedJobs); err != nil {
		return st, fmt.Errorf("report: count finished jobs: %w", err)
	}

	// High-water mark, not a row count: it must never drop when a job
	// is removed or GC'd, only reset to 0 by reset({all:true}).
	row = s.DB().QueryRowContext(ctx, `SELECT COALESCE((SELECT seq FROM sqlite_sequence WHERE name = 'jobs'), 0)`)
	if err := row.Scan(&st.EnqueuedJobs); err != nil {
		return st, fmt.Errorf("report: count enqueued jobs: %w", err)
	}

	row = s.DB().QueryRowContext(ctx, `SELECT COUNT(DISTINCT worker) FROM jobs WHERE state = 'active' AND worker IS NOT NULL`)
	if err := row.Scan(&st.ActiveWorkers); err != nil {
		return st, fmt.Errorf("report: count active workers: %w", err)
	}

	var totalWorkers int64
	row = s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM workers`)
	if err := row.Scan(&totalWorkers); err != nil {
		return st, fmt.Errorf("report: count workers: %w", err)
	}
	// A worker with no active job is inactive by definition, so this
	// stays consistent with ActiveWorkers without a separate query.
	st.InactiveWorkers = totalWorkers - st.ActiveWorkers

	row = s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM locks WHERE expires > ?`, now)
	if err := row.Scan(&st.ActiveLocks); err != nil {
		return st, fmt.Errorf("report: count active locks: %w", err)
	}

	if !StartTime.IsZero() {
		st.Uptime = store.Now().Sub(StartTime)
	}

	metrics.SetQueueDepth("active", float64(st.ActiveJobs))
	metrics.SetQueueDepth("inactive", float64(st.InactiveJobs))
	metrics.SetQueueDepth("delayed", float64(st.DelayedJobs))
	metrics.SetQueueDepth("failed", float64(st.FailedJobs))
	metrics.SetQueueDepth("finished", float64(st.FinishedJobs))
	metrics.SetWorkerCounts(float64(st.ActiveWorkers), float64(st.InactiveWorkers))
	metrics.SetActiveLocks(float64(st.ActiveLocks))

	return st, nil
}

// HourBucket is one entry of the 24-bucket trailing-day history.
type HourBucket struct {
	Epoch        int64
	FinishedJobs int64
	FailedJobs   int64
}

// History returns 24 hourly buckets for the trailing day, oldest
// first. Hours with no activity still appear, with zero counts.
func History(ctx context.Context, s *store.Store) ([24]HourBucket, error) {
	var buckets [24]HourBucket
	now := store.Now()

	for i := 0; i < 24; i++ {
		hourStart := now.Add(time.Duration(i-23) * time.Hour).Truncate(time.Hour)
		hourEnd := hourStart.Add(time.Hour)
		buckets[i].Epoch = hourStart.Unix()

		row := s.DB().QueryRowContext(ctx, `
			SELECT COUNT(*) FROM jobs
			WHERE state = 'finished' AND finished >= ? AND finished < ?`,
			store.FormatTime(hourStart), store.FormatTime(hourEnd))
		if err := row.Scan(&buckets[i].FinishedJobs); err != nil {
			return buckets, fmt.Errorf("report: count finished jobs for hour %d: %w", i, err)
		}

		row = s.DB().QueryRowContext(ctx, `
			SELECT COUNT(*) FROM jobs
			WHERE state = 'failed' AND finished >= ? AND finished < ?`,
			store.FormatTime(hourStart), store.FormatTime(hourEnd))
		if err := row.Scan(&buckets[i].FailedJobs); err != nil {
			return buckets, fmt.Errorf("report: count failed jobs for hour %d: %w", i, err)
		}
	}

	return buckets, nil
}

// JobFilter narrows ListJobs's result set.
type JobFilter struct {
	Before *time.Time
	IDs    []int64
	Queues []string
	States []job.State
	Tasks  []string
}

// ListJobs returns a page of jobs ordered descending by id, plus the
// total count matching filter before pagination.
func ListJobs(ctx context.Context, s *store.Store, offset, limit int, filter JobFilter) ([]job.Job, int64, error) {
	where, args := buildJobWhere(filter)

	var total int64
	row := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`+where, args...)
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("report: count jobs: %w", err)
	}

	pageArgs := append(append([]interface{}{}, args...), limit, offset)
	rows, err := s.DB().QueryContext(ctx, `
		SELECT id, task, args, queue, priority, state, attempts, retries,
			delayed, expires, lax, parents, notes, result, worker,
			created, started, retried, finished
		FROM jobs`+where+`
		ORDER BY id DESC LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("report: list jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := store.ScanJobRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func buildJobWhere(filter JobFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.Before != nil {
		clauses = append(clauses, `created < ?`)
		args = append(args, store.FormatTime(*filter.Before))
	}
	if len(filter.IDs) > 0 {
		clauses = append(clauses, `id IN (`+placeholders(len(filter.IDs))+`)`)
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	if len(filter.Queues) > 0 {
		clauses = append(clauses, `queue IN (`+placeholders(len(filter.Queues))+`)`)
		for _, q := range filter.Queues {
			args = append(args, q)
		}
	}
	if len(filter.States) > 0 {
		clauses = append(clauses, `state IN (`+placeholders(len(filter.States))+`)`)
		for _, st := range filter.States {
			args = append(args, st.String())
		}
	}
	if len(filter.Tasks) > 0 {
		clauses = append(clauses, `task IN (`+placeholders(len(filter.Tasks))+`)`)
		for _, t := range filter.Tasks {
			args = append(args, t)
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

// WorkerFilter narrows ListWorkers's result set.
type WorkerFilter struct {
	Before *time.Time
	IDs    []int64
}

// Worker is the reporter's view of a worker row.
type Worker struct {
	ID       int64
	Host     string
	PID      int
	Started  time.Time
	Notified time.Time
}

// ListWorkers returns a page of workers ordered descending by id, plus
// the total count matching filter.
func ListWorkers(ctx context.Context, s *store.Store, offset, limit int, filter WorkerFilter) ([]Worker, int64, error) {
	var clauses []string
	var args []interface{}

	if filter.Before != nil {
		clauses = append(clauses, `started < ?`)
		args = append(args, store.FormatTime(*filter.Before))
	}
	if len(filter.IDs) > 0 {
		clauses = append(clauses, `id IN (`+placeholders(len(filter.IDs))+`)`)
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + clauses[0]
		for _, c := range clauses[1:] {
			where += " AND " + c
		}
	}

	var total int64
	row := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM workers`+where, args...)
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("report: count workers: %w", err)
	}

	pageArgs := append(append([]interface{}{}, args...), limit, offset)
	rows, err := s.DB().QueryContext(ctx, `
		SELECT id, host, pid, started, notified FROM workers`+where+`
		ORDER BY id DESC LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("report: list workers: %w", err)
	}
	defer rows.Close()

	var out []Worker
	for rows.Next() {
		var (
			w                       Worker
			startedText, notifiedText string
		)
		if err := rows.Scan(&w.ID, &w.Host, &w.PID, &startedText, &notifiedText); err != nil {
			return nil, 0, fmt.Errorf("report: scan worker: %w", err)
		}
		w.Started, err = store.ParseTime(startedText)
		if err != nil {
			return nil, 0, err
		}
		w.Notified, err = store.ParseTime(notifiedText)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, w)
	}
	return out, total, rows.Err()
}

// LockFilter narrows ListLocks's result set.
type LockFilter struct {
	Names []string
}

// Lock is the reporter's view of a lock row.
type Lock struct {
	ID      int64
	Name    string
	Expires time.Time
}

// ListLocks returns a page of locks ordered descending by id, plus the
// total count matching filter.
func ListLocks(ctx context.Context, s *store.Store, offset, limit int, filter LockFilter) ([]Lock, int64, error) {
	where := ""
	var args []interface{}
	if len(filter.Names) > 0 {
		where = ` WHERE name IN (` + placeholders(len(filter.Names)) + `)`
		for _, n := range filter.Names {
			args = append(args, n)
		}
	}

	var total int64
	row := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM locks`+where, args...)
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("report: count locks: %w", err)
	}

	pageArgs := append(append([]interface{}{}, args...), limit, offset)
	rows, err := s.DB().QueryContext(ctx, `
		SELECT id, name, expires FROM locks`+where+`
		ORDER BY id DESC LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("report: list locks: %w", err)
	}
	defer rows.Close()

	var out []Lock
	for rows.Next() {
		var (
			l           Lock
			expiresText string
		)
		if err := rows.Scan(&l.ID, &l.Name, &expiresText); err != nil {
			return nil, 0, fmt.Errorf("report: scan lock: %w", err)
		}
		l.Expires, err = store.ParseTime(expiresText)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

func placeholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ", "
		}
		s += "?"
	}
	return s
}
