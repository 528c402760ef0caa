// Package repair implements the periodic maintenance sweep: expiring
// dead workers, reclaiming the jobs they left active, removing old
// terminal and expired rows, and force-failing jobs that have sat
// inactive too long. Runner drives these steps on a ticker, the same
// way a background recovery loop reclaims orphaned work on a fixed
// interval, except every reclaim step here is a SQL statement against
// the jobs/workers tables.
package repair

import (
	"context"
	"fmt"
	"time"

	"github.com/mercadoq/embedqueue/internal/codec"
	"github.com/mercadoq/embedqueue/internal/complete"
	"github.com/mercadoq/embedqueue/internal/job"
	"github.com/mercadoq/embedqueue/internal/store"
)

// Config holds the thresholds that gate each repair step.
type Config struct {
	MissingAfter time.Duration // worker considered dead
	RemoveAfter  time.Duration // terminal job garbage collected
	StuckAfter   time.Duration // inactive job force-failed
}

// Result tallies what one Run pass did, for logging/metrics.
type Result struct {
	WorkersExpired int64
	JobsRemoved    int64
	JobsReclaimed  int64
	JobsStuck      int64
}

// Run executes the four sweep steps in order against s: expiring dead
// workers, removing old jobs, reclaiming orphaned active jobs, and
// force-failing stuck inactive jobs. backoff is passed through to the
// auto-retry the orphan reclaim delegates to; a nil backoff uses
// complete.DefaultBackoff.
func Run(ctx context.Context, s *store.Store, cfg Config, backoff complete.Backoff) (Result, error) {
	var result Result

	n, err := expireDeadWorkers(ctx, s, cfg.MissingAfter)
	if err != nil {
		return result, err
	}
	result.WorkersExpired = n

	n, err = removeOldJobs(ctx, s, cfg.RemoveAfter)
	if err != nil {
		return result, err
	}
	result.JobsRemoved = n

	n, err = reclaimOrphanedJobs(ctx, s, backoff)
	if err != nil {
		return result, err
	}
	result.JobsReclaimed = n

	n, err = failStuckJobs(ctx, s, cfg.StuckAfter)
	if err != nil {
		return result, err
	}
	result.JobsStuck = n

	return result, nil
}

// expireDeadWorkers deletes worker rows whose heartbeat is older than
// missingAfter. Any job they held active is picked up by
// reclaimOrphanedJobs on this same pass, since the worker row is
// already gone by then.
func expireDeadWorkers(ctx context.Context, s *store.Store, missingAfter time.Duration) (int64, error) {
	threshold := store.FormatTime(store.Now().Add(-missingAfter))
	res, err := s.DB().ExecContext(ctx, `DELETE FROM workers WHERE notified < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("repair: expire dead workers: %w", err)
	}
	return res.RowsAffected()
}

// removeOldJobs deletes finished jobs past removeAfter with no
// non-finished child depending on them, plus inactive jobs past their
// own expiry.
func removeOldJobs(ctx context.Context, s *store.Store, removeAfter time.Duration) (int64, error) {
	threshold := store.FormatTime(store.Now().Add(-removeAfter))

	res, err := s.DB().ExecContext(ctx, `
		DELETE FROM jobs
		WHERE state = 'finished'
		  AND finished <= ?
		  AND id NOT IN (
		      SELECT CAST(p.value AS INTEGER)
		      FROM jobs AS child, json_each(child.parents) AS p
		      WHERE child.state != 'finished'
		  )`, threshold)
	if err != nil {
		return 0, fmt.Errorf("repair: remove old finished jobs: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	now := store.FormatTime(store.Now())
	res, err = s.DB().ExecContext(ctx, `
		DELETE FROM jobs WHERE state = 'inactive' AND expires IS NOT NULL AND expires <= ?`, now)
	if err != nil {
		return removed, fmt.Errorf("repair: remove expired inactive jobs: %w", err)
	}
	removedExpired, err := res.RowsAffected()
	if err != nil {
		return removed, err
	}

	return removed + removedExpired, nil
}

// reclaimOrphanedJobs fails active jobs whose worker row is gone (and
// whose queue isn't the synchronous foreground queue) with "Worker
// went away" and hands them to complete.FailJob's built-in auto-retry.
func reclaimOrphanedJobs(ctx context.Context, s *store.Store, backoff complete.Backoff) (int64, error) {
	rows, err := s.DB().QueryContext(ctx, `
		SELECT jobs.id, jobs.retries
		FROM jobs
		LEFT JOIN workers ON workers.id = jobs.worker
		WHERE jobs.state = 'active'
		  AND workers.id IS NULL
		  AND jobs.queue != ?`, job.ForegroundQueue)
	if err != nil {
		return 0, fmt.Errorf("repair: find orphaned jobs: %w", err)
	}

	type orphan struct {
		id      int64
		retries int64
	}
	var orphans []orphan
	for rows.Next() {
		var o orphan
		if err := rows.Scan(&o.id, &o.retries); err != nil {
			rows.Close()
			return 0, fmt.Errorf("repair: scan orphaned job: %w", err)
		}
		orphans = append(orphans, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	var reclaimed int64
	for _, o := range orphans {
		err := complete.FailJob(ctx, s.DB(), o.id, o.retries, codec.String("Worker went away"), backoff)
		if err != nil && err != complete.ErrStale {
			return reclaimed, fmt.Errorf("repair: reclaim job %d: %w", o.id, err)
		}
		if err == nil {
			reclaimed++
		}
	}
	return reclaimed, nil
}

// failStuckJobs force-fails inactive jobs whose delay has aged past
// stuckAfter, without going through auto-retry.
func failStuckJobs(ctx context.Context, s *store.Store, stuckAfter time.Duration) (int64, error) {
	threshold := store.FormatTime(store.Now().Add(-stuckAfter))
	encoded, err := codec.Encode(codec.String("Job appears stuck in queue"))
	if err != nil {
		return 0, err
	}

	res, err := s.DB().ExecContext(ctx, `
		UPDATE jobs
		SET state = 'failed', result = ?, finished = ?
		WHERE state = 'inactive' AND delayed < ?`,
		encoded, store.FormatTime(store.Now()), threshold)
	if err != nil {
		return 0, fmt.Errorf("repair: fail stuck jobs: %w", err)
	}
	return res.RowsAffected()
}
