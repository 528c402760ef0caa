// Package dispatch implements the enqueue and dequeue paths: inserting
// new inactive jobs and atomically selecting the next eligible one for
// a worker under the job dependency predicate. Selection runs inside
// store.WithExclusiveTx so no two workers ever observe the same job
// active at once, even across separate OS processes sharing the
// database file.
package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mercadoq/embedqueue/internal/codec"
	"github.com/mercadoq/embedqueue/internal/job"
	"github.com/mercadoq/embedqueue/internal/metrics"
	"github.com/mercadoq/embedqueue/internal/store"
)

// EnqueueOptions configures a single Enqueue call. Zero values match
// the documented defaults.
type EnqueueOptions struct {
	Attempts int // default 1
	Delay    time.Duration
	Expire   *time.Duration
	Lax      bool
	Notes    map[string]codec.Value
	Parents  []int64
	Priority int
	Queue    string // default job.DefaultQueue
}

// Enqueue inserts a new inactive job and returns its id.
func Enqueue(ctx context.Context, s *store.Store, task string, args codec.Value, opts EnqueueOptions) (int64, error) {
	attempts := opts.Attempts
	if attempts == 0 {
		attempts = 1
	}
	queue := opts.Queue
	if queue == "" {
		queue = job.DefaultQueue
	}

	now := store.Now()
	var expires *time.Time
	if opts.Expire != nil {
		t := now.Add(*opts.Expire)
		expires = &t
	}

	id, err := store.InsertJob(ctx, s.DB(), store.InsertJobParams{
		Task:     task,
		Args:     args,
		Queue:    queue,
		Priority: opts.Priority,
		Attempts: attempts,
		Delayed:  now.Add(opts.Delay),
		Expires:  expires,
		Lax:      opts.Lax,
		Parents:  opts.Parents,
		Notes:    opts.Notes,
	})
	if err != nil {
		return 0, err
	}
	metrics.RecordEnqueue(queue, task)
	return id, nil
}

// DequeueOptions scopes a selection attempt.
type DequeueOptions struct {
	ID     *int64   // pin a specific job id
	Tasks  []string // tasks the calling process can execute
	Queues []string // default {job.DefaultQueue}
}

// Dequeued is the tuple returned on a successful selection.
type Dequeued struct {
	ID      int64
	Args    codec.Value
	Retries int64
	Task    string
}

// Dequeue blocks up to wait for an eligible job, polling every
// dequeueInterval. It returns (nil, nil) if nothing became eligible
// before the deadline.
func Dequeue(ctx context.Context, s *store.Store, workerID int64, wait, dequeueInterval time.Duration, opts DequeueOptions) (*Dequeued, error) {
	deadline := store.Now().Add(wait)

	for {
		d, err := try(ctx, s, workerID, opts)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}

		remaining := deadline.Sub(store.Now())
		if remaining <= 0 {
			return nil, nil
		}

		sleep := dequeueInterval
		if remaining < sleep {
			sleep = remaining
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// try is a single selection attempt. It runs entirely inside one
// exclusive transaction: the candidate read and the claiming write are
// never visible to another worker in between.
func try(ctx context.Context, s *store.Store, workerID int64, opts DequeueOptions) (*Dequeued, error) {
	queues := opts.Queues
	if len(queues) == 0 {
		queues = []string{job.DefaultQueue}
	}

	var result *Dequeued
	err := s.WithExclusiveTx(ctx, func(tx *store.ExclusiveTx) error {
		now := store.Now()

		candidates, err := selectCandidates(ctx, tx, now, opts.ID, opts.Tasks, queues)
		if err != nil {
			return err
		}

		for _, c := range candidates {
			satisfied, err := dependenciesSatisfied(ctx, tx, c, now)
			if err != nil {
				return err
			}
			if !satisfied {
				continue
			}

			res, err := tx.ExecContext(ctx, `
				UPDATE jobs SET state = 'active', worker = ?, started = ?
				WHERE id = ? AND state = 'inactive'`,
				workerID, store.FormatTime(now), c.id)
			if err != nil {
				return fmt.Errorf("dispatch: claim job %d: %w", c.id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				// Lost a race inside this same transaction cannot
				// happen (we hold the exclusive lock); defensive only.
				continue
			}

			metrics.RecordDispatch(c.queue, c.task)
			result = &Dequeued{ID: c.id, Args: c.args, Retries: c.retries, Task: c.task}
			return nil
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type candidate struct {
	id      int64
	task    string
	queue   string
	args    codec.Value
	retries int64
	parents []int64
	lax     bool
}

// selectCandidates runs the non-dependency part of the candidate
// filter (state, delay, expiry, queue, task, pinned id), ordered by
// priority DESC, id ASC.
func selectCandidates(ctx context.Context, tx *store.ExclusiveTx, now time.Time, id *int64, tasks, queues []string) ([]candidate, error) {
	query := `
		SELECT id, task, queue, args, retries, parents, lax
		FROM jobs
		WHERE state = 'inactive'
		  AND delayed <= ?
		  AND (expires IS NULL OR expires > ?)
		  AND queue IN (` + placeholders(len(queues)) + `)`

	args := []interface{}{store.FormatTime(now), store.FormatTime(now)}
	for _, q := range queues {
		args = append(args, q)
	}

	if len(tasks) > 0 {
		query += ` AND task IN (` + placeholders(len(tasks)) + `)`
		for _, t := range tasks {
			args = append(args, t)
		}
	}
	if id != nil {
		query += ` AND id = ?`
		args = append(args, *id)
	}

	query += ` ORDER BY priority DESC, id ASC`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispatch: select candidates: %w", err)
	}
	defer rows.Close()

	var out []candidate
	for rows.Next() {
		var (
			c           candidate
			argsText    string
			parentsText string
			laxInt      int
		)
		if err := rows.Scan(&c.id, &c.task, &c.queue, &argsText, &c.retries, &parentsText, &laxInt); err != nil {
			return nil, fmt.Errorf("dispatch: scan candidate: %w", err)
		}
		c.args, err = codec.Decode(argsText)
		if err != nil {
			return nil, err
		}
		c.parents, err = codec.DecodeInts(parentsText)
		if err != nil {
			return nil, err
		}
		c.lax = laxInt != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// dependenciesSatisfied evaluates the dependency predicate for every
// parent of c.
func dependenciesSatisfied(ctx context.Context, tx *store.ExclusiveTx, c candidate, now time.Time) (bool, error) {
	for _, parentID := range c.parents {
		var (
			stateText string
			expiresNS sql.NullString
		)
		row := tx.QueryRowContext(ctx, `SELECT state, expires FROM jobs WHERE id = ?`, parentID)
		err := row.Scan(&stateText, &expiresNS)
		if errors.Is(err, sql.ErrNoRows) {
			// missing parent is treated as satisfied
			continue
		}
		if err != nil {
			return false, fmt.Errorf("dispatch: read parent %d: %w", parentID, err)
		}

		parentState := job.ParseState(stateText)
		expired := false
		if expiresNS.Valid {
			t, err := store.ParseTime(expiresNS.String)
			if err != nil {
				return false, err
			}
			expired = now.After(t)
		}

		if !job.DependencySatisfied(c.lax, true, parentState, expired) {
			return false, nil
		}
	}
	return true, nil
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
