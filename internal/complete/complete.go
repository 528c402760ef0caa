// Package complete implements the ways an active job leaves that state
// and the explicit retry operation. Rather than mutating an in-memory
// struct against a transition table, every edge here is a single
// row-level compare-and-set against the jobs table, keyed on
// (id, retries) so a worker that was reclaimed by repair mid-job can
// never clobber a row it no longer owns.
package complete

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/mercadoq/embedqueue/internal/codec"
	"github.com/mercadoq/embedqueue/internal/store"
)

// ErrStale is returned when the (id, retries) pair no longer matches
// the row: the job was already reclaimed by repair, retried from under
// the caller, or finished by someone else first.
var ErrStale = fmt.Errorf("complete: job retries count is stale")

// Backoff computes the delay before a retried job becomes eligible for
// dequeue again, given its retry count before the increment.
type Backoff func(retries int) time.Duration

// DefaultBackoff grows as 15 + retries^4 seconds: 15s, 16s, 31s, 96s
// for the first four retries, then steeply without bound as retries
// climb.
func DefaultBackoff(retries int) time.Duration {
	return time.Duration(15+math.Pow(float64(retries), 4)) * time.Second
}

// FinishJob marks job id finished and stores its result, provided it
// is still active with the given retries count.
func FinishJob(ctx context.Context, q store.Queryer, id, retries int64, result codec.Value) error {
	encoded, err := codec.Encode(result)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		UPDATE jobs
		SET state = 'finished', result = ?, finished = ?
		WHERE id = ? AND retries = ? AND state = 'active'`,
		encoded, store.FormatTime(store.Now()), id, retries,
	)
	if err != nil {
		return fmt.Errorf("complete: finish job %d: %w", id, err)
	}
	return requireRowAffected(res)
}

// FailJob marks job id failed, provided it is still active with the
// given retries count. If the job still has attempts left (retries <
// attempts-1), it is then rescheduled to inactive with retries
// incremented and a delay of backoff(retries), by a second statement
// within the same call. A nil backoff uses DefaultBackoff.
func FailJob(ctx context.Context, q store.Queryer, id, retries int64, result codec.Value, backoff Backoff) error {
	if backoff == nil {
		backoff = DefaultBackoff
	}
	encoded, err := codec.Encode(result)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		UPDATE jobs
		SET state = 'failed', result = ?, finished = ?
		WHERE id = ? AND retries = ? AND state = 'active'`,
		encoded, store.FormatTime(store.Now()), id, retries,
	)
	if err != nil {
		return fmt.Errorf("complete: fail job %d: %w", id, err)
	}
	if err := requireRowAffected(res); err != nil {
		return err
	}

	var attempts int
	if err := q.QueryRowContext(ctx, `SELECT attempts FROM jobs WHERE id = ?`, id).Scan(&attempts); err != nil {
		return fmt.Errorf("complete: read attempts for job %d: %w", id, err)
	}
	if retries >= int64(attempts)-1 {
		return nil
	}

	delay := store.FormatTime(store.Now().Add(backoff(int(retries))))
	_, err = q.ExecContext(ctx, `
		UPDATE jobs
		SET state = 'inactive', retries = retries + 1, retried = ?,
		    delayed = ?, worker = NULL, started = NULL
		WHERE id = ? AND retries = ? AND state = 'failed'`,
		store.FormatTime(store.Now()), delay, id, retries,
	)
	if err != nil {
		return fmt.Errorf("complete: auto-retry job %d: %w", id, err)
	}
	return nil
}

// RetryOptions overrides fields on an explicit retry. A nil field
// keeps the job's existing value.
type RetryOptions struct {
	Delay    time.Duration
	Attempts *int
	Expire   *time.Duration
	Lax      *bool
	Parents  *[]int64
	Priority *int
	Queue    *string
}

// RetryJob is the explicit retry operation: a conditional update keyed
// on (id, retries). If the row's retries has already advanced past the
// caller's value, it's a no-op (ErrStale). On success the job returns
// to inactive, retries increments, retried is stamped, delayed is
// recomputed from opts.Delay, and any of
// {attempts, expire, lax, parents, priority, queue} the caller supplied
// replaces the existing value.
func RetryJob(ctx context.Context, q store.Queryer, id, retries int64, opts RetryOptions) error {
	var expires sql.NullString
	if opts.Expire != nil {
		expires = sql.NullString{String: store.FormatTime(store.Now().Add(*opts.Expire)), Valid: true}
	}
	var parents sql.NullString
	if opts.Parents != nil {
		encoded, err := codec.EncodeInts(*opts.Parents)
		if err != nil {
			return err
		}
		parents = sql.NullString{String: encoded, Valid: true}
	}

	res, err := q.ExecContext(ctx, `
		UPDATE jobs
		SET state = 'inactive',
		    retries = retries + 1,
		    retried = ?,
		    delayed = ?,
		    attempts = COALESCE(?, attempts),
		    expires = COALESCE(?, expires),
		    lax = COALESCE(?, lax),
		    parents = COALESCE(?, parents),
		    priority = COALESCE(?, priority),
		    queue = COALESCE(?, queue),
		    worker = NULL,
		    started = NULL
		WHERE id = ? AND retries = ?`,
		store.FormatTime(store.Now()),
		store.FormatTime(store.Now().Add(opts.Delay)),
		nullableInt(opts.Attempts),
		expires,
		nullableBool(opts.Lax),
		parents,
		nullableInt(opts.Priority),
		nullableString(opts.Queue),
		id, retries,
	)
	if err != nil {
		return fmt.Errorf("complete: retry job %d: %w", id, err)
	}
	return requireRowAffected(res)
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableBool(v *bool) interface{} {
	if v == nil {
		return nil
	}
	if *v {
		return 1
	}
	return 0
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete: rows affected: %w", err)
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}
