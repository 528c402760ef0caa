package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mercadoq/embedqueue/internal/codec"
	"github.com/mercadoq/embedqueue/internal/job"
)

// jobColumns is the column list every job query below selects, in the
// order scanJobRow expects.
const jobColumns = `id, task, args, queue, priority, state, attempts, retries,
	delayed, expires, lax, parents, notes, result, worker,
	created, started, retried, finished`

// InsertJobParams are the fields Enqueue supplies when inserting a new
// inactive job row.
type InsertJobParams struct {
	Task     string
	Args     codec.Value
	Queue    string
	Priority int
	Attempts int
	Delayed  time.Time
	Expires  *time.Time
	Lax      bool
	Parents  []int64
	Notes    map[string]codec.Value
}

// InsertJob inserts a new row in state inactive and returns its id.
func InsertJob(ctx context.Context, q Queryer, p InsertJobParams) (int64, error) {
	args, err := codec.Encode(p.Args)
	if err != nil {
		return 0, err
	}
	parents, err := codec.EncodeInts(p.Parents)
	if err != nil {
		return 0, err
	}
	notes, err := encodeNotes(p.Notes)
	if err != nil {
		return 0, err
	}

	var expires sql.NullString
	if p.Expires != nil {
		expires = sql.NullString{String: FormatTime(*p.Expires), Valid: true}
	}

	now := Now()
	res, err := q.ExecContext(ctx, `
		INSERT INTO jobs (task, args, queue, priority, state, attempts, retries,
			delayed, expires, lax, parents, notes, result, worker, created)
		VALUES (?, ?, ?, ?, 'inactive', ?, 0, ?, ?, ?, ?, ?, '', NULL, ?)`,
		p.Task, args, p.Queue, p.Priority, p.Attempts,
		FormatTime(p.Delayed), expires, boolToInt(p.Lax), parents, notes,
		FormatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert job: %w", err)
	}

	return res.LastInsertId()
}

// GetJob fetches a single job row by id.
func GetJob(ctx context.Context, q Queryer, id int64) (*job.Job, error) {
	row := q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, job.ErrJobNotFound
	}
	return j, err
}

// UpdateJobNotes replaces a job's notes map in place.
func UpdateJobNotes(ctx context.Context, q Queryer, id int64, notes map[string]codec.Value) (bool, error) {
	encoded, err := encodeNotes(notes)
	if err != nil {
		return false, err
	}
	res, err := q.ExecContext(ctx, `UPDATE jobs SET notes = ? WHERE id = ?`, encoded, id)
	if err != nil {
		return false, fmt.Errorf("store: update job notes: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RemoveJob deletes a job row if it is inactive, failed or finished.
func RemoveJob(ctx context.Context, q Queryer, id int64) (bool, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE id = ? AND state IN ('inactive', 'failed', 'finished')`, id)
	if err != nil {
		return false, fmt.Errorf("store: remove job: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func encodeNotes(notes map[string]codec.Value) (string, error) {
	return codec.Encode(codec.Map(notes))
}

func decodeNotes(s string) (map[string]codec.Value, error) {
	v, err := codec.Decode(s)
	if err != nil {
		return nil, err
	}
	m, _ := v.Map()
	if m == nil {
		m = map[string]codec.Value{}
	}
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows, letting
// scanJobRow work for both GetJob (single row) and list queries
// (multiple rows).
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJobRow(row rowScanner) (*job.Job, error) {
	var (
		id                                     int64
		task, argsText, queue, state           string
		priority, attempts, retries, laxInt    int
		delayedText                            string
		expiresText                            sql.NullString
		parentsText, notesText, resultText     string
		worker                                 sql.NullInt64
		createdText                            string
		startedText, retriedText, finishedText sql.NullString
	)

	if err := row.Scan(
		&id, &task, &argsText, &queue, &priority, &state, &attempts, &retries,
		&delayedText, &expiresText, &laxInt, &parentsText, &notesText, &resultText, &worker,
		&createdText, &startedText, &retriedText, &finishedText,
	); err != nil {
		return nil, err
	}

	args, err := codec.Decode(argsText)
	if err != nil {
		return nil, err
	}
	result, err := codec.Decode(resultText)
	if err != nil {
		return nil, err
	}
	parents, err := codec.DecodeInts(parentsText)
	if err != nil {
		return nil, err
	}
	notes, err := decodeNotes(notesText)
	if err != nil {
		return nil, err
	}
	delayed, err := ParseTime(delayedText)
	if err != nil {
		return nil, err
	}
	created, err := ParseTime(createdText)
	if err != nil {
		return nil, err
	}

	j := &job.Job{
		ID:       id,
		Task:     task,
		Args:     args,
		Queue:    queue,
		Priority: priority,
		State:    job.ParseState(state),
		Attempts: attempts,
		Retries:  retries,
		Delayed:  delayed,
		Lax:      laxInt != 0,
		Parents:  parents,
		Notes:    notes,
		Result:   result,
		Created:  created,
	}

	if expiresText.Valid {
		t, err := ParseTime(expiresText.String)
		if err != nil {
			return nil, err
		}
		j.Expires = &t
	}
	if worker.Valid {
		w := worker.Int64
		j.Worker = &w
	}
	if startedText.Valid {
		t, err := ParseTime(startedText.String)
		if err != nil {
			return nil, err
		}
		j.Started = &t
	}
	if retriedText.Valid {
		t, err := ParseTime(retriedText.String)
		if err != nil {
			return nil, err
		}
		j.Retried = &t
	}
	if finishedText.Valid {
		t, err := ParseTime(finishedText.String)
		if err != nil {
			return nil, err
		}
		j.Finished = &t
	}

	return j, nil
}

// ScanJobRows consumes a *sql.Rows produced by a job list query,
// returning every row as a *job.Job. The caller remains responsible for
// closing rows.
func ScanJobRows(rows *sql.Rows) ([]job.Job, error) {
	var out []job.Job
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}
