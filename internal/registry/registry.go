// Package registry implements the worker registry: the table of live
// worker processes and the inbox used to push commands to them. Every
// worker is one row in the workers table, and "still alive" is just
// "notified is recent enough", evaluated later by internal/repair
// rather than tracked via an expiring key.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mercadoq/embedqueue/internal/codec"
	"github.com/mercadoq/embedqueue/internal/store"
)

// ErrWorkerNotFound is returned by operations scoped to a worker id
// that no longer has a row.
var ErrWorkerNotFound = fmt.Errorf("registry: worker not found")

// RegisterOptions are the fields a worker supplies on registration or
// heartbeat.
type RegisterOptions struct {
	Host   string
	PID    int
	Status codec.Value
}

// Register registers a new worker, or refreshes an existing one if id
// is non-nil and still has a row. Returns the worker's id either way.
func Register(ctx context.Context, q store.Queryer, id *int64, opts RegisterOptions) (int64, error) {
	status, err := codec.Encode(opts.Status)
	if err != nil {
		return 0, err
	}
	now := store.FormatTime(store.Now())

	if id != nil {
		res, err := q.ExecContext(ctx, `
			UPDATE workers SET notified = ?, status = ? WHERE id = ?`,
			now, status, *id)
		if err != nil {
			return 0, fmt.Errorf("registry: heartbeat worker %d: %w", *id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return *id, nil
		}
		// id was supplied but the row is gone (e.g. repaired away);
		// fall through and insert a fresh row.
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO workers (host, pid, status, inbox, started, notified)
		VALUES (?, ?, ?, '[]', ?, ?)`,
		opts.Host, opts.PID, status, now, now)
	if err != nil {
		return 0, fmt.Errorf("registry: register worker: %w", err)
	}
	return res.LastInsertId()
}

// Unregister deletes a worker's row. Any job left active under it
// becomes orphaned and is reclaimed later by a repair sweep.
func Unregister(ctx context.Context, q store.Queryer, id int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM workers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("registry: unregister worker %d: %w", id, err)
	}
	return nil
}

// Broadcast appends [command, args...] to the inbox of every worker in
// ids, or every worker if ids is empty. Each worker's read-modify-write
// runs inside its own exclusive transaction, so a concurrent Broadcast
// or Receive from another process can never interleave with it and
// drop a message.
func Broadcast(ctx context.Context, s *store.Store, command string, args []string, ids []int64) error {
	message := append([]string{command}, args...)

	targets := ids
	if len(targets) == 0 {
		rows, err := s.DB().QueryContext(ctx, `SELECT id FROM workers`)
		if err != nil {
			return fmt.Errorf("registry: list workers for broadcast: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			targets = append(targets, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
	}

	for _, id := range targets {
		if err := appendInbox(ctx, s, id, message); err != nil {
			return err
		}
	}
	return nil
}

func appendInbox(ctx context.Context, s *store.Store, id int64, message []string) error {
	return s.WithExclusiveTx(ctx, func(tx *store.ExclusiveTx) error {
		var inboxText string
		err := tx.QueryRowContext(ctx, `SELECT inbox FROM workers WHERE id = ?`, id).Scan(&inboxText)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("registry: read inbox for worker %d: %w", id, err)
		}

		var inbox [][]string
		if inboxText != "" {
			if err := decodeInbox(inboxText, &inbox); err != nil {
				return err
			}
		}
		inbox = append(inbox, message)

		encoded, err := encodeInbox(inbox)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE workers SET inbox = ? WHERE id = ?`, encoded, id); err != nil {
			return fmt.Errorf("registry: append inbox for worker %d: %w", id, err)
		}
		return nil
	})
}

// Receive atomically reads and clears worker id's inbox, returning the
// messages it held. The read and the clear run inside one exclusive
// transaction, so a Broadcast landing from another process between
// them can't be dropped.
func Receive(ctx context.Context, s *store.Store, id int64) ([][]string, error) {
	var inbox [][]string
	err := s.WithExclusiveTx(ctx, func(tx *store.ExclusiveTx) error {
		var inboxText string
		err := tx.QueryRowContext(ctx, `SELECT inbox FROM workers WHERE id = ?`, id).Scan(&inboxText)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrWorkerNotFound
		}
		if err != nil {
			return fmt.Errorf("registry: read inbox for worker %d: %w", id, err)
		}

		if inboxText != "" {
			if err := decodeInbox(inboxText, &inbox); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE workers SET inbox = '[]' WHERE id = ?`, id); err != nil {
			return fmt.Errorf("registry: clear inbox for worker %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inbox, nil
}

func decodeInbox(s string, inbox *[][]string) error {
	if err := json.Unmarshal([]byte(s), inbox); err != nil {
		return fmt.Errorf("registry: decode inbox: %w", err)
	}
	return nil
}

func encodeInbox(inbox [][]string) (string, error) {
	if inbox == nil {
		inbox = [][]string{}
	}
	data, err := json.Marshal(inbox)
	if err != nil {
		return "", fmt.Errorf("registry: encode inbox: %w", err)
	}
	return string(data), nil
}
