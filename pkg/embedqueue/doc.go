// Package embedqueue is an embeddable, SQLite-backed job queue: no
// broker process, no network hop, just a database file any number of
// processes on the same machine can open concurrently. A Backend wraps
// that file and exposes enqueue, dequeue, completion, retry, worker
// registration, locking and maintenance as plain Go methods.
//
// Typical use pairs one Backend per process with the caller's own
// worker loop:
//
//	b, err := embedqueue.Open(nil)
//	if err != nil { ... }
//	defer b.Close()
//
//	id, err := b.Enqueue(ctx, "send_email", codec.String(addr))
//	...
//	j, err := b.Dequeue(ctx, workerID, 30*time.Second)
//	if j != nil {
//		result := doWork(j)
//		b.FinishJob(ctx, j.ID, j.Retries, result)
//	}
//
// Everything here runs in-process against the same *sql.DB connection;
// cross-process coordination is SQLite's own file locking plus the
// exclusive transactions internal/store wraps for dispatch and locks.
package embedqueue
