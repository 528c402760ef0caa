package repair

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercadoq/embedqueue/internal/codec"
	"github.com/mercadoq/embedqueue/internal/job"
	"github.com/mercadoq/embedqueue/internal/registry"
	"github.com/mercadoq/embedqueue/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "embedqueue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRun_ExpiresDeadWorkers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := registry.Register(ctx, s.DB(), nil, registry.RegisterOptions{Host: "h", PID: 1, Status: codec.Null()})
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `UPDATE workers SET notified = ? WHERE id = ?`,
		store.FormatTime(store.Now().Add(-time.Hour)), id)
	require.NoError(t, err)

	res, err := Run(ctx, s, Config{MissingAfter: time.Minute, RemoveAfter: time.Hour, StuckAfter: time.Hour}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.WorkersExpired)

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM workers`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestRun_RemovesOldFinishedJobsWithoutLiveChildren(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := store.InsertJob(ctx, s.DB(), store.InsertJobParams{Task: "t", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 1, Delayed: store.Now()})
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `UPDATE jobs SET state = 'finished', finished = ? WHERE id = ?`,
		store.FormatTime(store.Now().Add(-2*time.Hour)), id)
	require.NoError(t, err)

	res, err := Run(ctx, s, Config{MissingAfter: time.Hour, RemoveAfter: time.Hour, StuckAfter: time.Hour}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.JobsRemoved)

	_, err = store.GetJob(ctx, s.DB(), id)
	assert.ErrorIs(t, err, job.ErrJobNotFound)
}

func TestRun_KeepsFinishedJobWithLiveChild(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	parentID, err := store.InsertJob(ctx, s.DB(), store.InsertJobParams{Task: "parent", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 1, Delayed: store.Now()})
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `UPDATE jobs SET state = 'finished', finished = ? WHERE id = ?`,
		store.FormatTime(store.Now().Add(-2*time.Hour)), parentID)
	require.NoError(t, err)

	_, err = store.InsertJob(ctx, s.DB(), store.InsertJobParams{
		Task: "child", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 1, Delayed: store.Now(), Parents: []int64{parentID},
	})
	require.NoError(t, err)

	_, err = Run(ctx, s, Config{MissingAfter: time.Hour, RemoveAfter: time.Hour, StuckAfter: time.Hour}, nil)
	require.NoError(t, err)

	_, err = store.GetJob(ctx, s.DB(), parentID)
	assert.NoError(t, err, "finished parent with an inactive child must survive the removal sweep")
}

func TestRun_RemovesExpiredInactiveJobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	expired := -time.Hour
	id, err := store.InsertJob(ctx, s.DB(), store.InsertJobParams{
		Task: "t", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 1, Delayed: store.Now(),
		Expires: func() *time.Time { t := store.Now().Add(expired); return &t }(),
	})
	require.NoError(t, err)

	_, err = Run(ctx, s, Config{MissingAfter: time.Hour, RemoveAfter: time.Hour, StuckAfter: time.Hour}, nil)
	require.NoError(t, err)

	_, err = store.GetJob(ctx, s.DB(), id)
	assert.ErrorIs(t, err, job.ErrJobNotFound)
}

func TestRun_ReclaimsOrphanedActiveJobAndAutoRetries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := store.InsertJob(ctx, s.DB(), store.InsertJobParams{Task: "t", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 3, Delayed: store.Now()})
	require.NoError(t, err)
	// Active under a worker id that was never registered.
	_, err = s.DB().ExecContext(ctx, `UPDATE jobs SET state = 'active', worker = ?, started = ? WHERE id = ?`,
		int64(999), store.FormatTime(store.Now()), id)
	require.NoError(t, err)

	res, err := Run(ctx, s, Config{MissingAfter: time.Hour, RemoveAfter: time.Hour, StuckAfter: time.Hour}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.JobsReclaimed)

	got, err := store.GetJob(ctx, s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, job.StateInactive, got.State)
	assert.Equal(t, 1, got.Retries)
}

func TestRun_SkipsForegroundQueueForOrphanReclaim(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := store.InsertJob(ctx, s.DB(), store.InsertJobParams{Task: "t", Args: codec.Null(), Queue: job.ForegroundQueue, Attempts: 1, Delayed: store.Now()})
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `UPDATE jobs SET state = 'active', worker = ?, started = ? WHERE id = ?`,
		int64(999), store.FormatTime(store.Now()), id)
	require.NoError(t, err)

	res, err := Run(ctx, s, Config{MissingAfter: time.Hour, RemoveAfter: time.Hour, StuckAfter: time.Hour}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.JobsReclaimed)

	got, err := store.GetJob(ctx, s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, job.StateActive, got.State)
}

func TestRun_FailsStuckInactiveJobsWithoutAutoRetry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := store.InsertJob(ctx, s.DB(), store.InsertJobParams{Task: "t", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 5, Delayed: store.Now().Add(-2 * time.Hour)})
	require.NoError(t, err)

	res, err := Run(ctx, s, Config{MissingAfter: time.Hour, RemoveAfter: time.Hour, StuckAfter: time.Hour}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.JobsStuck)

	got, err := store.GetJob(ctx, s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, job.StateFailed, got.State)
	assert.Equal(t, 0, got.Retries, "stuck jobs must not be auto-retried")
}
