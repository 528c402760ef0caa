package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercadoq/embedqueue/internal/codec"
	"github.com/mercadoq/embedqueue/internal/job"
	"github.com/mercadoq/embedqueue/internal/lock"
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

func TestStats_CountsEachBucket(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	activeID, err := store.InsertJob(ctx, s.DB(), store.InsertJobParams{Task: "t", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 1, Delayed: store.Now()})
	require.NoError(t, err)
	workerID, err := registry.Register(ctx, s.DB(), nil, registry.RegisterOptions{Host: "h", PID: 1, Status: codec.Null()})
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `UPDATE jobs SET state = 'active', worker = ?, started = ? WHERE id = ?`,
		workerID, store.FormatTime(store.Now()), activeID)
	require.NoError(t, err)

	_, err = store.InsertJob(ctx, s.DB(), store.InsertJobParams{Task: "t", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 1, Delayed: store.Now()})
	require.NoError(t, err)

	_, err = lock.Lock(ctx, s, "a", time.Minute, 1)
	require.NoError(t, err)

	st, err := Stats(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.ActiveJobs)
	assert.Equal(t, int64(1), st.InactiveJobs)
	assert.Equal(t, int64(1), st.ActiveWorkers)
	assert.Equal(t, int64(0), st.InactiveWorkers)
	assert.Equal(t, int64(1), st.ActiveLocks)
	assert.Equal(t, int64(2), st.EnqueuedJobs)
}

func TestStats_EnqueuedJobsSurvivesDeletion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := store.InsertJob(ctx, s.DB(), store.InsertJobParams{Task: "t", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 1, Delayed: store.Now()})
	require.NoError(t, err)
	_, err = store.InsertJob(ctx, s.DB(), store.InsertJobParams{Task: "t", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 1, Delayed: store.Now()})
	require.NoError(t, err)

	removed, err := store.RemoveJob(ctx, s.DB(), id)
	require.NoError(t, err)
	require.True(t, removed)

	st, err := Stats(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.EnqueuedJobs, "the high-water mark must not drop when a row is deleted")
	assert.Equal(t, int64(1), st.InactiveJobs)
}

func TestHistory_ReturnsTwentyFourBuckets(t *testing.T) {
	s := openTestStore(t)
	buckets, err := History(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, buckets, 24)
}

func TestHistory_CountsFinishedInCorrectHour(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := store.InsertJob(ctx, s.DB(), store.InsertJobParams{Task: "t", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 1, Delayed: store.Now()})
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `UPDATE jobs SET state = 'finished', finished = ? WHERE id = ?`,
		store.FormatTime(store.Now()), id)
	require.NoError(t, err)

	buckets, err := History(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, int64(1), buckets[23].FinishedJobs)
}

func TestListJobs_PaginatesAndFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.InsertJob(ctx, s.DB(), store.InsertJobParams{Task: "t", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 1, Delayed: store.Now()})
		require.NoError(t, err)
	}

	jobs, total, err := ListJobs(ctx, s, 0, 2, JobFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, jobs, 2)
	assert.Greater(t, jobs[0].ID, jobs[1].ID, "must be descending by id")
}

func TestListJobs_FiltersByState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := store.InsertJob(ctx, s.DB(), store.InsertJobParams{Task: "t", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 1, Delayed: store.Now()})
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `UPDATE jobs SET state = 'finished' WHERE id = ?`, id)
	require.NoError(t, err)
	_, err = store.InsertJob(ctx, s.DB(), store.InsertJobParams{Task: "t", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 1, Delayed: store.Now()})
	require.NoError(t, err)

	jobs, total, err := ListJobs(ctx, s, 0, 10, JobFilter{States: []job.State{job.StateFinished}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
}

func TestListWorkers_PaginatesAndOrdersDescending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := registry.Register(ctx, s.DB(), nil, registry.RegisterOptions{Host: "h", PID: i, Status: codec.Null()})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	workers, total, err := ListWorkers(ctx, s, 0, 10, WorkerFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, workers, 3)
	assert.Equal(t, ids[2], workers[0].ID)
}

func TestListLocks_FiltersByName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := lock.Lock(ctx, s, "import", time.Minute, 1)
	require.NoError(t, err)
	_, err = lock.Lock(ctx, s, "export", time.Minute, 1)
	require.NoError(t, err)

	locks, total, err := ListLocks(ctx, s, 0, 10, LockFilter{Names: []string{"import"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, locks, 1)
	assert.Equal(t, "import", locks[0].Name)
}
