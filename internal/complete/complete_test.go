package complete

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercadoq/embedqueue/internal/codec"
	"github.com/mercadoq/embedqueue/internal/job"
	"github.com/mercadoq/embedqueue/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "embedqueue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func activateJob(t *testing.T, s *store.Store, workerID int64, attempts int) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := store.InsertJob(ctx, s.DB(), store.InsertJobParams{
		Task: "t", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: attempts, Delayed: store.Now(),
	})
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `UPDATE jobs SET state = 'active', worker = ?, started = ? WHERE id = ?`,
		workerID, store.FormatTime(store.Now()), id)
	require.NoError(t, err)
	return id
}

func TestFinishJob_MarksFinishedAndStoresResult(t *testing.T) {
	s := openTestStore(t)
	id := activateJob(t, s, 1, 1)

	err := FinishJob(context.Background(), s.DB(), id, 0, codec.String("ok"))
	require.NoError(t, err)

	got, err := store.GetJob(context.Background(), s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, job.StateFinished, got.State)
	result, _ := got.Result.String()
	assert.Equal(t, "ok", result)
	assert.NotNil(t, got.Finished)
}

func TestFinishJob_StaleRetriesIsRejected(t *testing.T) {
	s := openTestStore(t)
	id := activateJob(t, s, 1, 1)

	err := FinishJob(context.Background(), s.DB(), id, 5, codec.Null())
	assert.ErrorIs(t, err, ErrStale)
}

func TestFailJob_TerminalWhenAttemptsExhausted(t *testing.T) {
	s := openTestStore(t)
	id := activateJob(t, s, 1, 1)

	err := FailJob(context.Background(), s.DB(), id, 0, codec.String("boom"), nil)
	require.NoError(t, err)

	got, err := store.GetJob(context.Background(), s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, job.StateFailed, got.State)
	assert.Equal(t, 0, got.Retries)
}

func TestFailJob_AutoRetriesWhenAttemptsRemain(t *testing.T) {
	s := openTestStore(t)
	id := activateJob(t, s, 1, 3)

	err := FailJob(context.Background(), s.DB(), id, 0, codec.String("transient"), func(retries int) time.Duration {
		return time.Minute
	})
	require.NoError(t, err)

	got, err := store.GetJob(context.Background(), s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, job.StateInactive, got.State)
	assert.Equal(t, 1, got.Retries)
	assert.Nil(t, got.Worker)
	assert.Nil(t, got.Started)
	assert.NotNil(t, got.Retried)
	assert.True(t, got.Delayed.After(store.Now()))
}

func TestRetryJob_ExplicitRetryAdvancesRetriesAndReschedules(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := store.InsertJob(ctx, s.DB(), store.InsertJobParams{
		Task: "t", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 1, Delayed: store.Now(),
	})
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `UPDATE jobs SET state = 'failed' WHERE id = ?`, id)
	require.NoError(t, err)

	newQueue := "priority"
	err = RetryJob(ctx, s.DB(), id, 0, RetryOptions{Delay: time.Minute, Queue: &newQueue})
	require.NoError(t, err)

	got, err := store.GetJob(ctx, s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, job.StateInactive, got.State)
	assert.Equal(t, 1, got.Retries)
	assert.Equal(t, "priority", got.Queue)
	assert.True(t, got.Delayed.After(store.Now()))
}

func TestRetryJob_StaleRetriesIsRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := store.InsertJob(ctx, s.DB(), store.InsertJobParams{
		Task: "t", Args: codec.Null(), Queue: job.DefaultQueue, Attempts: 1, Delayed: store.Now(),
	})
	require.NoError(t, err)

	err = RetryJob(ctx, s.DB(), id, 5, RetryOptions{})
	assert.ErrorIs(t, err, ErrStale)
}

func TestDefaultBackoff_GrowsWithRetries(t *testing.T) {
	assert.Equal(t, 15*time.Second, DefaultBackoff(0))
	assert.Greater(t, DefaultBackoff(3), DefaultBackoff(1))
}
