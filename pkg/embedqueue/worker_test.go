package embedqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercadoq/embedqueue/internal/codec"
)

func TestRegisterWorker_NewThenHeartbeat(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	id, err := b.RegisterWorker(ctx, 0, codec.String("idle"))
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	again, err := b.RegisterWorker(ctx, id, codec.String("busy"))
	require.NoError(t, err)
	assert.Equal(t, id, again, "heartbeat on an existing id keeps the same id")
}

func TestRegisterWorker_FallsBackToFreshRowWhenIDGone(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	id, err := b.RegisterWorker(ctx, 0, codec.Null())
	require.NoError(t, err)
	require.NoError(t, b.UnregisterWorker(ctx, id))

	newID, err := b.RegisterWorker(ctx, id, codec.Null())
	require.NoError(t, err)
	assert.NotEqual(t, id, newID)
}

func TestBroadcastAndReceive_DeliversToTargetedWorker(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	id1, err := b.RegisterWorker(ctx, 0, codec.Null())
	require.NoError(t, err)
	id2, err := b.RegisterWorker(ctx, 0, codec.Null())
	require.NoError(t, err)

	ok, err := b.Broadcast(ctx, "pause", []string{"now"}, []int64{id1})
	require.NoError(t, err)
	assert.True(t, ok)

	msgs, err := b.Receive(ctx, id1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"pause", "now"}, msgs[0])

	msgs, err = b.Receive(ctx, id2)
	require.NoError(t, err)
	assert.Empty(t, msgs, "broadcast scoped to id1 must not reach id2")
}

func TestReceive_UnknownWorkerReturnsErrWorkerNotFound(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Receive(ctx, 999)
	assert.ErrorIs(t, err, ErrWorkerNotFound)
}
