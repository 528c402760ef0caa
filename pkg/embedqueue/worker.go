package embedqueue

import (
	"context"
	"os"

	"github.com/mercadoq/embedqueue/internal/codec"
	"github.com/mercadoq/embedqueue/internal/registry"
)

// RegisterWorker registers a new worker and returns its id if id is 0,
// or refreshes an existing worker's heartbeat and status otherwise. If
// id is non-zero but its row is gone (e.g. repaired away), a fresh row
// is inserted and its new id returned.
func (b *Backend) RegisterWorker(ctx context.Context, id int64, status codec.Value) (int64, error) {
	var idPtr *int64
	if id != 0 {
		idPtr = &id
	}

	host, _ := os.Hostname()
	return registry.Register(ctx, b.store.DB(), idPtr, registry.RegisterOptions{
		Host:   host,
		PID:    os.Getpid(),
		Status: status,
	})
}

// UnregisterWorker deletes worker id's row. Any job left active under
// it becomes orphaned and is reclaimed by the next repair sweep.
func (b *Backend) UnregisterWorker(ctx context.Context, id int64) error {
	return registry.Unregister(ctx, b.store.DB(), id)
}

// Broadcast appends [command, args...] to the inbox of every worker in
// ids, or every registered worker if ids is empty.
func (b *Backend) Broadcast(ctx context.Context, command string, args []string, ids []int64) (bool, error) {
	if err := registry.Broadcast(ctx, b.store, command, args, ids); err != nil {
		return false, err
	}
	return true, nil
}

// Receive atomically reads and clears workerID's inbox, returning the
// messages it held.
func (b *Backend) Receive(ctx context.Context, workerID int64) ([][]string, error) {
	return registry.Receive(ctx, b.store, workerID)
}
