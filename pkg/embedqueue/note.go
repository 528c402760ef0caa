package embedqueue

import (
	"context"

	"github.com/mercadoq/embedqueue/internal/codec"
	"github.com/mercadoq/embedqueue/internal/store"
)

// Note merges a set of key/value updates into job id's notes map. A nil
// value for a key removes it; anything else sets or overwrites it.
// Every key is validated before any SQL executes, so a bad key leaves
// the row untouched.
func (b *Backend) Note(ctx context.Context, id int64, notes map[string]*codec.Value) (bool, error) {
	for key := range notes {
		if err := codec.ValidateNoteKey(key); err != nil {
			return false, err
		}
	}

	j, err := store.GetJob(ctx, b.store.DB(), id)
	if err != nil {
		return false, err
	}

	merged := codec.MergeNotes(j.Notes, notes)
	return store.UpdateJobNotes(ctx, b.store.DB(), id, merged)
}
