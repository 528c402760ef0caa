package embedqueue

import (
	"github.com/mercadoq/embedqueue/internal/codec"
	"github.com/mercadoq/embedqueue/internal/complete"
	"github.com/mercadoq/embedqueue/internal/job"
	"github.com/mercadoq/embedqueue/internal/registry"
)

var (
	// ErrJobNotFound is returned by operations scoped to a job id that
	// has no row.
	ErrJobNotFound = job.ErrJobNotFound

	// ErrInvalidArgument marks a caller-supplied value as unusable.
	ErrInvalidArgument = job.ErrInvalidArgument

	// ErrWorkerNotFound is returned by operations scoped to a worker id
	// that has no row.
	ErrWorkerNotFound = registry.ErrWorkerNotFound

	// ErrStale is never returned directly: a stale (id, retries) pair
	// on FinishJob/FailJob/RetryJob instead reports ok=false with a nil
	// error, per the precondition-failed convention those methods use.
	ErrStale = complete.ErrStale

	// ErrInvalidNoteKey is returned by Note when a key contains one of
	// the reserved path characters ('.', '[', ']').
	ErrInvalidNoteKey = codec.ErrInvalidNoteKey
)
