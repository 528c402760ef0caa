package embedqueue

import (
	"context"
	"fmt"

	"github.com/mercadoq/embedqueue/internal/complete"
	"github.com/mercadoq/embedqueue/internal/config"
	"github.com/mercadoq/embedqueue/internal/logger"
	"github.com/mercadoq/embedqueue/internal/repair"
	"github.com/mercadoq/embedqueue/internal/report"
	"github.com/mercadoq/embedqueue/internal/store"
)

// Backend is a handle on one embedded queue database. Each process
// embedding the library should open its own Backend against the
// database file rather than share one across processes; SQLite's own
// file locking is what makes that safe.
type Backend struct {
	store   *store.Store
	cfg     config.Config
	backoff complete.Backoff

	repair *repair.Runner
}

// Open opens (creating if necessary) the database file named by cfg
// and brings it up to the current schema version. A nil cfg loads
// configuration the way config.Load does: an optional config.yaml plus
// EMBEDQUEUE_-prefixed environment variables, falling back to defaults.
func Open(cfg *config.Config) (*Backend, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("embedqueue: load config: %w", err)
		}
		cfg = loaded
	}

	logger.Init(cfg.LogLevel, false)

	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	report.StartTime = store.Now()

	return &Backend{
		store:   s,
		cfg:     *cfg,
		backoff: complete.DefaultBackoff,
	}, nil
}

// Close stops the repair loop if running and closes the database
// connection.
func (b *Backend) Close() error {
	b.StopRepair()
	return b.store.Close()
}

// SetBackoff overrides the delay curve FailJob's auto-retry and
// Repair's orphan reclaim use. A nil fn restores complete.DefaultBackoff.
func (b *Backend) SetBackoff(fn complete.Backoff) {
	if fn == nil {
		fn = complete.DefaultBackoff
	}
	b.backoff = fn
}

// StartRepair launches the periodic repair sweep on the interval
// configured at Open. Calling it again while already running is a
// no-op; call StopRepair first to change the schedule.
func (b *Backend) StartRepair(ctx context.Context) {
	if b.repair != nil {
		return
	}
	b.repair = repair.NewRunner(b.store, repair.Config{
		MissingAfter: b.cfg.Repair.MissingAfter,
		RemoveAfter:  b.cfg.Repair.RemoveAfter,
		StuckAfter:   b.cfg.Repair.StuckAfter,
	}, b.cfg.Repair.Interval, b.backoff)
	b.repair.Start(ctx)
}

// StopRepair stops the periodic repair sweep started by StartRepair,
// if one is running.
func (b *Backend) StopRepair() {
	if b.repair == nil {
		return
	}
	b.repair.Stop()
	b.repair = nil
}
