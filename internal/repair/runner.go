package repair

import (
	"context"
	"sync"
	"time"

	"github.com/mercadoq/embedqueue/internal/complete"
	"github.com/mercadoq/embedqueue/internal/logger"
	"github.com/mercadoq/embedqueue/internal/metrics"
	"github.com/mercadoq/embedqueue/internal/store"
)

// Runner drives Run on a fixed interval via a ticker-driven background
// loop. Repair also always runs once on demand via Run itself; Runner
// only owns the periodic schedule.
type Runner struct {
	store    *store.Store
	cfg      Config
	interval time.Duration
	backoff  complete.Backoff

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRunner builds a Runner that sweeps every interval.
func NewRunner(s *store.Store, cfg Config, interval time.Duration, backoff complete.Backoff) *Runner {
	return &Runner{
		store:    s,
		cfg:      cfg,
		interval: interval,
		backoff:  backoff,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop in a goroutine.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop signals the loop to exit and waits for it to do so.
func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			res, err := Run(ctx, r.store, r.cfg, r.backoff)
			log := logger.WithComponent("repair")
			if err != nil {
				log.Error().Err(err).Msg("repair sweep failed")
				continue
			}
			metrics.RecordRepairSweep(res.JobsRemoved, res.JobsReclaimed, res.JobsStuck)
			for i := int64(0); i < res.WorkersExpired; i++ {
				metrics.RecordWorkerExpired()
			}
			log.Debug().
				Int64("workers_expired", res.WorkersExpired).
				Int64("jobs_removed", res.JobsRemoved).
				Int64("jobs_reclaimed", res.JobsReclaimed).
				Int64("jobs_stuck", res.JobsStuck).
				Msg("repair sweep complete")
		}
	}
}
