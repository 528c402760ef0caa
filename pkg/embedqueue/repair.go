package embedqueue

import (
	"context"

	"github.com/mercadoq/embedqueue/internal/metrics"
	"github.com/mercadoq/embedqueue/internal/repair"
)

// Repair runs one maintenance sweep synchronously: expiring dead
// workers, removing old terminal and expired jobs, reclaiming orphaned
// active jobs, and force-failing jobs stuck inactive too long. It's the
// same sweep StartRepair schedules on a ticker, callable directly for
// tests or an on-demand admin action.
func (b *Backend) Repair(ctx context.Context) error {
	res, err := repair.Run(ctx, b.store, repair.Config{
		MissingAfter: b.cfg.Repair.MissingAfter,
		RemoveAfter:  b.cfg.Repair.RemoveAfter,
		StuckAfter:   b.cfg.Repair.StuckAfter,
	}, b.backoff)
	if err != nil {
		return err
	}

	metrics.RecordRepairSweep(res.JobsRemoved, res.JobsReclaimed, res.JobsStuck)
	for i := int64(0); i < res.WorkersExpired; i++ {
		metrics.RecordWorkerExpired()
	}
	return nil
}
