package jobs

import (
	"context"
	"time"

	"imagevariants/internal/services"
	"imagevariants/pkg/logger"
)

const orphanSweepTimeout = 5 * time.Minute

type OrphanSweepJob struct {
	sweep    *services.OrphanSweepService
	remove   bool
	log      logger.Logger
	schedule services.Schedule
}

func NewOrphanSweepJob(
	sweep *services.OrphanSweepService,
	remove bool,
	schedule services.Schedule,
) *OrphanSweepJob {
	log := logger.New("orphanSweepJob")
	log.Info("Creating new orphan variant sweep job", "schedule", schedule, "remove", remove)

	return &OrphanSweepJob{
		sweep:    sweep,
		remove:   remove,
		log:      log,
		schedule: schedule,
	}
}

func (j *OrphanSweepJob) Name() string {
	return "OrphanVariantSweep"
}

func (j *OrphanSweepJob) Execute(ctx context.Context) error {
	log := j.log.Function("Execute")

	ctx, cancel := context.WithTimeout(ctx, orphanSweepTimeout)
	defer cancel()

	log.Info("Starting orphan variant sweep", "remove", j.remove)

	result, err := j.sweep.Sweep(ctx, j.remove)
	if err != nil {
		return log.Err("orphan variant sweep failed", err)
	}

	log.Info("Orphan variant sweep completed", "found", result.Found, "deleted", len(result.Deleted))
	return nil
}

func (j *OrphanSweepJob) Schedule() services.Schedule {
	return j.schedule
}
