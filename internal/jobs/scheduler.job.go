package jobs

import (
	"imagevariants/config"
	"imagevariants/internal/services"
	"imagevariants/pkg/logger"
)

func RegisterAllJobs(
	schedulerService *services.SchedulerService,
	config config.Config,
	svc services.Service,
) error {
	log := logger.New("jobs").Function("RegisterAllJobs")

	if !config.SchedulerEnabled {
		log.Info("Scheduler disabled, skipping job registration")
		return nil
	}

	orphanSweepJob := NewOrphanSweepJob(
		svc.OrphanSweep,
		config.OrphanSweepDelete,
		services.Hourly,
	)
	if err := schedulerService.AddJob(orphanSweepJob); err != nil {
		return log.Err("failed to register orphan variant sweep job", err)
	}
	log.Info("Registered orphan variant sweep job", "schedule", "hourly", "remove", config.OrphanSweepDelete)

	return nil
}
