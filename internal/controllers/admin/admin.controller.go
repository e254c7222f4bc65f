package adminController

import (
	"context"
	"fmt"
	"sort"

	"imagevariants/internal/services"
	"imagevariants/internal/types"
	"imagevariants/pkg/logger"
)

type JobScheduler interface {
	JobNames() []string
	IsRunning() bool
	TriggerJobByName(ctx context.Context, jobName string) error
}

type OrphanSweeper interface {
	Sweep(ctx context.Context, remove bool) (*services.OrphanSweepResult, error)
}

type JobsResponse struct {
	Running bool     `json:"running"`
	Jobs    []string `json:"jobs"`
}

type AdminControllerInterface interface {
	ListJobs(ctx context.Context) *JobsResponse
	TriggerJob(ctx context.Context, name string) error
	FindOrphans(ctx context.Context) (*services.OrphanSweepResult, error)
}

type AdminController struct {
	scheduler JobScheduler
	sweeper   OrphanSweeper
	log       logger.Logger
}

func New(scheduler JobScheduler, sweeper OrphanSweeper) *AdminController {
	return &AdminController{
		scheduler: scheduler,
		sweeper:   sweeper,
		log:       logger.New("adminController"),
	}
}

func (c *AdminController) ListJobs(ctx context.Context) *JobsResponse {
	names := c.scheduler.JobNames()
	sort.Strings(names)
	return &JobsResponse{Running: c.scheduler.IsRunning(), Jobs: names}
}

// TriggerJob runs a registered job immediately and waits for it to finish.
func (c *AdminController) TriggerJob(ctx context.Context, name string) error {
	log := c.log.Function("TriggerJob").TraceFromContext(ctx)

	if name == "" {
		return fmt.Errorf("%w: job name is required", types.ErrValidation)
	}

	log.Info("Manually triggering job", "job", name)
	if err := c.scheduler.TriggerJobByName(ctx, name); err != nil {
		return log.Err("failed to trigger job", err, "job", name)
	}
	return nil
}

// FindOrphans reports variants whose original is gone without removing them.
func (c *AdminController) FindOrphans(ctx context.Context) (*services.OrphanSweepResult, error) {
	return c.sweeper.Sweep(ctx, false)
}
