package adminController

import (
	"context"
	"testing"

	"imagevariants/internal/services"
	"imagevariants/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
	runs int
}

func (j *stubJob) Name() string { return j.name }
func (j *stubJob) Schedule() services.Schedule { return services.Hourly }
func (j *stubJob) Execute(context.Context) error {
	j.runs++
	return nil
}

type stubSweeper struct {
	removeCalls []bool
}

func (s *stubSweeper) Sweep(_ context.Context, remove bool) (*services.OrphanSweepResult, error) {
	s.removeCalls = append(s.removeCalls, remove)
	return &services.OrphanSweepResult{Found: 2, Deleted: []int{}}, nil
}

func TestAdminController_Jobs(t *testing.T) {
	scheduler := services.NewSchedulerService()
	sweep := &stubJob{name: "OrphanVariantSweep"}
	other := &stubJob{name: "Another"}
	require.NoError(t, scheduler.AddJob(sweep))
	require.NoError(t, scheduler.AddJob(other))

	controller := New(scheduler, &stubSweeper{})
	ctx := context.Background()

	jobs := controller.ListJobs(ctx)
	assert.False(t, jobs.Running)
	assert.Equal(t, []string{"Another", "OrphanVariantSweep"}, jobs.Jobs)

	require.NoError(t, controller.TriggerJob(ctx, "OrphanVariantSweep"))
	assert.Equal(t, 1, sweep.runs)
	assert.Zero(t, other.runs)

	assert.ErrorIs(t, controller.TriggerJob(ctx, "missing"), types.ErrNotFound)
	assert.ErrorIs(t, controller.TriggerJob(ctx, ""), types.ErrValidation)
}

func TestAdminController_FindOrphansNeverRemoves(t *testing.T) {
	sweeper := &stubSweeper{}
	controller := New(services.NewSchedulerService(), sweeper)

	result, err := controller.FindOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Found)
	assert.Equal(t, []bool{false}, sweeper.removeCalls)
}
