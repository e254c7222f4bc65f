package services

import (
	"context"
	"errors"

	"imagevariants/internal/metrics"
	"imagevariants/internal/models"
	"imagevariants/internal/repositories"
	"imagevariants/pkg/logger"
)

type OrphanSweepResult struct {
	Found   int   `json:"found"`
	Deleted []int `json:"deleted"`
}

// OrphanSweepService finds variants whose original was deleted without the
// family cascade and, when asked, deletes them.
type OrphanSweepService struct {
	images   repositories.ImageRepository
	deletion *DeletionService
	log      logger.Logger
}

func NewOrphanSweepService(images repositories.ImageRepository, deletion *DeletionService) *OrphanSweepService {
	return &OrphanSweepService{
		images:   images,
		deletion: deletion,
		log:      logger.New("orphanSweepService"),
	}
}

func (s *OrphanSweepService) Sweep(ctx context.Context, remove bool) (*OrphanSweepResult, error) {
	log := s.log.Function("Sweep").TraceFromContext(ctx)
	defer log.Timer("orphan variant sweep")()

	orphans, err := s.images.FindOrphanVariants(ctx, OrphanSweepBatchSize)
	if err != nil {
		return nil, err
	}

	metrics.OrphanVariants.Set(float64(len(orphans)))
	result := &OrphanSweepResult{Found: len(orphans), Deleted: []int{}}
	if len(orphans) == 0 || !remove {
		if len(orphans) > 0 {
			log.Warn("orphan variants found", "count", len(orphans), "ids", orphanIDs(orphans))
		}
		return result, nil
	}

	var errs []error
	for _, orphan := range orphans {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := s.deletion.DeleteImage(ctx, orphan.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		result.Deleted = append(result.Deleted, orphan.ID)
	}

	log.Info("orphan variants removed", "found", result.Found, "deleted", len(result.Deleted), "failed", len(errs))
	return result, errors.Join(errs...)
}

func orphanIDs(images []*models.Image) []int {
	ids := make([]int, 0, len(images))
	for _, image := range images {
		ids = append(ids, image.ID)
	}
	return ids
}
