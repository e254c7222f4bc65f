package services

import (
	"context"

	"imagevariants/internal/models"
	"imagevariants/internal/repositories"
	"imagevariants/pkg/logger"
)

type ActivityService struct {
	activity repositories.ActivityRepository
	family   *FamilyService
	log      logger.Logger
}

func NewActivityService(activity repositories.ActivityRepository, family *FamilyService) *ActivityService {
	return &ActivityService{
		activity: activity,
		family:   family,
		log:      logger.New("activityService"),
	}
}

// Record appends an audit entry. Failures are logged and never returned: the
// operation being audited has already committed.
func (s *ActivityService) Record(
	ctx context.Context,
	imageID int,
	event, description string,
	properties map[string]any,
) {
	if s == nil || s.activity == nil {
		return
	}
	log := s.log.Function("Record").TraceFromContext(ctx)

	record := &models.ActivityRecord{
		ImageID:     imageID,
		Event:       event,
		Description: description,
		Properties:  properties,
	}
	if err := s.activity.Record(ctx, record); err != nil {
		log.Warn("failed to record activity", "imageID", imageID, "event", event, "error", err)
	}
}

// GetActivityForFamily returns the newest activity across the family of
// imageID, resolving from either side.
func (s *ActivityService) GetActivityForFamily(ctx context.Context, imageID int) ([]*models.ActivityRecord, error) {
	log := s.log.Function("GetActivityForFamily").TraceFromContext(ctx)

	family, err := s.family.GetFamilyByID(ctx, imageID)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(family.All)+1)
	seen := make(map[int]bool, len(family.All)+1)
	for _, image := range family.All {
		if !seen[image.ID] {
			seen[image.ID] = true
			ids = append(ids, image.ID)
		}
	}
	// A deleted original still has history.
	if family.Resolution.IsFallback() && family.Resolution.OriginalID != 0 && !seen[family.Resolution.OriginalID] {
		ids = append(ids, family.Resolution.OriginalID)
	}

	records, err := s.activity.ListByImageIDs(ctx, ids, ActivityFamilyLimit)
	if err != nil {
		return nil, log.Err("failed to list family activity", err, "imageID", imageID)
	}

	return records, nil
}
