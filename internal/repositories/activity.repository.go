package repositories

import (
	"context"

	"imagevariants/internal/database"
	. "imagevariants/internal/models"
	"imagevariants/pkg/logger"
)

type ActivityRepository interface {
	Record(ctx context.Context, activity *ActivityRecord) error
	ListByImageIDs(ctx context.Context, imageIDs []int, limit int) ([]*ActivityRecord, error)
}

type activityRepository struct {
	db  database.DB
	log logger.Logger
}

func NewActivityRepository(db database.DB) ActivityRepository {
	return &activityRepository{
		db:  db,
		log: logger.New("activityRepository"),
	}
}

func (r *activityRepository) Record(ctx context.Context, activity *ActivityRecord) error {
	log := r.log.Function("Record")

	if err := conn(ctx, r.db).Create(activity).Error; err != nil {
		return log.Err("failed to record activity", err, "imageID", activity.ImageID, "event", activity.Event)
	}

	return nil
}

// ListByImageIDs returns the newest entries first.
func (r *activityRepository) ListByImageIDs(
	ctx context.Context,
	imageIDs []int,
	limit int,
) ([]*ActivityRecord, error) {
	log := r.log.Function("ListByImageIDs")

	if len(imageIDs) == 0 {
		return []*ActivityRecord{}, nil
	}

	var records []*ActivityRecord
	query := conn(ctx, r.db).Where("image_id IN ?", imageIDs).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, log.Err("failed to list activity", err, "imageIDs", imageIDs)
	}

	return records, nil
}
