package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imagevariants/internal/events"
	"imagevariants/internal/metrics"
	"imagevariants/internal/models"
	"imagevariants/internal/repositories"
	"imagevariants/internal/storage"
	"imagevariants/internal/types"
	"imagevariants/pkg/logger"

	"gorm.io/gorm"
)

type DeletionDeps struct {
	Images      repositories.ImageRepository
	Attachments repositories.ImageAttachmentRepository
	Family      *FamilyService
	Activity    *ActivityService
	Storage     storage.Storage
	Transaction Transactor
	Events      EventPublisher
}

// DeletionService removes images from the record store and object storage as
// one unit of work. It never cascades from an original to its variants except
// through DeleteFamily.
type DeletionService struct {
	images      repositories.ImageRepository
	attachments repositories.ImageAttachmentRepository
	family      *FamilyService
	activity    *ActivityService
	objects     objectStore
	tx          Transactor
	events      EventPublisher
	log         logger.Logger
}

func NewDeletionService(deps DeletionDeps, storageTimeout time.Duration) *DeletionService {
	return &DeletionService{
		images:      deps.Images,
		attachments: deps.Attachments,
		family:      deps.Family,
		activity:    deps.Activity,
		objects:     newObjectStore(deps.Storage, storageTimeout),
		tx:          deps.Transaction,
		events:      deps.Events,
		log:         logger.New("deletionService"),
	}
}

// DeleteImage detaches, deletes the record and deletes the stored object of a
// single image. Any failure rolls everything back and is returned as an
// *types.ImageError of kind ErrTransactionFailure.
func (s *DeletionService) DeleteImage(ctx context.Context, imageID int) error {
	log := s.log.Function("DeleteImage").TraceFromContext(ctx)

	image, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return err
	}

	err = s.tx.Execute(ctx, func(txCtx context.Context, _ *gorm.DB) error {
		if err := s.removeRecord(txCtx, image); err != nil {
			return err
		}
		return s.objects.delete(txCtx, image.Filename)
	})
	if err != nil {
		metrics.RecordRollback("delete_image")
		return log.Err(
			"image deletion rolled back",
			types.NewImageError("DeleteImage", image.ID, image.DisplayTitle(), types.ErrTransactionFailure, err),
			"imageID", image.ID,
		)
	}

	metrics.RecordDeleted("delete_image", 1)
	s.afterDelete(ctx, image)
	log.Info("image deleted", "imageID", image.ID, "filename", image.Filename)
	return nil
}

// BulkDeleteImages deletes ids as a single batch. Every item is attempted so
// the caller sees all failures, but if any item fails nothing is deleted and
// a *types.BulkDeleteError listing each failure is returned.
func (s *DeletionService) BulkDeleteImages(ctx context.Context, ids []int) (*types.BulkDeleteResult, error) {
	log := s.log.Function("BulkDeleteImages").TraceFromContext(ctx)

	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no image ids given", types.ErrValidation)
	}

	var deleted []*models.Image
	err := s.tx.Execute(ctx, func(txCtx context.Context, tx *gorm.DB) error {
		var failures []types.ItemError

		for i, id := range ids {
			image, err := s.deleteItem(txCtx, tx, fmt.Sprintf("bulk_item_%d", i), id)
			if err != nil {
				failures = append(failures, itemError(id, image, err))
				continue
			}
			deleted = append(deleted, image)
		}
		if len(failures) > 0 {
			return &types.BulkDeleteError{Items: failures}
		}

		for _, image := range deleted {
			if err := s.objects.delete(txCtx, image.Filename); err != nil {
				failures = append(failures, itemError(image.ID, image, err))
			}
		}
		if len(failures) > 0 {
			return &types.BulkDeleteError{Items: failures}
		}
		return nil
	})
	if err != nil {
		metrics.RecordRollback("bulk_delete")

		var bulkErr *types.BulkDeleteError
		if !errors.As(err, &bulkErr) {
			bulkErr = &types.BulkDeleteError{Items: []types.ItemError{{
				Message: err.Error(),
				Err:     fmt.Errorf("%w: %w", types.ErrTransactionFailure, err),
			}}}
		}
		log.Warn("bulk delete rolled back", "requested", len(ids), "failed", len(bulkErr.Items))

		return &types.BulkDeleteResult{
			DeletedItems: []int{},
			Errors:       bulkErr.Items,
		}, bulkErr
	}

	result := &types.BulkDeleteResult{
		DeletedCount: len(deleted),
		DeletedItems: make([]int, 0, len(deleted)),
		Errors:       []types.ItemError{},
	}
	for _, image := range deleted {
		result.DeletedItems = append(result.DeletedItems, image.ID)
		s.afterDelete(ctx, image)
	}
	metrics.RecordDeleted("bulk_delete", result.DeletedCount)

	log.Info("bulk delete committed", "count", result.DeletedCount)
	return result, nil
}

// deleteItem runs one batch item inside a savepoint so a failed statement
// does not poison the rest of the batch.
func (s *DeletionService) deleteItem(
	ctx context.Context,
	tx *gorm.DB,
	savepoint string,
	id int,
) (*models.Image, error) {
	if tx != nil {
		if err := tx.SavePoint(savepoint).Error; err != nil {
			return nil, err
		}
	}

	image, err := s.images.GetByID(ctx, id)
	if err == nil {
		err = s.removeRecord(ctx, image)
	}

	if err != nil && tx != nil {
		if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
			return image, errors.Join(err, rbErr)
		}
	}
	return image, err
}

// DeleteFamily is the opt-in cascade: it deletes every variant of the family
// and then the original in one transaction. It accepts either side of the
// family, and an original id whose row is already gone still removes the
// variants left behind.
func (s *DeletionService) DeleteFamily(ctx context.Context, imageID int) (*types.BulkDeleteResult, error) {
	log := s.log.Function("DeleteFamily").TraceFromContext(ctx)

	originalID, original, err := s.familyRoot(ctx, imageID)
	if err != nil {
		return nil, err
	}

	var removed []*models.Image
	err = s.tx.Execute(ctx, func(txCtx context.Context, _ *gorm.DB) error {
		variants, err := s.images.FindVariants(txCtx, originalID)
		if err != nil {
			return err
		}
		members := variants
		if original != nil {
			members = append(members, original)
		}
		if len(members) == 0 {
			return fmt.Errorf("%w: image %d has no family", types.ErrNotFound, imageID)
		}

		for _, image := range members {
			if err := s.removeRecord(txCtx, image); err != nil {
				return types.NewImageError("DeleteFamily", image.ID, image.DisplayTitle(), types.ErrTransactionFailure, err)
			}
		}
		for _, image := range members {
			if err := s.objects.delete(txCtx, image.Filename); err != nil {
				return types.NewImageError("DeleteFamily", image.ID, image.DisplayTitle(), types.ErrTransactionFailure, err)
			}
		}
		removed = members
		return nil
	})
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		metrics.RecordRollback("delete_family")
		var imageErr *types.ImageError
		if !errors.As(err, &imageErr) {
			err = types.NewImageError("DeleteFamily", imageID, "", types.ErrTransactionFailure, err)
		}
		return nil, log.Err("family deletion rolled back", err, "originalID", originalID)
	}

	result := &types.BulkDeleteResult{
		DeletedCount: len(removed),
		DeletedItems: make([]int, 0, len(removed)),
		Errors:       []types.ItemError{},
	}
	for _, image := range removed {
		result.DeletedItems = append(result.DeletedItems, image.ID)
	}

	metrics.RecordDeleted("delete_family", result.DeletedCount)
	s.family.Invalidate(ctx, originalID)
	s.activity.Record(ctx, originalID, models.ActivityImageDeleted,
		fmt.Sprintf("Deleted image family of %d with %d images", originalID, result.DeletedCount),
		map[string]any{"imageIds": result.DeletedItems, "cascade": true},
	)
	s.publish(ctx, events.FAMILY_DELETED, originalID, map[string]any{"imageIds": result.DeletedItems})

	log.Info("family deleted", "originalID", originalID, "count", result.DeletedCount)
	return result, nil
}

// familyRoot names the original of imageID's family, returning the original
// row when it still exists.
func (s *DeletionService) familyRoot(ctx context.Context, imageID int) (int, *models.Image, error) {
	image, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return imageID, nil, nil
		}
		return 0, nil, err
	}

	resolution := s.family.ResolveOriginal(ctx, image)
	switch {
	case resolution.Status != types.ResolutionFallback:
		return resolution.Original.ID, resolution.Original, nil
	case resolution.OriginalID != 0:
		return resolution.OriginalID, nil, nil
	default:
		return 0, nil, fmt.Errorf("%w: image %d: %w", types.ErrValidation, imageID, resolution.Reason)
	}
}

// removeRecord detaches image from its owners and deletes its row.
func (s *DeletionService) removeRecord(ctx context.Context, image *models.Image) error {
	log := s.log.Function("removeRecord").TraceFromContext(ctx)

	detached, err := s.attachments.DetachAll(ctx, image.ID)
	if err != nil {
		return err
	}
	log.Info("detached image", "imageID", image.ID, "attachments", detached)

	return s.images.Delete(ctx, image.ID)
}

func (s *DeletionService) afterDelete(ctx context.Context, image *models.Image) {
	s.family.InvalidateFor(ctx, image)
	s.activity.Record(ctx, image.ID, models.ActivityImageDeleted,
		fmt.Sprintf("Deleted image: %s", image.DisplayTitle()),
		map[string]any{"filename": image.Filename, "folder": image.Folder},
	)
	s.publish(ctx, events.IMAGE_DELETED, image.ID, map[string]any{"filename": image.Filename})
}

func (s *DeletionService) publish(ctx context.Context, eventType events.MessageType, imageID int, data map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishImageEvent(eventType, imageID, data); err != nil {
		s.log.Function("publish").TraceFromContext(ctx).Warn("failed to publish event",
			"type", eventType,
			"imageID", imageID,
			"error", err,
		)
	}
}

func itemError(id int, image *models.Image, err error) types.ItemError {
	item := types.ItemError{ImageID: id, Message: err.Error(), Err: err}
	if image != nil {
		item.Title = image.DisplayTitle()
	}
	return item
}

func uniqueIDs(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	unique := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique
}
