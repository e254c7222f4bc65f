package repositories

import (
	"context"

	"imagevariants/internal/database"
	. "imagevariants/internal/models"
	"imagevariants/pkg/logger"
)

type ImageAttachmentRepository interface {
	Attach(ctx context.Context, attachment *ImageAttachment) (*ImageAttachment, error)
	Detach(ctx context.Context, imageID int, attachableType string, attachableID int) (int64, error)
	DetachAll(ctx context.Context, imageID int) (int64, error)
	ListByImage(ctx context.Context, imageID int) ([]*ImageAttachment, error)
}

type imageAttachmentRepository struct {
	db  database.DB
	log logger.Logger
}

func NewImageAttachmentRepository(db database.DB) ImageAttachmentRepository {
	return &imageAttachmentRepository{
		db:  db,
		log: logger.New("imageAttachmentRepository"),
	}
}

func (r *imageAttachmentRepository) Attach(
	ctx context.Context,
	attachment *ImageAttachment,
) (*ImageAttachment, error) {
	log := r.log.Function("Attach")

	if err := conn(ctx, r.db).Create(attachment).Error; err != nil {
		err = translateError(err)
		if isConflict(err) {
			return nil, err
		}
		return nil, log.Err("failed to attach image", err,
			"imageID", attachment.ImageID,
			"attachableType", attachment.AttachableType,
			"attachableID", attachment.AttachableID,
		)
	}

	return attachment, nil
}

func (r *imageAttachmentRepository) Detach(
	ctx context.Context,
	imageID int,
	attachableType string,
	attachableID int,
) (int64, error) {
	log := r.log.Function("Detach")

	result := conn(ctx, r.db).
		Where("image_id = ? AND attachable_type = ? AND attachable_id = ?", imageID, attachableType, attachableID).
		Delete(&ImageAttachment{})
	if result.Error != nil {
		return 0, log.Err("failed to detach image", result.Error, "imageID", imageID)
	}

	return result.RowsAffected, nil
}

// DetachAll removes every attachment of imageID and returns how many were removed.
func (r *imageAttachmentRepository) DetachAll(ctx context.Context, imageID int) (int64, error) {
	log := r.log.Function("DetachAll")

	result := conn(ctx, r.db).Where("image_id = ?", imageID).Delete(&ImageAttachment{})
	if result.Error != nil {
		return 0, log.Err("failed to detach image relationships", result.Error, "imageID", imageID)
	}

	return result.RowsAffected, nil
}

func (r *imageAttachmentRepository) ListByImage(ctx context.Context, imageID int) ([]*ImageAttachment, error) {
	log := r.log.Function("ListByImage")

	var attachments []*ImageAttachment
	if err := conn(ctx, r.db).Where("image_id = ?", imageID).Order("id").Find(&attachments).Error; err != nil {
		return nil, log.Err("failed to list attachments", err, "imageID", imageID)
	}

	return attachments, nil
}
