package services

import (
	"context"
	"fmt"

	"imagevariants/internal/models"
	"imagevariants/internal/repositories"
	"imagevariants/internal/types"
	"imagevariants/pkg/logger"
)

type AttachmentService struct {
	images      repositories.ImageRepository
	attachments repositories.ImageAttachmentRepository
	activity    *ActivityService
	log         logger.Logger
}

func NewAttachmentService(
	images repositories.ImageRepository,
	attachments repositories.ImageAttachmentRepository,
	activity *ActivityService,
) *AttachmentService {
	return &AttachmentService{
		images:      images,
		attachments: attachments,
		activity:    activity,
		log:         logger.New("attachmentService"),
	}
}

func (s *AttachmentService) Attach(
	ctx context.Context,
	imageID int,
	req types.AttachRequest,
) (*models.ImageAttachment, error) {
	if err := validateAttachRequest(req); err != nil {
		return nil, err
	}

	if _, err := s.images.GetByID(ctx, imageID); err != nil {
		return nil, err
	}

	attachment, err := s.attachments.Attach(ctx, &models.ImageAttachment{
		ImageID:        imageID,
		AttachableType: req.AttachableType,
		AttachableID:   req.AttachableID,
	})
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, imageID, models.ActivityImageAttached,
		fmt.Sprintf("Attached to %s %d", req.AttachableType, req.AttachableID),
		map[string]any{"attachableType": req.AttachableType, "attachableId": req.AttachableID},
	)
	return attachment, nil
}

func (s *AttachmentService) Detach(ctx context.Context, imageID int, req types.AttachRequest) error {
	log := s.log.Function("Detach").TraceFromContext(ctx)

	if err := validateAttachRequest(req); err != nil {
		return err
	}

	count, err := s.attachments.Detach(ctx, imageID, req.AttachableType, req.AttachableID)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: image %d is not attached to %s %d",
			types.ErrNotFound, imageID, req.AttachableType, req.AttachableID)
	}

	log.Info("image detached", "imageID", imageID, "attachableType", req.AttachableType, "attachableID", req.AttachableID)
	s.activity.Record(ctx, imageID, models.ActivityImageDetached,
		fmt.Sprintf("Detached from %s %d", req.AttachableType, req.AttachableID),
		map[string]any{"attachableType": req.AttachableType, "attachableId": req.AttachableID},
	)
	return nil
}

func (s *AttachmentService) List(ctx context.Context, imageID int) ([]*models.ImageAttachment, error) {
	return s.attachments.ListByImage(ctx, imageID)
}

func validateAttachRequest(req types.AttachRequest) error {
	if !models.IsAttachableType(req.AttachableType) {
		return fmt.Errorf("%w: unknown attachable type %q", types.ErrValidation, req.AttachableType)
	}
	if req.AttachableID <= 0 {
		return fmt.Errorf("%w: attachable id must be positive", types.ErrValidation)
	}
	return nil
}
