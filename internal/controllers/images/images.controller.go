package imagesController

import (
	"context"
	"fmt"

	"imagevariants/internal/models"
	"imagevariants/internal/services"
	"imagevariants/internal/types"
	"imagevariants/pkg/logger"
)

type DeriveVariantsRequest struct {
	Types []string `json:"types"`
}

type BulkDeleteRequest struct {
	IDs []int `json:"ids"`
}

type EnqueueResponse struct {
	ImageID int      `json:"imageId"`
	Types   []string `json:"types"`
	Queued  bool     `json:"queued"`
}

type ImagesControllerInterface interface {
	Upload(ctx context.Context, req types.UploadRequest) (*models.Image, error)
	DeriveVariants(ctx context.Context, imageID int, req *DeriveVariantsRequest) (*types.DerivationResult, error)
	EnqueueDerivation(ctx context.Context, imageID int, req *DeriveVariantsRequest) (*EnqueueResponse, error)
	DeleteVariants(ctx context.Context, imageID int) (*types.DeleteVariantsResult, error)
	GetFamily(ctx context.Context, imageID int) (*types.FamilyView, error)
	DeleteImage(ctx context.Context, imageID int) error
	DeleteFamily(ctx context.Context, imageID int) (*types.BulkDeleteResult, error)
	BulkDeleteImages(ctx context.Context, req *BulkDeleteRequest) (*types.BulkDeleteResult, error)
	GetActivity(ctx context.Context, imageID int) ([]*models.ActivityRecord, error)
	ListAttachments(ctx context.Context, imageID int) ([]*models.ImageAttachment, error)
	Attach(ctx context.Context, imageID int, req *types.AttachRequest) (*models.ImageAttachment, error)
	Detach(ctx context.Context, imageID int, req *types.AttachRequest) error
}

type ImagesController struct {
	upload     *services.UploadService
	derivation *services.DerivationService
	deletion   *services.DeletionService
	family     *services.FamilyService
	activity   *services.ActivityService
	attachment *services.AttachmentService
	queue      services.DerivationEnqueuer
	log        logger.Logger
}

// New builds the images controller. queue may be nil, in which case
// EnqueueDerivation reports a validation error.
func New(svc services.Service, queue services.DerivationEnqueuer) *ImagesController {
	return &ImagesController{
		upload:     svc.Upload,
		derivation: svc.Derivation,
		deletion:   svc.Deletion,
		family:     svc.Family,
		activity:   svc.Activity,
		attachment: svc.Attachment,
		queue:      queue,
		log:        logger.New("imagesController"),
	}
}

func (c *ImagesController) Upload(ctx context.Context, req types.UploadRequest) (*models.Image, error) {
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: file is required", types.ErrValidation)
	}
	return c.upload.Upload(ctx, req)
}

func (c *ImagesController) DeriveVariants(
	ctx context.Context,
	imageID int,
	req *DeriveVariantsRequest,
) (*types.DerivationResult, error) {
	if err := validateID(imageID); err != nil {
		return nil, err
	}
	return c.derivation.DeriveVariants(ctx, imageID, requestedTypes(req))
}

func (c *ImagesController) EnqueueDerivation(
	ctx context.Context,
	imageID int,
	req *DeriveVariantsRequest,
) (*EnqueueResponse, error) {
	log := c.log.Function("EnqueueDerivation").TraceFromContext(ctx)

	if err := validateID(imageID); err != nil {
		return nil, err
	}
	if c.queue == nil {
		return nil, fmt.Errorf("%w: asynchronous derivation is not configured", types.ErrValidation)
	}

	variantTypes, err := services.NormalizeVariantTypes(requestedTypes(req))
	if err != nil {
		return nil, err
	}

	request := types.DerivationRequest{ImageID: imageID, Types: variantTypes}
	if err := c.queue.Enqueue(ctx, request); err != nil {
		return nil, log.Err("failed to enqueue derivation", err, "imageID", imageID)
	}

	return &EnqueueResponse{ImageID: imageID, Types: variantTypes, Queued: true}, nil
}

func (c *ImagesController) DeleteVariants(ctx context.Context, imageID int) (*types.DeleteVariantsResult, error) {
	if err := validateID(imageID); err != nil {
		return nil, err
	}
	return c.derivation.DeleteVariants(ctx, imageID)
}

func (c *ImagesController) GetFamily(ctx context.Context, imageID int) (*types.FamilyView, error) {
	if err := validateID(imageID); err != nil {
		return nil, err
	}
	return c.family.GetFamilyByID(ctx, imageID)
}

func (c *ImagesController) DeleteImage(ctx context.Context, imageID int) error {
	if err := validateID(imageID); err != nil {
		return err
	}
	return c.deletion.DeleteImage(ctx, imageID)
}

func (c *ImagesController) DeleteFamily(ctx context.Context, imageID int) (*types.BulkDeleteResult, error) {
	if err := validateID(imageID); err != nil {
		return nil, err
	}
	return c.deletion.DeleteFamily(ctx, imageID)
}

func (c *ImagesController) BulkDeleteImages(
	ctx context.Context,
	req *BulkDeleteRequest,
) (*types.BulkDeleteResult, error) {
	if req == nil || len(req.IDs) == 0 {
		return nil, fmt.Errorf("%w: ids are required", types.ErrValidation)
	}
	return c.deletion.BulkDeleteImages(ctx, req.IDs)
}

func (c *ImagesController) GetActivity(ctx context.Context, imageID int) ([]*models.ActivityRecord, error) {
	if err := validateID(imageID); err != nil {
		return nil, err
	}
	return c.activity.GetActivityForFamily(ctx, imageID)
}

func (c *ImagesController) ListAttachments(ctx context.Context, imageID int) ([]*models.ImageAttachment, error) {
	if err := validateID(imageID); err != nil {
		return nil, err
	}
	return c.attachment.List(ctx, imageID)
}

func (c *ImagesController) Attach(
	ctx context.Context,
	imageID int,
	req *types.AttachRequest,
) (*models.ImageAttachment, error) {
	if err := validateID(imageID); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request body is required", types.ErrValidation)
	}
	return c.attachment.Attach(ctx, imageID, *req)
}

func (c *ImagesController) Detach(ctx context.Context, imageID int, req *types.AttachRequest) error {
	if err := validateID(imageID); err != nil {
		return err
	}
	if req == nil {
		return fmt.Errorf("%w: request body is required", types.ErrValidation)
	}
	return c.attachment.Detach(ctx, imageID, *req)
}

func requestedTypes(req *DeriveVariantsRequest) []string {
	if req == nil {
		return nil
	}
	return req.Types
}

func validateID(id int) error {
	if id <= 0 {
		return fmt.Errorf("%w: image id must be positive", types.ErrValidation)
	}
	return nil
}
