package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"imagevariants/internal/events"
	"imagevariants/internal/models"
	"imagevariants/internal/repositories"
	"imagevariants/internal/storage"
	"imagevariants/internal/types"
	"imagevariants/pkg/logger"

	"github.com/google/uuid"
)

// DerivationEnqueuer hands a derivation request to an asynchronous worker.
type DerivationEnqueuer interface {
	Enqueue(ctx context.Context, request types.DerivationRequest) error
}

// UploadService registers originals: it sniffs the content, stores the bytes
// under a fresh key and creates the record.
type UploadService struct {
	images   repositories.ImageRepository
	metadata *MetadataService
	activity *ActivityService
	objects  objectStore
	events   EventPublisher
	queue    DerivationEnqueuer
	log      logger.Logger
}

func NewUploadService(
	images repositories.ImageRepository,
	metadata *MetadataService,
	activity *ActivityService,
	store storage.Storage,
	storageTimeout time.Duration,
	publisher EventPublisher,
	queue DerivationEnqueuer,
) *UploadService {
	if metadata == nil {
		metadata = NewMetadataService()
	}
	return &UploadService{
		images:   images,
		metadata: metadata,
		activity: activity,
		objects:  newObjectStore(store, storageTimeout),
		events:   publisher,
		queue:    queue,
		log:      logger.New("uploadService"),
	}
}

func (s *UploadService) Upload(ctx context.Context, req types.UploadRequest) (*models.Image, error) {
	log := s.log.Function("Upload").TraceFromContext(ctx)

	if strings.EqualFold(strings.TrimSpace(req.Folder), models.FolderVariants) {
		return nil, fmt.Errorf("%w: folder %q is reserved", types.ErrValidation, models.FolderVariants)
	}

	meta, err := s.metadata.Inspect(req.Data)
	if err != nil {
		return nil, err
	}

	filename := uuid.New().String() + meta.Extension
	url, err := s.objects.put(ctx, filename, req.Data, meta.MimeType)
	if err != nil {
		return nil, log.Err("failed to store upload", err, "originalFilename", req.OriginalFilename)
	}

	image := &models.Image{
		Filename:         filename,
		OriginalFilename: filepath.Base(req.OriginalFilename),
		URL:              url,
		Folder:           strings.TrimSpace(req.Folder),
		Tags:             UserTags(req.Tags),
		Title:            strings.TrimSpace(req.Title),
		AltText:          strings.TrimSpace(req.AltText),
		Description:      strings.TrimSpace(req.Description),
	}
	s.metadata.Apply(image, meta)

	created, err := s.images.Create(ctx, image)
	if err != nil {
		if delErr := s.objects.delete(ctx, filename); delErr != nil {
			log.Er("failed to remove stored upload after record failure", delErr, "filename", filename)
		}
		return nil, log.Err("failed to create image record", err, "filename", filename)
	}

	s.activity.Record(ctx, created.ID, models.ActivityImageUploaded,
		fmt.Sprintf("Uploaded image: %s", created.DisplayTitle()),
		map[string]any{"filename": created.Filename, "mimeType": created.MimeType, "size": created.Size},
	)
	if s.events != nil {
		if err := s.events.PublishImageEvent(events.IMAGE_UPLOADED, created.ID, map[string]any{"url": created.URL}); err != nil {
			log.Warn("failed to publish upload event", "imageID", created.ID, "error", err)
		}
	}
	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, types.DerivationRequest{ImageID: created.ID}); err != nil {
			log.Warn("failed to enqueue derivation", "imageID", created.ID, "error", err)
		}
	}

	log.Info("image uploaded", "imageID", created.ID, "filename", created.Filename, "size", created.Size)
	return created, nil
}

// UserTags trims, drops empty and duplicate tags, and removes the tags only
// derivation may assign.
func UserTags(tags []string) []string {
	cleaned := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] || models.IsReservedTag(tag) {
			continue
		}
		seen[tag] = true
		cleaned = append(cleaned, tag)
	}
	return cleaned
}
