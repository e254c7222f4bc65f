package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"imagevariants/internal/events"
	"imagevariants/internal/metrics"
	"imagevariants/internal/models"
	"imagevariants/internal/repositories"
	"imagevariants/internal/storage"
	"imagevariants/internal/types"
	"imagevariants/pkg/logger"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// EventPublisher is the slice of the event bus the services publish through.
type EventPublisher interface {
	PublishImageEvent(eventType events.MessageType, imageID int, data map[string]any) error
}

type DerivationDeps struct {
	Images      repositories.ImageRepository
	Family      *FamilyService
	Activity    *ActivityService
	Storage     storage.Storage
	Resizer     *ResizeService
	Metadata    *MetadataService
	Locker      Locker
	Transaction Transactor
	Events      EventPublisher
}

type DerivationService struct {
	images      repositories.ImageRepository
	family      *FamilyService
	activity    *ActivityService
	objects     objectStore
	resizer     *ResizeService
	metadata    *MetadataService
	locker      Locker
	tx          Transactor
	events      EventPublisher
	concurrency int
	log         logger.Logger
}

func NewDerivationService(deps DerivationDeps, concurrency int, storageTimeout time.Duration) *DerivationService {
	if concurrency <= 0 {
		concurrency = DefaultDerivationConcurrency
	}
	if deps.Resizer == nil {
		deps.Resizer = NewResizeService(VariantJPEGQuality)
	}
	if deps.Metadata == nil {
		deps.Metadata = NewMetadataService()
	}
	if deps.Locker == nil {
		deps.Locker = NewKeyedMutex()
	}

	return &DerivationService{
		images:      deps.Images,
		family:      deps.Family,
		activity:    deps.Activity,
		objects:     newObjectStore(deps.Storage, storageTimeout),
		resizer:     deps.Resizer,
		metadata:    deps.Metadata,
		locker:      deps.Locker,
		tx:          deps.Transaction,
		events:      deps.Events,
		concurrency: concurrency,
		log:         logger.New("derivationService"),
	}
}

// sourceImage fetches and decodes the original at most once per derivation,
// on first use. Types that are skipped or reused never touch storage.
type sourceImage struct {
	once sync.Once
	img  image.Image
	err  error
}

func (s *sourceImage) load(fn func() (image.Image, error)) (image.Image, error) {
	s.once.Do(func() {
		s.img, s.err = fn()
	})
	return s.img, s.err
}

type variantOutcome struct {
	image   *models.Image
	outcome string
	reason  string
	err     error
}

// NormalizeVariantTypes rejects unknown types, drops duplicates and applies the
// default set when none are given. An unknown type is a validation error for
// the whole request: it is returned to the caller before any type is derived,
// unlike storage and resize failures, which stay per type.
func NormalizeVariantTypes(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return append([]string(nil), DefaultVariantTypes...), nil
	}

	normalized := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, t := range requested {
		t = strings.ToLower(strings.TrimSpace(t))
		if _, ok := VariantSizes[t]; !ok {
			return nil, fmt.Errorf("%w: %q", types.ErrInvalidVariantType, t)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		normalized = append(normalized, t)
	}
	return normalized, nil
}

// DeriveVariants produces or reuses one variant of originalID per requested
// type. Types run concurrently and independently: a failed type is reported in
// Failures and never aborts its siblings. Generated keeps the requested order
// and includes variants that already existed.
func (s *DerivationService) DeriveVariants(
	ctx context.Context,
	originalID int,
	variantTypes []string,
) (*types.DerivationResult, error) {
	log := s.log.Function("DeriveVariants").TraceFromContext(ctx)

	requested, err := NormalizeVariantTypes(variantTypes)
	if err != nil {
		return nil, log.Err("rejected derivation request", err, "originalID", originalID, "types", variantTypes)
	}

	original, err := s.images.GetByID(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if original.IsVariant() {
		return nil, fmt.Errorf("%w: image %d is a variant and cannot be derived from", types.ErrValidation, originalID)
	}

	source := &sourceImage{}
	outcomes := make([]variantOutcome, len(requested))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, variantType := range requested {
		g.Go(func() error {
			start := time.Now()
			outcomes[i] = s.deriveOne(ctx, original, variantType, source)
			metrics.RecordVariant(variantType, outcomes[i].outcome, time.Since(start).Seconds())
			return nil
		})
	}
	_ = g.Wait()

	result := &types.DerivationResult{
		OriginalID:     original.ID,
		RequestedTypes: requested,
		Generated:      []*models.Image{},
	}
	created := 0
	for i, o := range outcomes {
		switch o.outcome {
		case metrics.OutcomeGenerated, metrics.OutcomeReused:
			result.Generated = append(result.Generated, o.image)
			if o.outcome == metrics.OutcomeGenerated {
				created++
			}
		case metrics.OutcomeSkipped:
			result.Skipped = append(result.Skipped, types.SkippedVariant{Type: requested[i], Reason: o.reason})
		default:
			result.Failures = append(result.Failures, types.VariantFailure{
				Type:    requested[i],
				Message: o.err.Error(),
				Err:     o.err,
			})
		}
	}
	result.GeneratedCount = len(result.Generated)

	if created > 0 {
		s.family.Invalidate(ctx, original.ID)
	}

	log.Info("derivation finished",
		"originalID", original.ID,
		"requested", requested,
		"generated", result.GeneratedCount,
		"created", created,
		"skipped", len(result.Skipped),
		"failed", len(result.Failures),
	)

	return result, nil
}

func (s *DerivationService) deriveOne(
	ctx context.Context,
	original *models.Image,
	variantType string,
	source *sourceImage,
) variantOutcome {
	log := s.log.Function("deriveOne").TraceFromContext(ctx).With("originalID", original.ID, "type", variantType)
	target := VariantSizes[variantType]

	if tooSmall(original.Width, original.Height, target) {
		return skipped(original.Width, original.Height, target)
	}

	unlock, err := s.locker.Lock(ctx, fmt.Sprintf(VariantLockKeyFormat, original.ID, variantType))
	if err != nil {
		return failed(log.Err("failed to acquire variant lock", err))
	}
	defer unlock()

	existing, err := s.images.FindVariant(ctx, original.ID, variantType)
	if err == nil {
		log.Debug("variant already exists", "variantID", existing.ID)
		return variantOutcome{image: existing, outcome: metrics.OutcomeReused}
	}
	if !errors.Is(err, types.ErrNotFound) {
		return failed(log.Err("failed to look up existing variant", err))
	}

	src, err := source.load(func() (image.Image, error) {
		data, err := s.objects.get(ctx, original.Filename)
		if err != nil {
			return nil, err
		}
		img, err := s.resizer.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrSourceUnavailable, err)
		}
		return img, nil
	})
	if err != nil {
		return failed(log.Err("source image unavailable", err, "filename", original.Filename))
	}

	// Dimensions unknown at request time are checked against the decoded source.
	bounds := src.Bounds()
	if tooSmall(bounds.Dx(), bounds.Dy(), target) {
		return skipped(bounds.Dx(), bounds.Dy(), target)
	}

	resized, err := s.resizer.FitJPEG(src, target)
	if err != nil {
		return failed(err)
	}

	filename := VariantFilename(original, variantType)
	url, err := s.objects.put(ctx, filename, resized.Data, VariantMimeType)
	if err != nil {
		return failed(log.Err("failed to store variant", err, "filename", filename))
	}

	variant := newVariantRecord(original, variantType, filename, url, int64(len(resized.Data)))
	created, err := s.images.Create(ctx, variant)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			// Another worker won; its record owns the same object key.
			winner, findErr := s.images.FindVariant(ctx, original.ID, variantType)
			if findErr == nil {
				log.Info("variant created concurrently, using existing record", "variantID", winner.ID)
				return variantOutcome{image: winner, outcome: metrics.OutcomeReused}
			}
			return failed(log.Err("variant conflict but no existing record found", findErr))
		}

		if delErr := s.objects.delete(ctx, filename); delErr != nil {
			log.Er("failed to remove stored variant after record failure", delErr, "filename", filename)
		}
		return failed(log.Err("failed to create variant record", err, "filename", filename))
	}

	s.applyMetadata(ctx, created, resized.Data)
	s.announce(ctx, original, created, variantType)

	return variantOutcome{image: created, outcome: metrics.OutcomeGenerated}
}

// applyMetadata fills dimensions, size and mime type after creation. A
// failure leaves the zero sentinels in place.
func (s *DerivationService) applyMetadata(ctx context.Context, variant *models.Image, data []byte) {
	log := s.log.Function("applyMetadata").TraceFromContext(ctx)

	meta, err := s.metadata.Inspect(data)
	if err != nil {
		log.Warn("failed to inspect variant", "variantID", variant.ID, "error", err)
		return
	}
	if !s.metadata.Apply(variant, meta) {
		return
	}
	if err := s.images.Update(ctx, variant); err != nil {
		log.Warn("failed to store variant metadata", "variantID", variant.ID, "error", err)
	}
}

func (s *DerivationService) announce(ctx context.Context, original, variant *models.Image, variantType string) {
	s.activity.Record(ctx, original.ID, models.ActivityVariantGenerated,
		fmt.Sprintf("Generated %s variant of: %s", variantType, original.DisplayTitle()),
		map[string]any{"variantId": variant.ID, "type": variantType, "filename": variant.Filename},
	)

	if s.events == nil {
		return
	}
	err := s.events.PublishImageEvent(events.VARIANT_GENERATED, original.ID, map[string]any{
		"variantId": variant.ID,
		"type":      variantType,
		"url":       variant.URL,
	})
	if err != nil {
		s.log.Function("announce").Warn("failed to publish variant event", "variantID", variant.ID, "error", err)
	}
}

// DeleteVariants removes every variant of originalID as one unit. Records are
// deleted inside a transaction and the objects are removed before it commits;
// any failure rolls the records back. Objects removed before the failure stay
// removed.
func (s *DerivationService) DeleteVariants(ctx context.Context, originalID int) (*types.DeleteVariantsResult, error) {
	log := s.log.Function("DeleteVariants").TraceFromContext(ctx)

	original, err := s.images.GetByID(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if original.IsVariant() {
		return nil, fmt.Errorf("%w: image %d is a variant", types.ErrValidation, originalID)
	}

	result := &types.DeleteVariantsResult{OriginalID: originalID, DeletedItems: []int{}}

	err = s.tx.Execute(ctx, func(txCtx context.Context, _ *gorm.DB) error {
		variants, err := s.images.FindVariants(txCtx, originalID)
		if err != nil {
			return err
		}

		for _, variant := range variants {
			if err := s.images.Delete(txCtx, variant.ID); err != nil {
				return types.NewImageError("DeleteVariants", variant.ID, variant.DisplayTitle(), types.ErrTransactionFailure, err)
			}
			result.DeletedItems = append(result.DeletedItems, variant.ID)
		}

		for _, variant := range variants {
			if err := s.objects.delete(txCtx, variant.Filename); err != nil {
				return types.NewImageError("DeleteVariants", variant.ID, variant.DisplayTitle(), types.ErrTransactionFailure, err)
			}
		}
		return nil
	})
	if err != nil {
		metrics.RecordRollback("delete_variants")
		var imageErr *types.ImageError
		if !errors.As(err, &imageErr) {
			err = types.NewImageError("DeleteVariants", originalID, original.DisplayTitle(), types.ErrTransactionFailure, err)
		}
		return nil, log.Err("variant deletion rolled back", err, "originalID", originalID)
	}

	result.DeletedCount = len(result.DeletedItems)
	if result.DeletedCount == 0 {
		return result, nil
	}

	metrics.RecordDeleted("delete_variants", result.DeletedCount)
	s.family.Invalidate(ctx, originalID)
	s.activity.Record(ctx, originalID, models.ActivityVariantsDeleted,
		fmt.Sprintf("Deleted %d variants of: %s", result.DeletedCount, original.DisplayTitle()),
		map[string]any{"variantIds": result.DeletedItems},
	)
	if s.events != nil {
		if err := s.events.PublishImageEvent(events.VARIANTS_DELETED, originalID, map[string]any{
			"variantIds": result.DeletedItems,
		}); err != nil {
			log.Warn("failed to publish variants deleted event", "originalID", originalID, "error", err)
		}
	}

	log.Info("variants deleted", "originalID", originalID, "count", result.DeletedCount)
	return result, nil
}

// VariantFilename keeps the original's extension even though the content is
// always JPEG; the record's mime type carries the real format.
func VariantFilename(original *models.Image, variantType string) string {
	base, ext := original.Basename()
	if ext == "" {
		ext = DefaultVariantExt
	}
	return fmt.Sprintf("%s-%s%s", base, variantType, ext)
}

func newVariantRecord(original *models.Image, variantType, filename, url string, size int64) *models.Image {
	tags := make([]string, 0, len(original.Tags)+3)
	for _, tag := range original.Tags {
		if !models.IsReservedTag(tag) {
			tags = append(tags, tag)
		}
	}
	tags = append(tags, variantType, models.TagVariant, models.FamilyTag(original.ID))

	title := original.DisplayTitle()
	label := strings.ToUpper(variantType[:1]) + variantType[1:]

	altText := ""
	if original.AltText != "" {
		altText = fmt.Sprintf("%s (%s)", original.AltText, variantType)
	}

	parentID := original.ID
	sizeClass := variantType

	return &models.Image{
		Filename:         filename,
		OriginalFilename: original.OriginalFilename,
		URL:              url,
		Size:             size,
		MimeType:         VariantMimeType,
		Folder:           models.FolderVariants,
		Tags:             tags,
		Title:            fmt.Sprintf("%s - %s", title, label),
		AltText:          altText,
		Description:      fmt.Sprintf("Generated %s variant of: %s", variantType, title),
		SortOrder:        models.SizeClassRank(variantType),
		ParentImageID:    &parentID,
		SizeClass:        &sizeClass,
	}
}

// tooSmall reports whether scaling to target would upscale. Unknown (zero)
// dimensions never count as too small.
func tooSmall(width, height, target int) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	return width <= target && height <= target
}

func skipped(width, height, target int) variantOutcome {
	return variantOutcome{
		outcome: metrics.OutcomeSkipped,
		reason:  fmt.Sprintf("original %dx%d fits within %dpx", width, height, target),
	}
}

func failed(err error) variantOutcome {
	return variantOutcome{outcome: metrics.OutcomeFailed, err: err}
}
