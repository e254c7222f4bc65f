package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"imagevariants/internal/metrics"
	"imagevariants/internal/models"
	"imagevariants/internal/repositories"
	"imagevariants/internal/types"
	"imagevariants/pkg/logger"
)

var familyTagPattern = regexp.MustCompile(`^original-(\d+)$`)

// FamilyCache stores the variant list of an original. Implementations must
// tolerate concurrent use. Invalidate advances the family's generation; Set
// must refuse to write when the generation differs from the one passed in.
type FamilyCache interface {
	Get(ctx context.Context, originalID int) (*types.FamilyView, bool, error)
	Generation(ctx context.Context, originalID int) (int64, error)
	Set(ctx context.Context, originalID int, generation int64, view *types.FamilyView) (bool, error)
	Invalidate(ctx context.Context, originalID int) error
}

// FamilyService resolves the original ⇄ variants relationship of an image.
type FamilyService struct {
	images repositories.ImageRepository
	cache  FamilyCache
	log    logger.Logger
}

// NewFamilyService builds the service; cache may be nil.
func NewFamilyService(images repositories.ImageRepository, cache FamilyCache) *FamilyService {
	return &FamilyService{
		images: images,
		cache:  cache,
		log:    logger.New("familyService"),
	}
}

func (s *FamilyService) IsVariant(image *models.Image) bool {
	return image != nil && image.IsVariant()
}

// ParseFamilyTag extracts the original id from a variant's tags. Exactly one
// original-{id} tag must be present.
func ParseFamilyTag(tags []string) (int, error) {
	var ids []int
	for _, tag := range tags {
		match := familyTagPattern.FindStringSubmatch(tag)
		if match == nil {
			continue
		}
		id, err := strconv.Atoi(match[1])
		if err != nil {
			return 0, fmt.Errorf("%w: %q", types.ErrMalformedFamilyTag, tag)
		}
		ids = append(ids, id)
	}

	switch len(ids) {
	case 0:
		return 0, fmt.Errorf("%w: no original tag", types.ErrMalformedFamilyTag)
	case 1:
		return ids[0], nil
	default:
		return 0, fmt.Errorf("%w: %d original tags", types.ErrMalformedFamilyTag, len(ids))
	}
}

// OriginalIDOf names the original a variant points at, preferring the parent
// column over the family tag. Originals name themselves.
func OriginalIDOf(image *models.Image) (int, error) {
	if !image.IsVariant() {
		return image.ID, nil
	}
	if image.ParentImageID != nil {
		return *image.ParentImageID, nil
	}
	return ParseFamilyTag(image.Tags)
}

// ResolveOriginal never fails. A variant whose original cannot be determined
// or loaded resolves to itself with a fallback status and the reason.
func (s *FamilyService) ResolveOriginal(ctx context.Context, image *models.Image) types.Resolution {
	log := s.log.Function("ResolveOriginal").TraceFromContext(ctx)

	if !s.IsVariant(image) {
		metrics.RecordResolution(string(types.ResolutionSelf))
		return types.Resolution{Status: types.ResolutionSelf, Original: image, OriginalID: image.ID}
	}

	originalID, err := OriginalIDOf(image)
	if err != nil {
		log.Warn("variant has malformed family tags, falling back to self",
			"imageID", image.ID,
			"tags", []string(image.Tags),
			"error", err,
		)
		metrics.RecordResolution(string(types.ResolutionFallback))
		return types.Resolution{Status: types.ResolutionFallback, Original: image, Reason: err}
	}

	original, err := s.images.GetByID(ctx, originalID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			log.Er("failed to load original, falling back to self", err, "imageID", image.ID, "originalID", originalID)
		} else {
			log.Warn("original no longer exists, falling back to self", "imageID", image.ID, "originalID", originalID)
		}
		metrics.RecordResolution(string(types.ResolutionFallback))
		return types.Resolution{
			Status:     types.ResolutionFallback,
			Original:   image,
			OriginalID: originalID,
			Reason:     err,
		}
	}

	metrics.RecordResolution(string(types.ResolutionResolved))
	return types.Resolution{Status: types.ResolutionResolved, Original: original, OriginalID: originalID}
}

// ListVariants returns the variants of originalID in display order: thumb,
// small, medium, large, then anything else, ties broken by creation time.
func (s *FamilyService) ListVariants(ctx context.Context, originalID int) ([]*models.Image, error) {
	variants, err := s.images.FindVariants(ctx, originalID)
	if err != nil {
		return nil, err
	}
	SortVariants(variants)
	return variants, nil
}

func SortVariants(variants []*models.Image) {
	sort.SliceStable(variants, func(i, j int) bool {
		a, b := variants[i], variants[j]
		ra, rb := models.SizeClassRank(a.EffectiveSizeClass()), models.SizeClassRank(b.EffectiveSizeClass())
		if ra != rb {
			return ra < rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// GetFamily returns the original first, followed by its variants in display order.
func (s *FamilyService) GetFamily(ctx context.Context, image *models.Image) (*types.FamilyView, error) {
	log := s.log.Function("GetFamily").TraceFromContext(ctx)

	resolution := s.ResolveOriginal(ctx, image)
	original := resolution.Original

	variants, cached := s.cachedVariants(ctx, original.ID)
	if !cached {
		// The generation is read before the variants so an invalidation
		// landing in between keeps the stale list out of the cache.
		generation, cacheable := s.cacheGeneration(ctx, original.ID)
		cacheable = cacheable && resolution.Status != types.ResolutionFallback

		var err error
		variants, err = s.ListVariants(ctx, original.ID)
		if err != nil {
			return nil, log.Err("failed to list variants", err, "originalID", original.ID)
		}
		if cacheable {
			s.storeVariants(ctx, original, generation, variants)
		}
	}

	all := make([]*models.Image, 0, len(variants)+1)
	all = append(all, original)
	all = append(all, variants...)

	return &types.FamilyView{
		Original:   original,
		Variants:   variants,
		All:        all,
		Resolution: resolution,
	}, nil
}

func (s *FamilyService) GetFamilyByID(ctx context.Context, imageID int) (*types.FamilyView, error) {
	image, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, err
	}
	return s.GetFamily(ctx, image)
}

// Invalidate drops the cached family of originalID.
func (s *FamilyService) Invalidate(ctx context.Context, originalID int) {
	if s.cache == nil || originalID == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, originalID); err != nil {
		s.log.Function("Invalidate").Warn("failed to invalidate family cache", "originalID", originalID, "error", err)
	}
}

// InvalidateFor drops the cached family that image belongs to.
func (s *FamilyService) InvalidateFor(ctx context.Context, image *models.Image) {
	originalID, err := OriginalIDOf(image)
	if err != nil {
		return
	}
	s.Invalidate(ctx, originalID)
}

func (s *FamilyService) cachedVariants(ctx context.Context, originalID int) ([]*models.Image, bool) {
	if s.cache == nil {
		return nil, false
	}
	view, found, err := s.cache.Get(ctx, originalID)
	if err != nil {
		s.log.Function("cachedVariants").Warn("family cache read failed", "originalID", originalID, "error", err)
		return nil, false
	}
	if !found || view == nil {
		return nil, false
	}
	if view.Variants == nil {
		return []*models.Image{}, true
	}
	return view.Variants, true
}

func (s *FamilyService) cacheGeneration(ctx context.Context, originalID int) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	generation, err := s.cache.Generation(ctx, originalID)
	if err != nil {
		s.log.Function("cacheGeneration").Warn("family cache generation read failed", "originalID", originalID, "error", err)
		return 0, false
	}
	return generation, true
}

func (s *FamilyService) storeVariants(
	ctx context.Context,
	original *models.Image,
	generation int64,
	variants []*models.Image,
) {
	log := s.log.Function("storeVariants")

	view := &types.FamilyView{Original: original, Variants: variants}
	stored, err := s.cache.Set(ctx, original.ID, generation, view)
	if err != nil {
		log.Warn("family cache write failed", "originalID", original.ID, "error", err)
		return
	}
	if !stored {
		log.Debug("family changed while loading, not cached", "originalID", original.ID)
	}
}
