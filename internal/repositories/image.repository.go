package repositories

import (
	"context"
	"fmt"

	"imagevariants/internal/database"
	. "imagevariants/internal/models"
	"imagevariants/internal/types"
	"imagevariants/pkg/logger"

	"github.com/lib/pq"
)

type ImageRepository interface {
	GetByID(ctx context.Context, id int) (*Image, error)
	GetByIDs(ctx context.Context, ids []int) ([]*Image, error)
	Create(ctx context.Context, image *Image) (*Image, error)
	Update(ctx context.Context, image *Image) error
	Delete(ctx context.Context, id int) error
	FindByFolderAndTags(ctx context.Context, folder string, tags []string) ([]*Image, error)
	FindVariants(ctx context.Context, originalID int) ([]*Image, error)
	FindVariant(ctx context.Context, originalID int, sizeClass string) (*Image, error)
	FindOrphanVariants(ctx context.Context, limit int) ([]*Image, error)
}

type imageRepository struct {
	db  database.DB
	log logger.Logger
}

func NewImageRepository(db database.DB) ImageRepository {
	return &imageRepository{
		db:  db,
		log: logger.New("imageRepository"),
	}
}

func (r *imageRepository) GetByID(ctx context.Context, id int) (*Image, error) {
	log := r.log.Function("GetByID")

	var image Image
	if err := conn(ctx, r.db).First(&image, "id = ?", id).Error; err != nil {
		err = translateError(err)
		if isNotFound(err) {
			log.Debug("image not found", "id", id)
			return nil, err
		}
		return nil, log.Err("failed to get image by ID", err, "id", id)
	}

	return &image, nil
}

func (r *imageRepository) GetByIDs(ctx context.Context, ids []int) ([]*Image, error) {
	log := r.log.Function("GetByIDs")

	if len(ids) == 0 {
		return []*Image{}, nil
	}

	var images []*Image
	if err := conn(ctx, r.db).Where("id IN ?", ids).Order("id").Find(&images).Error; err != nil {
		return nil, log.Err("failed to get images by IDs", err, "count", len(ids))
	}

	return images, nil
}

func (r *imageRepository) Create(ctx context.Context, image *Image) (*Image, error) {
	log := r.log.Function("Create")

	if image.Filename == "" || image.URL == "" {
		return nil, fmt.Errorf("%w: filename and url are required", types.ErrValidation)
	}

	if err := conn(ctx, r.db).Create(image).Error; err != nil {
		err = translateError(err)
		if isConflict(err) {
			log.Debug("image already exists", "filename", image.Filename)
			return nil, err
		}
		return nil, log.Err("failed to create image", err, "filename", image.Filename)
	}

	return image, nil
}

func (r *imageRepository) Update(ctx context.Context, image *Image) error {
	log := r.log.Function("Update")

	if err := conn(ctx, r.db).Save(image).Error; err != nil {
		return log.Err("failed to update image", translateError(err), "imageID", image.ID)
	}

	return nil
}

// Delete removes the row only; the stored object is the caller's concern.
func (r *imageRepository) Delete(ctx context.Context, id int) error {
	log := r.log.Function("Delete")

	result := conn(ctx, r.db).Delete(&Image{}, "id = ?", id)
	if result.Error != nil {
		return log.Err("failed to delete image", result.Error, "id", id)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: image %d", types.ErrNotFound, id)
	}

	return nil
}

// FindByFolderAndTags returns images in folder carrying every tag in tags.
func (r *imageRepository) FindByFolderAndTags(
	ctx context.Context,
	folder string,
	tags []string,
) ([]*Image, error) {
	log := r.log.Function("FindByFolderAndTags")

	query := conn(ctx, r.db).Where("folder = ?", folder)
	if len(tags) > 0 {
		query = query.Where("tags @> ?", pq.Array(tags))
	}

	var images []*Image
	if err := query.Order("created_at, id").Find(&images).Error; err != nil {
		return nil, log.Err("failed to find images by folder and tags", err, "folder", folder, "tags", tags)
	}

	return images, nil
}

// FindVariants matches on the parent column and, for rows written before it
// existed, on the original-{id} family tag.
func (r *imageRepository) FindVariants(ctx context.Context, originalID int) ([]*Image, error) {
	log := r.log.Function("FindVariants")

	var images []*Image
	err := conn(ctx, r.db).
		Where("folder = ?", FolderVariants).
		Where("(parent_image_id = ? OR tags @> ?)", originalID, pq.Array([]string{FamilyTag(originalID)})).
		Order("created_at, id").
		Find(&images).Error
	if err != nil {
		return nil, log.Err("failed to find variants", err, "originalID", originalID)
	}

	return images, nil
}

func (r *imageRepository) FindVariant(
	ctx context.Context,
	originalID int,
	sizeClass string,
) (*Image, error) {
	log := r.log.Function("FindVariant")

	var images []*Image
	err := conn(ctx, r.db).
		Where("folder = ?", FolderVariants).
		Where(
			"((parent_image_id = ? AND size_class = ?) OR (parent_image_id IS NULL AND tags @> ?))",
			originalID,
			sizeClass,
			pq.Array([]string{FamilyTag(originalID), sizeClass}),
		).
		Order("created_at, id").
		Limit(1).
		Find(&images).Error
	if err != nil {
		return nil, log.Err("failed to find variant", err, "originalID", originalID, "sizeClass", sizeClass)
	}

	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no %s variant for image %d", types.ErrNotFound, sizeClass, originalID)
	}

	return images[0], nil
}

// FindOrphanVariants returns variants whose original row no longer exists.
func (r *imageRepository) FindOrphanVariants(ctx context.Context, limit int) ([]*Image, error) {
	log := r.log.Function("FindOrphanVariants")

	var images []*Image
	err := conn(ctx, r.db).
		Where("folder = ?", FolderVariants).
		Where(`NOT EXISTS (
			SELECT 1 FROM images parent
			WHERE parent.id = images.parent_image_id
			   OR ('original-' || parent.id::text) = ANY(images.tags)
		)`).
		Order("id").
		Limit(limit).
		Find(&images).Error
	if err != nil {
		return nil, log.Err("failed to find orphan variants", err, "limit", limit)
	}

	return images, nil
}
