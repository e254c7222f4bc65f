package repositories

import (
	"context"
	"errors"
	"fmt"

	appcontext "imagevariants/internal/context"
	"imagevariants/internal/database"
	"imagevariants/internal/types"

	"gorm.io/gorm"
)

type Repository struct {
	Image      ImageRepository
	Attachment ImageAttachmentRepository
	Activity   ActivityRepository
}

func New(db database.DB) Repository {
	return Repository{
		Image:      NewImageRepository(db),
		Attachment: NewImageAttachmentRepository(db),
		Activity:   NewActivityRepository(db),
	}
}

// conn returns the transaction carried by ctx, falling back to the pool.
func conn(ctx context.Context, db database.DB) *gorm.DB {
	return appcontext.DBFromContext(ctx, db.SQL)
}

// translateError maps gorm failures onto the domain sentinels.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %w", types.ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %w", types.ErrConflict, err)
	case errors.Is(err, gorm.ErrInvalidValue):
		return fmt.Errorf("%w: %w", types.ErrValidation, err)
	default:
		return err
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, types.ErrConflict)
}
