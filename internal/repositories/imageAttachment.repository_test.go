package repositories_test

import (
	"context"
	"testing"

	"imagevariants/internal/models"
	"imagevariants/internal/repositories"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageAttachmentRepository_DetachAll(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewImageAttachmentRepository(db)

	mock.ExpectExec(`DELETE FROM "image_attachments" WHERE image_id = \$1`).
		WithArgs(8).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.DetachAll(context.Background(), 8)

	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageAttachmentRepository_DetachAll_NoneAttached(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewImageAttachmentRepository(db)

	mock.ExpectExec(`DELETE FROM "image_attachments" WHERE image_id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	count, err := repo.DetachAll(context.Background(), 8)

	require.NoError(t, err)
	assert.Zero(t, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageAttachmentRepository_Attach(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewImageAttachmentRepository(db)

	mock.ExpectQuery(`INSERT INTO "image_attachments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	attachment, err := repo.Attach(context.Background(), &models.ImageAttachment{
		ImageID:        8,
		AttachableType: models.ImageableTypeProduct,
		AttachableID:   100,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attachment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepository_ListByImageIDs(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewActivityRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "image_activities" WHERE image_id IN \(\$1,\$2\) ORDER BY created_at DESC, id DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "image_id", "event"}).
			AddRow(2, 5, models.ActivityVariantGenerated).
			AddRow(1, 4, models.ActivityImageUploaded))

	records, err := repo.ListByImageIDs(context.Background(), []int{4, 5}, 0)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.ActivityVariantGenerated, records[0].Event)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepository_ListByImageIDs_Empty(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewActivityRepository(db)

	records, err := repo.ListByImageIDs(context.Background(), nil, 10)

	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}
