package repositories_test

import (
	"context"
	"errors"
	"testing"
	"time"

	appcontext "imagevariants/internal/context"
	"imagevariants/internal/database"
	"imagevariants/internal/models"
	"imagevariants/internal/repositories"
	"imagevariants/internal/types"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) (database.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		t.Fatalf("failed to open gorm db: %v", err)
	}

	return database.DB{SQL: gormDB}, mock
}

var imageColumns = []string{"id", "filename", "url", "folder", "tags", "created_at"}

func TestImageRepository_GetByID(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewImageRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "images" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(imageColumns).
			AddRow(7, "shoe.jpg", "/storage/shoe.jpg", "products", `{summer,red}`, time.Now()))

	image, err := repo.GetByID(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, 7, image.ID)
	assert.Equal(t, "shoe.jpg", image.Filename)
	assert.ElementsMatch(t, []string{"summer", "red"}, image.Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageRepository_GetByID_NotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewImageRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "images" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(imageColumns))

	image, err := repo.GetByID(context.Background(), 404)

	assert.Nil(t, image)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageRepository_Create_Validation(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewImageRepository(db)

	_, err := repo.Create(context.Background(), &models.Image{URL: "/storage/x.jpg"})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = repo.Create(context.Background(), &models.Image{Filename: "x.jpg"})
	assert.ErrorIs(t, err, types.ErrValidation)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageRepository_Create(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewImageRepository(db)

	mock.ExpectQuery(`INSERT INTO "images"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))

	image, err := repo.Create(context.Background(), &models.Image{
		Filename: "shoe-thumb.jpg",
		URL:      "/storage/shoe-thumb.jpg",
		Folder:   models.FolderVariants,
	})

	require.NoError(t, err)
	assert.Equal(t, 12, image.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageRepository_Create_UniqueViolation(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewImageRepository(db)

	mock.ExpectQuery(`INSERT INTO "images"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	image, err := repo.Create(context.Background(), &models.Image{
		Filename: "shoe-thumb.jpg",
		URL:      "/storage/shoe-thumb.jpg",
	})

	assert.Nil(t, image)
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageRepository_Delete(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewImageRepository(db)

	mock.ExpectExec(`DELETE FROM "images" WHERE id = \$1`).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "images" WHERE id = \$1`).
		WithArgs(4).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.Delete(context.Background(), 3))
	assert.ErrorIs(t, repo.Delete(context.Background(), 4), types.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageRepository_FindByFolderAndTags(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewImageRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "images" WHERE folder = \$1 AND tags @> \$2 ORDER BY created_at, id`).
		WithArgs("variants", `{"original-42","thumb"}`).
		WillReturnRows(sqlmock.NewRows(imageColumns).
			AddRow(50, "a-thumb.jpg", "/a-thumb.jpg", "variants", `{variant,thumb,original-42}`, time.Now()))

	images, err := repo.FindByFolderAndTags(context.Background(), "variants", []string{"original-42", "thumb"})

	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, 50, images[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageRepository_FindVariants(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewImageRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "images" WHERE folder = \$1 AND \(parent_image_id = \$2 OR tags @> \$3\)`).
		WithArgs("variants", 9, `{"original-9"}`).
		WillReturnRows(sqlmock.NewRows(imageColumns).
			AddRow(10, "a-large.jpg", "/a-large.jpg", "variants", `{large,variant,original-9}`, time.Now()).
			AddRow(11, "a-thumb.jpg", "/a-thumb.jpg", "variants", `{thumb,variant,original-9}`, time.Now()))

	images, err := repo.FindVariants(context.Background(), 9)

	require.NoError(t, err)
	assert.Len(t, images, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageRepository_FindVariant_NotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewImageRepository(db)

	mock.ExpectQuery(`parent_image_id = \$2 AND size_class = \$3\) OR \(parent_image_id IS NULL AND tags @> \$4\)`).
		WillReturnRows(sqlmock.NewRows(imageColumns))

	image, err := repo.FindVariant(context.Background(), 9, "thumb")

	assert.Nil(t, image)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageRepository_UsesTransactionFromContext(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewImageRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "images" WHERE id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	tx := db.SQL.Begin()
	ctx := appcontext.WithTransaction(context.Background(), tx)

	require.NoError(t, repo.Delete(ctx, 5))
	require.NoError(t, tx.Rollback().Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageRepository_QueryError(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := repositories.NewImageRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "images"`).WillReturnError(errors.New("connection reset"))

	_, err := repo.FindOrphanVariants(context.Background(), 100)

	assert.EqualError(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}
