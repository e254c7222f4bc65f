package database

import (
	"imagevariants/internal/models"
	"imagevariants/pkg/logger"
)

// MigrateModels runs GORM AutoMigrate for all models
func (db *DB) MigrateModels() error {
	log := logger.New("database").Function("MigrateModels")
	log.Info("Starting database migration")

	modelsToMigrate := []any{
		&models.Image{},
		&models.ImageAttachment{},
		&models.ActivityRecord{},
	}

	for _, model := range modelsToMigrate {
		if err := db.SQL.AutoMigrate(model); err != nil {
			return log.Err("Failed to migrate model", err, "model", model)
		}
	}

	log.Info("Database migration completed successfully")
	return nil
}

// CreateIndexes creates indexes that GORM doesn't express through struct tags
func (db *DB) CreateIndexes() error {
	log := logger.New("database").Function("CreateIndexes")
	log.Info("Creating additional database indexes")

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_images_variant_tags ON images USING gin (tags) WHERE folder = 'variants'",
		"CREATE INDEX IF NOT EXISTS idx_images_parent_created ON images (parent_image_id, created_at) WHERE parent_image_id IS NOT NULL",
		"CREATE INDEX IF NOT EXISTS idx_image_activities_image_created ON image_activities (image_id, created_at DESC)",
	}

	for _, indexSQL := range indexes {
		if err := db.SQL.Exec(indexSQL).Error; err != nil {
			log.Warn("Failed to create index", "sql", indexSQL, "error", err)
		}
	}

	log.Info("Additional database indexes created")
	return nil
}
