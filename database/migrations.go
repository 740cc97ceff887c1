package database

import (
	"log/slog"

	"stavweb/models"

	"gorm.io/gorm"
)

// oneCurrentIndex keeps at most one current version per page at the storage level.
const oneCurrentIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_page_versions_one_current
	ON page_versions (page_id) WHERE is_current = 1`

func RunMigrations(db *gorm.DB) error {
	slog.Info("running database migrations")

	err := db.AutoMigrate(
		&models.Page{},
		&models.PageVersion{},
	)
	if err != nil {
		slog.Error("error running migrations", "error", err)
		return err
	}

	if err := db.Exec(oneCurrentIndex).Error; err != nil {
		slog.Error("error creating current version index", "error", err)
		return err
	}

	slog.Info("migrations completed successfully")
	return nil
}
