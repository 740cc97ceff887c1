package pages

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"stavweb/models"
)

// The helpers below take either the root *gorm.DB or a transaction handle, so
// the service decides where the transaction boundary sits.

func findPageBySlug(db *gorm.DB, slug string) (*models.Page, error) {
	var found []models.Page
	if err := db.Where("slug = ?", slug).Limit(2).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("loading page %q: %w", slug, err)
	}

	switch len(found) {
	case 0:
		return nil, ErrPageNotFound
	case 1:
		return &found[0], nil
	default:
		slog.Error("slug resolves to more than one page", "slug", slug)
		return nil, ErrDuplicateSlug
	}
}

// currentVersion returns the version flagged current. If storage ever holds
// more than one, the most recently created wins and the breach is logged.
func currentVersion(db *gorm.DB, pageID string) (*models.PageVersion, error) {
	var current []models.PageVersion
	err := db.Where("page_id = ? AND is_current = ?", pageID, true).
		Order("created_at DESC").
		Order("version_number DESC").
		Find(&current).Error
	if err != nil {
		return nil, fmt.Errorf("loading current version: %w", err)
	}

	if len(current) == 0 {
		return nil, ErrCurrentVersionMissing
	}
	if len(current) > 1 {
		numbers := make([]int, len(current))
		for i, v := range current {
			numbers[i] = v.VersionNumber
		}
		slog.Error("page has more than one current version",
			"page_id", pageID, "versions", numbers, "chosen", current[0].VersionNumber)
	}
	return &current[0], nil
}

func versionByNumber(db *gorm.DB, pageID string, number int) (*models.PageVersion, error) {
	var version models.PageVersion
	err := db.Where("page_id = ? AND version_number = ?", pageID, number).First(&version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("loading version %d: %w", number, err)
	}
	return &version, nil
}

func listVersions(db *gorm.DB, pageID string) ([]models.PageVersion, error) {
	versions := []models.PageVersion{}
	if err := db.Where("page_id = ?", pageID).Order("version_number DESC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("loading versions: %w", err)
	}
	return versions, nil
}

func countVersions(db *gorm.DB, pageID string) (int64, error) {
	var count int64
	err := db.Model(&models.PageVersion{}).Where("page_id = ?", pageID).Count(&count).Error
	return count, err
}

func nextVersionNumber(db *gorm.DB, pageID string) (int, error) {
	var highest sql.NullInt64
	row := db.Model(&models.PageVersion{}).
		Select("MAX(version_number)").
		Where("page_id = ?", pageID).
		Row()
	if err := row.Scan(&highest); err != nil {
		return 0, fmt.Errorf("loading highest version number: %w", err)
	}
	if !highest.Valid {
		return 1, nil
	}
	return int(highest.Int64) + 1, nil
}

func clearCurrent(db *gorm.DB, pageID string) error {
	err := db.Model(&models.PageVersion{}).
		Where("page_id = ? AND is_current = ?", pageID, true).
		Update("is_current", false).Error
	if err != nil {
		return fmt.Errorf("clearing current version: %w", err)
	}
	return nil
}

func markCurrent(db *gorm.DB, versionID string) error {
	res := db.Model(&models.PageVersion{}).Where("id = ?", versionID).Update("is_current", true)
	if res.Error != nil {
		return fmt.Errorf("marking version current: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrVersionNotFound
	}
	return nil
}

func insertVersion(db *gorm.DB, version *models.PageVersion) error {
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	if version.Config.IsNull() {
		version.Config = models.EmptyDocument()
	}
	if err := db.Create(version).Error; err != nil {
		return fmt.Errorf("inserting version %d: %w", version.VersionNumber, err)
	}
	return nil
}

func touchPage(db *gorm.DB, pageID string) error {
	err := db.Model(&models.Page{}).Where("id = ?", pageID).Update("updated_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("touching page: %w", err)
	}
	return nil
}
