package pages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"stavweb/models"
)

// Service implements the page and version lifecycle. It keeps no state
// between calls; every sequence that writes more than one row runs in a
// single transaction, which together with the one-current index keeps
// exactly one current version per page.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CurrentView is a page merged with the configuration of its current version.
type CurrentView struct {
	models.Page
	Config  models.Document `json:"config"`
	Version int             `json:"version"`
}

// VersionView is a page merged with one of its versions. CreatedAt is the
// version's timestamp and shadows the page's.
type VersionView struct {
	models.Page
	Config    models.Document `json:"config"`
	Version   int             `json:"version"`
	IsCurrent bool            `json:"is_current"`
	CreatedAt time.Time       `json:"created_at"`
	CreatedBy *string         `json:"created_by"`
}

type CreatePageInput struct {
	Slug        string
	Name        string
	Description *string
	Config      models.Document
}

type UpdatePageInput struct {
	Name *string
	// Description set to null clears the stored description.
	Description      models.OptionalString
	Config           models.Document
	CreateNewVersion bool
}

type UpdateOutcome int

const (
	// PageFieldsUpdated covers name/description edits and empty requests.
	PageFieldsUpdated UpdateOutcome = iota
	ConfigOverwritten
	VersionCreated
)

type UpdateResult struct {
	Outcome UpdateOutcome
	// Version is the current version number after the update.
	Version int
}

type RestoreResult struct {
	From    int
	Version int
}

func (s *Service) ListPages(ctx context.Context) ([]models.Page, error) {
	pages := []models.Page{}
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&pages).Error; err != nil {
		return nil, fmt.Errorf("loading pages: %w", err)
	}
	return pages, nil
}

func (s *Service) GetPage(ctx context.Context, slug string) (*models.Page, error) {
	return findPageBySlug(s.db.WithContext(ctx), slug)
}

func (s *Service) GetCurrent(ctx context.Context, slug string) (*CurrentView, error) {
	db := s.db.WithContext(ctx)

	page, err := findPageBySlug(db, slug)
	if err != nil {
		return nil, err
	}

	current, err := currentVersion(db, page.ID)
	if err != nil {
		return nil, err
	}

	return &CurrentView{
		Page:    *page,
		Config:  current.Config,
		Version: current.VersionNumber,
	}, nil
}

func (s *Service) ListVersions(ctx context.Context, slug string) ([]models.PageVersion, error) {
	db := s.db.WithContext(ctx)

	page, err := findPageBySlug(db, slug)
	if err != nil {
		return nil, err
	}
	return listVersions(db, page.ID)
}

// CountVersions returns how many versions the page holds.
func (s *Service) CountVersions(ctx context.Context, slug string) (int64, error) {
	db := s.db.WithContext(ctx)

	page, err := findPageBySlug(db, slug)
	if err != nil {
		return 0, err
	}
	return countVersions(db, page.ID)
}

func (s *Service) GetVersion(ctx context.Context, slug string, number int) (*VersionView, error) {
	db := s.db.WithContext(ctx)

	page, err := findPageBySlug(db, slug)
	if err != nil {
		return nil, err
	}

	version, err := versionByNumber(db, page.ID, number)
	if err != nil {
		return nil, err
	}

	return &VersionView{
		Page:      *page,
		Config:    version.Config,
		Version:   version.VersionNumber,
		IsCurrent: version.IsCurrent,
		CreatedAt: version.CreatedAt,
		CreatedBy: version.CreatedBy,
	}, nil
}

// CreatePage inserts the page and its first version together. Either both
// rows exist afterwards or neither does.
func (s *Service) CreatePage(ctx context.Context, in CreatePageInput) (*models.Page, error) {
	slug := strings.TrimSpace(in.Slug)
	name := strings.TrimSpace(in.Name)
	if slug == "" || name == "" {
		return nil, fmt.Errorf("%w: slug, name", ErrMissingRequiredField)
	}

	page := &models.Page{
		ID:          uuid.NewString(),
		Slug:        slug,
		Name:        name,
		Description: in.Description,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.Page{}).Where("slug = ?", slug).Count(&taken).Error; err != nil {
			return fmt.Errorf("checking slug: %w", err)
		}
		if taken > 0 {
			return ErrSlugTaken
		}

		if err := tx.Create(page).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrSlugTaken
			}
			return fmt.Errorf("creating page: %w", err)
		}

		return insertVersion(tx, &models.PageVersion{
			PageID:        page.ID,
			VersionNumber: 1,
			Config:        in.Config,
			IsCurrent:     true,
		})
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (s *Service) UpdatePage(ctx context.Context, slug string, in UpdatePageInput) (*UpdateResult, error) {
	result := &UpdateResult{Outcome: PageFieldsUpdated}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		page, err := findPageBySlug(tx, slug)
		if err != nil {
			return err
		}

		fields := map[string]interface{}{}
		if in.Name != nil && strings.TrimSpace(*in.Name) != "" {
			fields["name"] = strings.TrimSpace(*in.Name)
		}
		if in.Description.Set {
			if in.Description.Value == nil {
				fields["description"] = nil
			} else {
				fields["description"] = *in.Description.Value
			}
		}
		if len(fields) > 0 {
			fields["updated_at"] = time.Now()
			if err := tx.Model(&models.Page{}).Where("id = ?", page.ID).Updates(fields).Error; err != nil {
				return fmt.Errorf("updating page: %w", err)
			}
		}

		if in.Config.IsNull() {
			return nil
		}

		if !in.CreateNewVersion {
			current, err := currentVersion(tx, page.ID)
			if err != nil {
				return err
			}
			err = tx.Model(&models.PageVersion{}).
				Where("id = ?", current.ID).
				Update("config", in.Config).Error
			if err != nil {
				return fmt.Errorf("overwriting current config: %w", err)
			}
			result.Outcome = ConfigOverwritten
			result.Version = current.VersionNumber
			return touchPage(tx, page.ID)
		}

		created, err := appendCurrentVersion(tx, page.ID, in.Config, nil)
		if err != nil {
			return err
		}
		result.Outcome = VersionCreated
		result.Version = created.VersionNumber
		return touchPage(tx, page.ID)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetCurrentVersion promotes an existing version without copying it.
func (s *Service) SetCurrentVersion(ctx context.Context, slug string, number int) error {
	var pageID string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		page, err := findPageBySlug(tx, slug)
		if err != nil {
			return err
		}
		pageID = page.ID

		target, err := versionByNumber(tx, page.ID, number)
		if err != nil {
			return err
		}

		if err := clearCurrent(tx, page.ID); err != nil {
			return err
		}
		return markCurrent(tx, target.ID)
	})
	if err != nil {
		return err
	}

	// The promotion is committed at this point; a stale updated_at is not worth failing for.
	if err := touchPage(s.db.WithContext(ctx), pageID); err != nil {
		slog.Warn("error refreshing page updated_at after promotion", "slug", slug, "error", err)
	}
	return nil
}

// RestoreVersion copies an older version's config forward into a new current
// version. The source version is left untouched.
func (s *Service) RestoreVersion(ctx context.Context, slug string, number int, createdBy string) (*RestoreResult, error) {
	result := &RestoreResult{From: number}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		page, err := findPageBySlug(tx, slug)
		if err != nil {
			return err
		}

		source, err := versionByNumber(tx, page.ID, number)
		if err != nil {
			return err
		}

		// a blank created_by counts as missing
		attribution := strings.TrimSpace(createdBy)
		if attribution == "" {
			attribution = RestoredFrom(number)
		}

		config := append(models.Document(nil), source.Config...)
		created, err := appendCurrentVersion(tx, page.ID, config, &attribution)
		if err != nil {
			return err
		}
		result.Version = created.VersionNumber

		return touchPage(tx, page.ID)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeletePage removes the page and all its versions. It reports whether a
// page was actually deleted; a missing slug is not an error.
func (s *Service) DeletePage(ctx context.Context, slug string) (bool, error) {
	deleted := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		page, err := findPageBySlug(tx, slug)
		if errors.Is(err, ErrPageNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Where("page_id = ?", page.ID).Delete(&models.PageVersion{}).Error; err != nil {
			return fmt.Errorf("deleting versions: %w", err)
		}

		res := tx.Where("id = ?", page.ID).Delete(&models.Page{})
		if res.Error != nil {
			return fmt.Errorf("deleting page: %w", res.Error)
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// RestoredFrom is the default attribution of a restored version.
func RestoredFrom(number int) string {
	return fmt.Sprintf("Obnoveno z verze %d", number)
}

// appendCurrentVersion adds the next version for the page and makes it the
// only current one. Must run inside a transaction.
func appendCurrentVersion(tx *gorm.DB, pageID string, config models.Document, createdBy *string) (*models.PageVersion, error) {
	next, err := nextVersionNumber(tx, pageID)
	if err != nil {
		return nil, err
	}

	if err := clearCurrent(tx, pageID); err != nil {
		return nil, err
	}

	version := &models.PageVersion{
		PageID:        pageID,
		VersionNumber: next,
		Config:        config,
		IsCurrent:     true,
		CreatedBy:     createdBy,
	}
	if err := insertVersion(tx, version); err != nil {
		return nil, err
	}
	return version, nil
}
