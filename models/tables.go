package models

import "time"

type Page struct {
	ID          string        `gorm:"primaryKey;type:text" json:"id"`
	Slug        string        `gorm:"uniqueIndex;not null" json:"slug"`
	Name        string        `gorm:"not null" json:"name"`
	Description *string       `gorm:"type:text" json:"description"`
	IsPublished bool          `gorm:"not null;default:false" json:"is_published"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Versions    []PageVersion `gorm:"foreignKey:PageID;constraint:OnDelete:CASCADE" json:"-"`
}

// PageVersion is one snapshot of a page configuration. Only IsCurrent ever
// changes after insert, apart from the in-place config overwrite of the current row.
type PageVersion struct {
	ID            string    `gorm:"primaryKey;type:text" json:"id"`
	PageID        string    `gorm:"type:text;not null;uniqueIndex:idx_page_versions_number,priority:1" json:"page_id"`
	VersionNumber int       `gorm:"not null;uniqueIndex:idx_page_versions_number,priority:2" json:"version_number"`
	Config        Document  `gorm:"not null" json:"config"`
	IsCurrent     bool      `gorm:"not null;default:false;index" json:"is_current"`
	CreatedAt     time.Time `json:"created_at"`
	CreatedBy     *string   `gorm:"type:text" json:"created_by"`
}
