package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stavweb/common"
	"stavweb/models"
)

func TestRunMigrations(t *testing.T) {
	db, err := common.ConnectMemoryDb()
	require.NoError(t, err)

	require.NoError(t, RunMigrations(db))
	// running twice is a no-op
	require.NoError(t, RunMigrations(db))

	assert.True(t, db.Migrator().HasTable(&models.Page{}))
	assert.True(t, db.Migrator().HasTable(&models.PageVersion{}))
	assert.True(t, db.Migrator().HasIndex(&models.PageVersion{}, "idx_page_versions_one_current"))
	assert.True(t, db.Migrator().HasIndex(&models.PageVersion{}, "idx_page_versions_number"))
}

func TestVersionNumberIsUniquePerPage(t *testing.T) {
	db, err := common.ConnectMemoryDb()
	require.NoError(t, err)
	require.NoError(t, RunMigrations(db))

	require.NoError(t, db.Create(&models.Page{ID: "p1", Slug: "about", Name: "O nás"}).Error)
	require.NoError(t, db.Create(&models.PageVersion{ID: "v1", PageID: "p1", VersionNumber: 1, Config: models.EmptyDocument()}).Error)

	err = db.Create(&models.PageVersion{ID: "v1-dup", PageID: "p1", VersionNumber: 1, Config: models.EmptyDocument()}).Error
	assert.Error(t, err)
}

func TestVersionsRequireExistingPage(t *testing.T) {
	db, err := common.ConnectMemoryDb()
	require.NoError(t, err)
	require.NoError(t, RunMigrations(db))

	err = db.Create(&models.PageVersion{ID: "orphan", PageID: "missing", VersionNumber: 1, Config: models.EmptyDocument()}).Error
	assert.Error(t, err)
}
