package common

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	dsn := DSN("./data/stavweb.db")
	assert.Equal(t, "file:./data/stavweb.db?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", dsn)

	withQuery := DSN("/tmp/x.db?mode=rwc")
	assert.Contains(t, withQuery, "?mode=rwc&_foreign_keys=on")
}

func TestConnectDb(t *testing.T) {
	_, err := ConnectDb("")
	assert.Error(t, err)

	db, err := ConnectDb(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	var fk int
	require.NoError(t, db.Raw("PRAGMA foreign_keys").Scan(&fk).Error)
	assert.Equal(t, 1, fk)

	sqlDB, _ := db.DB()
	assert.NoError(t, sqlDB.Close())
}

func TestConnectAuditDb(t *testing.T) {
	assert.Nil(t, ConnectAuditDb(""))

	db := ConnectAuditDb(filepath.Join(t.TempDir(), "audit.db"))
	require.NotNil(t, db)
	sqlDB, _ := db.DB()
	assert.NoError(t, sqlDB.Close())
}

func TestConnectMemoryDb_Independent(t *testing.T) {
	a, err := ConnectMemoryDb()
	require.NoError(t, err)
	b, err := ConnectMemoryDb()
	require.NoError(t, err)

	require.NoError(t, a.Exec("CREATE TABLE probe (id INTEGER)").Error)
	assert.True(t, a.Migrator().HasTable("probe"))
	assert.False(t, b.Migrator().HasTable("probe"))
}
