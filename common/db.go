package common

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// sqliteParams are appended to every DSN. _txlock=immediate makes every
// transaction take the writer lock at BEGIN, so concurrent version flips queue
// on busy_timeout instead of failing on lock upgrade.
var sqliteParams = []string{
	"_foreign_keys=on",
	"_journal_mode=WAL",
	"_busy_timeout=5000",
	"_synchronous=NORMAL",
	"_txlock=immediate",
}

// DSN builds the sqlite connection string for a database file.
func DSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "file:" + path + sep + strings.Join(sqliteParams, "&")
}

func ConnectDb(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path not set")
	}

	db, err := gorm.Open(sqlite.Open(DSN(path)), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging sqlite db %s: %w", path, err)
	}

	slog.Info("opened sqlite db", "path", path)
	return db, nil
}

// ConnectAuditDb opens the separate audit database. An empty path disables auditing.
func ConnectAuditDb(path string) *gorm.DB {
	if path == "" {
		slog.Info("AUDIT_DB not set, audit log disabled")
		return nil
	}

	db, err := ConnectDb(path)
	if err != nil {
		slog.Error("error opening audit db, audit log disabled", "error", err)
		return nil
	}
	return db
}

// ConnectMemoryDb opens a private in-memory database on a single connection.
// Used by tests; every call returns an independent database.
func ConnectMemoryDb() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
