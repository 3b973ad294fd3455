// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"taskfolio/config"
	"taskfolio/models"
)

// NewDB returns a migrated in-memory SQLite database private to the test.
// A single connection serializes transactions the way row locks would on
// Postgres.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := config.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a user with a throwaway password hash.
func CreateUser(t testing.TB, db *gorm.DB, username string) models.User {
	t.Helper()
	u := models.User{
		Username:     username,
		Email:        models.NormalizeEmail(username + "@example.com"),
		PasswordHash: "x",
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// CreateFolder inserts a folder owned by ownerID.
func CreateFolder(t testing.TB, db *gorm.DB, ownerID uint, name string) models.Folder {
	t.Helper()
	f := models.Folder{Name: name, Color: models.DefaultFolderColor, UserID: ownerID}
	if err := db.Create(&f).Error; err != nil {
		t.Fatalf("create folder %s: %v", name, err)
	}
	return f
}
