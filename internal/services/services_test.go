package services

import (
	"testing"

	"github.com/docshare/conduit/internal/database"
	"github.com/docshare/conduit/internal/models"
	"github.com/docshare/conduit/pkg/logger"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupServicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger.Init()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite: %v", err)
	}

	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, email, first, last string) *models.User {
	t.Helper()
	user := &models.User{Email: email, FirstName: first, LastName: last}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user %s: %v", email, err)
	}
	return user
}
