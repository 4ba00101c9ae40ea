package database

import (
	"testing"

	"github.com/docshare/conduit/internal/config"
	"github.com/docshare/conduit/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func setupMigratedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("failed migrating: %v", err)
	}
	return db
}

func TestMigrate(t *testing.T) {
	db := setupMigratedDB(t)

	t.Run("is idempotent", func(t *testing.T) {
		if err := Migrate(db); err != nil {
			t.Fatalf("second migration failed: %v", err)
		}
	})

	owner := &models.User{Email: "owner@test.com", FirstName: "Drive", LastName: "Owner"}
	if err := db.Create(owner).Error; err != nil {
		t.Fatalf("failed creating owner: %v", err)
	}

	t.Run("rejects a second active personal drive", func(t *testing.T) {
		first := &models.Drive{OwnerID: owner.ID, Name: "mine", Type: models.DriveTypePersonal}
		if err := db.Create(first).Error; err != nil {
			t.Fatalf("failed creating personal drive: %v", err)
		}
		second := &models.Drive{OwnerID: owner.ID, Name: "mine-too", Type: models.DriveTypePersonal}
		if err := db.Create(second).Error; err == nil {
			t.Fatal("expected unique violation for second personal drive")
		}
	})

	t.Run("allows many shared drives", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			drive := &models.Drive{OwnerID: owner.ID, Name: "team", Type: models.DriveTypeShared}
			if err := db.Create(drive).Error; err != nil {
				t.Fatalf("failed creating shared drive %d: %v", i, err)
			}
		}
	})

	t.Run("rejects duplicate node identity", func(t *testing.T) {
		driveID := uuid.New()
		node := &models.Node{OwnerID: owner.ID, DriveID: driveID, Name: "home", Path: "/home", IsDirectory: true}
		if err := db.Create(node).Error; err != nil {
			t.Fatalf("failed creating node: %v", err)
		}
		dup := &models.Node{OwnerID: owner.ID, DriveID: driveID, Name: "home", Path: "/home", IsDirectory: true}
		if err := db.Create(dup).Error; err == nil {
			t.Fatal("expected unique violation for duplicate node")
		}
	})

	t.Run("rejects a second container for a node", func(t *testing.T) {
		driveID := uuid.New()
		child := uuid.New()
		first := &models.NodeContent{NodeID: uuid.New(), ChildID: child, DriveID: driveID}
		if err := db.Create(first).Error; err != nil {
			t.Fatalf("failed creating edge: %v", err)
		}
		second := &models.NodeContent{NodeID: uuid.New(), ChildID: child, DriveID: driveID}
		if err := db.Create(second).Error; err == nil {
			t.Fatal("expected unique violation for second container")
		}
	})
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	if _, err := Connect(config.DBConfig{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
