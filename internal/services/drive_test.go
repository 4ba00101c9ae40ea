package services

import (
	"context"
	"errors"
	"testing"

	"github.com/docshare/conduit/internal/config"
	"github.com/docshare/conduit/internal/models"
	"github.com/docshare/conduit/internal/tree"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func TestDriveService_Lifecycle(t *testing.T) {
	db := setupServicesTestDB(t)
	service := NewDriveService(db, config.TreeConfig{MaxDepth: 16})
	ctx := context.Background()
	owner := createUser(t, db, "owner@test.com", "Ada", "Owner")

	t.Run("one personal drive per owner", func(t *testing.T) {
		drive, err := service.CreatePersonalDrive(ctx, owner, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !drive.IsPersonal() || drive.Available() != -1 {
			t.Errorf("expected unlimited personal drive, got %+v", drive)
		}
		if _, err := service.CreatePersonalDrive(ctx, owner, nil); !errors.Is(err, ErrPersonalDriveExists) {
			t.Fatalf("expected ErrPersonalDriveExists, got %v", err)
		}
	})

	t.Run("personal drive cannot be deleted", func(t *testing.T) {
		drives, _ := service.ListForUser(ctx, owner.ID)
		if len(drives) != 1 {
			t.Fatalf("expected 1 drive, got %d", len(drives))
		}
		if err := service.Deactivate(ctx, drives[0].ID); !errors.Is(err, ErrPersonalDrive) {
			t.Errorf("expected ErrPersonalDrive, got %v", err)
		}
	})

	t.Run("shared drive requires a name", func(t *testing.T) {
		if _, err := service.CreateSharedDrive(ctx, owner, "  ", nil); !errors.Is(err, ErrInvalidDriveName) {
			t.Errorf("expected ErrInvalidDriveName, got %v", err)
		}
	})

	t.Run("shared drive lifecycle", func(t *testing.T) {
		capacity := int64(1000)
		drive, err := service.CreateSharedDrive(ctx, owner, "Team", &capacity)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		members, err := service.Members(ctx, drive.ID)
		if err != nil || len(members) != 1 || members[0].ID != owner.ID {
			t.Fatalf("expected owner as only member, got %v (%v)", members, err)
		}

		guest := createUser(t, db, "guest@test.com", "Gus", "Guest")
		if service.HasAccess(ctx, drive.ID, guest.ID) {
			t.Error("guest should not have access yet")
		}
		if err := service.AddMember(ctx, drive.ID, guest.ID); err != nil {
			t.Fatalf("failed adding member: %v", err)
		}
		if !service.HasAccess(ctx, drive.ID, guest.ID) {
			t.Error("member should have access")
		}

		guestDrives, _ := service.ListForUser(ctx, guest.ID)
		if len(guestDrives) != 1 || guestDrives[0].ID != drive.ID {
			t.Errorf("expected guest to see the team drive, got %+v", guestDrives)
		}

		if err := service.Deactivate(ctx, drive.ID); err != nil {
			t.Fatalf("failed deactivating: %v", err)
		}
		if _, err := service.Get(ctx, drive.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Errorf("deactivated drive should be gone, got %v", err)
		}
		if service.HasAccess(ctx, drive.ID, owner.ID) {
			t.Error("deactivated drive grants no access")
		}
	})

	t.Run("members cannot join a personal drive", func(t *testing.T) {
		drives, _ := service.ListForUser(ctx, owner.ID)
		guest := createUser(t, db, "other@test.com", "Oli", "Other")
		if err := service.AddMember(ctx, drives[0].ID, guest.ID); !errors.Is(err, ErrPersonalDrive) {
			t.Errorf("expected ErrPersonalDrive, got %v", err)
		}
	})

	t.Run("unknown member", func(t *testing.T) {
		drive, _ := service.CreateSharedDrive(ctx, owner, "Another", nil)
		if err := service.AddMember(ctx, drive.ID, uuid.New()); !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
	})
}

func seedNodes(t *testing.T, db *gorm.DB, owner *models.User, drive *models.Drive) map[string]models.Node {
	t.Helper()
	nodes := map[string]models.Node{}
	add := func(parent, name string, dir bool, size int64) {
		node := models.Node{OwnerID: owner.ID, DriveID: drive.ID, Name: name, Path: parent + "/" + name, IsDirectory: dir, Size: size}
		if err := db.Create(&node).Error; err != nil {
			t.Fatalf("failed creating %s: %v", node.Path, err)
		}
		nodes[node.Path] = node
		if parent != "" {
			edge := models.NodeContent{NodeID: nodes[parent].ID, ChildID: node.ID, DriveID: drive.ID}
			if err := db.Create(&edge).Error; err != nil {
				t.Fatalf("failed linking %s: %v", node.Path, err)
			}
		}
	}
	add("", "home", true, 6)
	add("/home", "living", true, 4)
	add("/home/living", "tv.jpg", false, 4)
	add("/home", "todo.txt", false, 2)
	add("", "readme.md", false, 1)
	return nodes
}

func TestDriveService_Tree(t *testing.T) {
	db := setupServicesTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "tree@test.com", "Tia", "Tree")
	service := NewDriveService(db, config.TreeConfig{MaxDepth: 8})
	drive, err := service.CreateSharedDrive(ctx, owner, "House", nil)
	if err != nil {
		t.Fatalf("failed creating drive: %v", err)
	}
	nodes := seedNodes(t, db, owner, drive)

	t.Run("root nodes", func(t *testing.T) {
		roots, err := service.RootNodes(ctx, drive.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(roots) != 2 {
			t.Fatalf("expected 2 roots, got %d", len(roots))
		}
	})

	t.Run("children", func(t *testing.T) {
		children, err := service.Children(ctx, drive.ID, nodes["/home"].ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(children) != 2 || children[0].Name != "living" || children[1].Name != "todo.txt" {
			t.Errorf("unexpected children %+v", children)
		}
	})

	t.Run("children of a node in another drive", func(t *testing.T) {
		if _, err := service.Children(ctx, uuid.New(), nodes["/home"].ID); !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
	})

	t.Run("full tree", func(t *testing.T) {
		entries, err := service.Tree(ctx, drive.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(entries) != 5 {
			t.Fatalf("expected 5 entries, got %d", len(entries))
		}
		names := tree.ChildNames(entries)
		if got := names["/home/living"]; len(got) != 1 || got[0] != "tv.jpg" {
			t.Errorf("unexpected living children %v", got)
		}
	})

	t.Run("depth limit", func(t *testing.T) {
		shallow := NewDriveService(db, config.TreeConfig{MaxDepth: 1})
		if _, err := shallow.Tree(ctx, drive.ID); !errors.Is(err, tree.ErrDepthExceeded) {
			t.Errorf("expected ErrDepthExceeded, got %v", err)
		}
	})

	t.Run("recompute usage", func(t *testing.T) {
		used, err := service.RecomputeUsage(ctx, drive.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if used != 7 {
			t.Errorf("expected 7, got %d", used)
		}
		reloaded, _ := service.Get(ctx, drive.ID)
		if reloaded.Used != 7 {
			t.Errorf("expected stored usage 7, got %d", reloaded.Used)
		}
	})
}
