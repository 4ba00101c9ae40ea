package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docshare/conduit/internal/config"
	"github.com/docshare/conduit/internal/database"
	"github.com/docshare/conduit/internal/models"
	"github.com/docshare/conduit/internal/tree"
	"github.com/docshare/conduit/internal/txn"
	"github.com/docshare/conduit/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrPersonalDrive       = errors.New("personal drives cannot be deleted or shared")
	ErrPersonalDriveExists = errors.New("owner already has a personal drive")
	ErrInvalidDriveName    = errors.New("drive name is required")
)

type DriveService struct {
	DB       *gorm.DB
	maxDepth int
}

func NewDriveService(db *gorm.DB, cfg config.TreeConfig) *DriveService {
	return &DriveService{DB: db, maxDepth: cfg.MaxDepth}
}

// CreatePersonalDrive gives owner the single personal drive created at sign-up.
func (s *DriveService) CreatePersonalDrive(ctx context.Context, owner *models.User, capacity *int64) (*models.Drive, error) {
	drive := models.Drive{
		OwnerID:  owner.ID,
		Name:     "Personal",
		Type:     models.DriveTypePersonal,
		Capacity: capacity,
		IsActive: true,
	}
	if err := s.DB.WithContext(ctx).Create(&drive).Error; err != nil {
		if txn.IsIntegrityViolation(err) {
			return nil, ErrPersonalDriveExists
		}
		return nil, err
	}

	logger.InfoWithUser(owner.ID.String(), "personal_drive_created", map[string]interface{}{
		"drive_id": drive.ID.String(),
	})
	return &drive, nil
}

func (s *DriveService) CreateSharedDrive(ctx context.Context, owner *models.User, name string, capacity *int64) (*models.Drive, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidDriveName
	}

	drive := models.Drive{
		OwnerID:  owner.ID,
		Name:     name,
		Type:     models.DriveTypeShared,
		Capacity: capacity,
		IsActive: true,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&drive).Error; err != nil {
			return err
		}
		return tx.Model(&drive).Association("Members").Append(owner)
	})
	if err != nil {
		return nil, err
	}

	logger.InfoWithUser(owner.ID.String(), "shared_drive_created", map[string]interface{}{
		"drive_id":   drive.ID.String(),
		"drive_name": drive.Name,
	})
	return &drive, nil
}

// Get returns an active drive.
func (s *DriveService) Get(ctx context.Context, driveID uuid.UUID) (*models.Drive, error) {
	var drive models.Drive
	if err := s.DB.WithContext(ctx).First(&drive, "id = ? AND is_active = ?", driveID, true).Error; err != nil {
		return nil, err
	}
	return &drive, nil
}

// ListForUser returns the active drives userID owns or belongs to.
func (s *DriveService) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Drive, error) {
	memberOf := s.DB.Table("drive_members").Select("drive_id").Where("user_id = ?", userID)

	var drives []models.Drive
	err := s.DB.WithContext(ctx).
		Where("is_active = ?", true).
		Where("owner_id = ? OR id IN (?)", userID, memberOf).
		Order("type ASC, created_at ASC").
		Find(&drives).Error
	return drives, err
}

// Deactivate soft-deletes a shared drive.
func (s *DriveService) Deactivate(ctx context.Context, driveID uuid.UUID) error {
	drive, err := s.Get(ctx, driveID)
	if err != nil {
		return err
	}
	if drive.IsPersonal() {
		return ErrPersonalDrive
	}
	if err := s.DB.WithContext(ctx).Model(drive).Update("is_active", false).Error; err != nil {
		return err
	}

	logger.InfoWithUser(drive.OwnerID.String(), "drive_deactivated", map[string]interface{}{
		"drive_id": drive.ID.String(),
	})
	return nil
}

func (s *DriveService) AddMember(ctx context.Context, driveID, userID uuid.UUID) error {
	drive, err := s.Get(ctx, driveID)
	if err != nil {
		return err
	}
	if drive.IsPersonal() {
		return ErrPersonalDrive
	}

	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Model(drive).Association("Members").Append(&user)
}

func (s *DriveService) Members(ctx context.Context, driveID uuid.UUID) ([]models.User, error) {
	var members []models.User
	err := s.DB.WithContext(ctx).
		Joins("JOIN drive_members ON drive_members.user_id = users.id").
		Where("drive_members.drive_id = ?", driveID).
		Order("users.email ASC").
		Find(&members).Error
	return members, err
}

// HasAccess reports whether userID owns or is a member of the active drive.
func (s *DriveService) HasAccess(ctx context.Context, driveID, userID uuid.UUID) bool {
	drive, err := s.Get(ctx, driveID)
	if err != nil {
		return false
	}
	if drive.OwnerID == userID {
		return true
	}

	var count int64
	if err := s.DB.WithContext(ctx).Table("drive_members").
		Where("drive_id = ? AND user_id = ?", driveID, userID).
		Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

func (s *DriveService) RootNodes(ctx context.Context, driveID uuid.UUID) ([]models.Node, error) {
	return database.RootNodes(s.DB.WithContext(ctx), driveID)
}

// Children lists the direct contents of a node of driveID.
func (s *DriveService) Children(ctx context.Context, driveID, nodeID uuid.UUID) ([]models.Node, error) {
	var node models.Node
	if err := s.DB.WithContext(ctx).First(&node, "id = ? AND drive_id = ?", nodeID, driveID).Error; err != nil {
		return nil, err
	}
	return database.Children(s.DB.WithContext(ctx), node.ID)
}

// Tree reads the whole drive back breadth first, bounded by the configured depth.
func (s *DriveService) Tree(ctx context.Context, driveID uuid.UUID) ([]tree.Entry, error) {
	db := s.DB.WithContext(ctx)
	roots, err := database.RootNodes(db, driveID)
	if err != nil {
		return nil, err
	}
	entries, err := tree.Collect(roots, func(parentID uuid.UUID) ([]models.Node, error) {
		return database.Children(db, parentID)
	}, s.maxDepth)
	if err != nil {
		return nil, fmt.Errorf("reading tree of drive %s: %w", driveID, err)
	}
	return entries, nil
}

// RecomputeUsage stores the sum of the drive's root-level node sizes.
func (s *DriveService) RecomputeUsage(ctx context.Context, driveID uuid.UUID) (int64, error) {
	var used int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if used, err = database.DriveUsage(tx, driveID); err != nil {
			return err
		}
		return tx.Model(&models.Drive{}).Where("id = ?", driveID).Update("used", used).Error
	})
	return used, err
}
