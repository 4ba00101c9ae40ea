package database

import (
	"github.com/docshare/conduit/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DriveUsage sums the sizes of the drive's root-level nodes, those no other node contains.
func DriveUsage(db *gorm.DB, driveID uuid.UUID) (int64, error) {
	contained := db.Model(&models.NodeContent{}).Select("child_id").Where("drive_id = ?", driveID)

	var used int64
	err := db.Model(&models.Node{}).
		Select("COALESCE(SUM(size), 0)").
		Where("drive_id = ?", driveID).
		Where("id NOT IN (?)", contained).
		Row().
		Scan(&used)
	return used, err
}

// RootNodes lists the drive's nodes without a container, ordered by path.
func RootNodes(db *gorm.DB, driveID uuid.UUID) ([]models.Node, error) {
	contained := db.Model(&models.NodeContent{}).Select("child_id").Where("drive_id = ?", driveID)

	var nodes []models.Node
	err := db.Where("drive_id = ?", driveID).
		Where("id NOT IN (?)", contained).
		Order("path ASC").
		Find(&nodes).Error
	return nodes, err
}

// Children lists the nodes directly contained by parentID, ordered by name.
func Children(db *gorm.DB, parentID uuid.UUID) ([]models.Node, error) {
	var nodes []models.Node
	err := db.Joins("JOIN node_contents ON node_contents.child_id = nodes.id").
		Where("node_contents.node_id = ?", parentID).
		Order("nodes.name ASC").
		Find(&nodes).Error
	return nodes, err
}
