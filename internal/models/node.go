package models

import (
	"time"

	"github.com/google/uuid"
)

// Node is a file or directory in a drive. Its identity is (owner, drive, name, path);
// Path is the "/"-joined chain of ancestor names ending in Name.
type Node struct {
	BaseModel
	OwnerID     uuid.UUID              `json:"ownerID" gorm:"type:uuid;not null;uniqueIndex:idx_node_identity,priority:1"`
	DriveID     uuid.UUID              `json:"driveID" gorm:"type:uuid;not null;index;uniqueIndex:idx_node_identity,priority:2"`
	Name        string                 `json:"name" gorm:"type:text;not null;uniqueIndex:idx_node_identity,priority:3"`
	Path        string                 `json:"path" gorm:"type:text;not null;uniqueIndex:idx_node_identity,priority:4"`
	IsDirectory bool                   `json:"isDirectory" gorm:"not null;default:false"`
	Size        int64                  `json:"size" gorm:"not null;default:0"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`

	Owner User  `json:"-" gorm:"foreignKey:OwnerID;references:ID"`
	Drive Drive `json:"-" gorm:"foreignKey:DriveID;references:ID"`
}

func (Node) TableName() string {
	return "nodes"
}

// NodeContent is a containment edge. The unique ChildID gives every node at most one container.
type NodeContent struct {
	NodeID    uuid.UUID `json:"nodeID" gorm:"type:uuid;primaryKey"`
	ChildID   uuid.UUID `json:"childID" gorm:"type:uuid;primaryKey;uniqueIndex:idx_node_content_child"`
	DriveID   uuid.UUID `json:"driveID" gorm:"type:uuid;not null;index"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
}

func (NodeContent) TableName() string {
	return "node_contents"
}
