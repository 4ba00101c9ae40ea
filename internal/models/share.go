package models

import (
	"time"

	"github.com/google/uuid"
)

// Share groups the nodes produced by one upload batch.
type Share struct {
	BaseModel
	AuthorID uuid.UUID  `json:"authorID" gorm:"type:uuid;not null;index"`
	DriveID  uuid.UUID  `json:"driveID" gorm:"type:uuid;not null;index"`
	ParentID *uuid.UUID `json:"parentID,omitempty" gorm:"type:uuid;index"`
	Note     string     `json:"note" gorm:"type:varchar(3000);not null;default:''"`

	Author User  `json:"author,omitempty" gorm:"foreignKey:AuthorID;references:ID"`
	Drive  Drive `json:"-" gorm:"foreignKey:DriveID;references:ID"`
	Parent *Node `json:"parent,omitempty" gorm:"foreignKey:ParentID;references:ID"`
}

func (Share) TableName() string {
	return "shares"
}

// ShareAsset links a share to one of its uploaded nodes.
type ShareAsset struct {
	ShareID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	NodeID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
}

func (ShareAsset) TableName() string {
	return "share_assets"
}
