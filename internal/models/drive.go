package models

import "github.com/google/uuid"

type DriveType string

const (
	DriveTypePersonal DriveType = "personal"
	DriveTypeShared   DriveType = "shared"
)

// Drive is a tenant's storage root. Capacity is nil for an unlimited drive.
type Drive struct {
	BaseModel
	OwnerID  uuid.UUID `json:"ownerID" gorm:"type:uuid;not null;index"`
	Name     string    `json:"name" gorm:"type:varchar(255);not null"`
	Type     DriveType `json:"type" gorm:"type:varchar(20);not null;default:'shared'"`
	Capacity *int64    `json:"capacity,omitempty"`
	Used     int64     `json:"used" gorm:"not null;default:0"`
	IsActive bool      `json:"isActive" gorm:"not null;default:true;index"`

	Owner   User   `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
	Members []User `json:"members,omitempty" gorm:"many2many:drive_members"`
}

func (Drive) TableName() string {
	return "drives"
}

func (d *Drive) IsPersonal() bool {
	return d.Type == DriveTypePersonal
}

// Available reports the remaining quota, or -1 for an unlimited drive.
func (d *Drive) Available() int64 {
	if d.Capacity == nil {
		return -1
	}
	if remaining := *d.Capacity - d.Used; remaining > 0 {
		return remaining
	}
	return 0
}
