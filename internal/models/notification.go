package models

import "github.com/google/uuid"

// Notification tells a drive member about a new share.
type Notification struct {
	BaseModel
	RecipientID uuid.UUID `json:"recipientID" gorm:"type:uuid;not null;index;uniqueIndex:idx_notification_target,priority:2"`
	PublisherID uuid.UUID `json:"publisherID" gorm:"type:uuid;not null"`
	DriveID     uuid.UUID `json:"driveID" gorm:"type:uuid;not null;index"`
	ShareID     uuid.UUID `json:"shareID" gorm:"type:uuid;not null;uniqueIndex:idx_notification_target,priority:1"`
	Message     string    `json:"message" gorm:"type:text;not null"`
	IsRead      bool      `json:"isRead" gorm:"not null;default:false;index"`

	Publisher User `json:"publisher,omitempty" gorm:"foreignKey:PublisherID;references:ID"`
}

func (Notification) TableName() string {
	return "notifications"
}
