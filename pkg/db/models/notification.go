package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

// Notification is a durable in-app message owned by a single user.
type Notification struct {
	ID        uuid.UUID              `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID              `gorm:"type:uuid;not null;index:idx_notifications_user_created,priority:1"`
	Title     string                 `gorm:"type:text;not null"`
	Message   string                 `gorm:"type:text;not null"`
	Type      enums.NotificationType `gorm:"type:varchar(32);not null;default:info"`
	Data      datatypes.JSON         `gorm:"column:data"`
	ReadAt    *time.Time             `gorm:"column:read_at"`
	ExpiresAt *time.Time             `gorm:"column:expires_at;index"`
	CreatedAt time.Time              `gorm:"column:created_at;not null;index:idx_notifications_user_created,priority:2,sort:desc"`
	UpdatedAt time.Time              `gorm:"column:updated_at;not null"`
}

// BeforeCreate assigns the identifier when the caller did not.
func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// IsRead reports whether the notification has been marked read.
func (n Notification) IsRead() bool {
	return n.ReadAt != nil
}
