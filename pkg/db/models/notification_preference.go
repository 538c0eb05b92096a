package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

// NotificationPreference gates creation of one notification type for one user.
type NotificationPreference struct {
	UserID    uuid.UUID              `gorm:"type:uuid;primaryKey"`
	Type      enums.NotificationType `gorm:"type:varchar(32);primaryKey"`
	Enabled   bool                   `gorm:"not null"`
	CreatedAt time.Time              `gorm:"column:created_at;not null"`
	UpdatedAt time.Time              `gorm:"column:updated_at;not null"`
}
