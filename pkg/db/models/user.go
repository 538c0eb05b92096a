package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

// User carries the identity columns this service reads: role, activity and tier.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Email     string         `gorm:"type:text;not null;uniqueIndex"`
	Role      enums.UserRole `gorm:"type:varchar(32);not null;default:user"`
	IsActive  bool           `gorm:"column:is_active;not null"`
	TierID    *uuid.UUID     `gorm:"type:uuid;column:tier_id"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the identifier when the caller did not.
func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
