package users

import (
	"context"
	"errors"

	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when the user row does not exist.
var ErrNotFound = errors.New("user not found")

// RoleStatus is the live authorization state of a user.
type RoleStatus struct {
	Role   enums.UserRole
	Active bool
}

// RecipientFilter narrows a broadcast audience. Nil fields do not filter.
type RecipientFilter struct {
	ActiveOnly bool
	Role       *enums.UserRole
	TierID     *uuid.UUID
}

// Repository exposes the user lookups this service needs. The users table is
// owned by the identity service; only Create exists for seeding and tests.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// CurrentRole reads the role and activity flag straight from the table.
func (r *Repository) CurrentRole(ctx context.Context, id uuid.UUID) (RoleStatus, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Select("id", "role", "is_active").
		Take(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RoleStatus{}, ErrNotFound
		}
		return RoleStatus{}, err
	}
	return RoleStatus{Role: user.Role, Active: user.IsActive}, nil
}

// ListRecipientIDs returns ids of users matching the filter, oldest first.
func (r *Repository) ListRecipientIDs(ctx context.Context, filter RecipientFilter) ([]uuid.UUID, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.TierID != nil {
		query = query.Where("tier_id = ?", *filter.TierID)
	}

	var ids []uuid.UUID
	if err := query.Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
