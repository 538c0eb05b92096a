package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/angelmondragon/loyalty-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// activeClause is the single visibility predicate shared by listing and counting.
// A row whose expiry equals now is already expired.
const activeClause = "(expires_at IS NULL OR expires_at > ?)"

// Repository exposes persistence helpers for notifications and preferences.
// Ownership-scoped mutations report rows affected instead of erroring on misses.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, params CreateParams) (*models.Notification, error)
	CreateBatch(ctx context.Context, params []CreateParams) ([]models.Notification, error)
	ListForUser(ctx context.Context, userID uuid.UUID, page pagination.Params, includeRead bool) (ListPage, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, userID, notificationID uuid.UUID) (bool, error)
	CleanupExpired(ctx context.Context) (int64, error)
	DeleteExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
	GetPreference(ctx context.Context, userID uuid.UUID, notificationType enums.NotificationType) (*models.NotificationPreference, error)
	GetPreferences(ctx context.Context, userID uuid.UUID) ([]models.NotificationPreference, error)
	SetPreferences(ctx context.Context, userID uuid.UUID, prefs []PreferenceInput) ([]models.NotificationPreference, error)
}

// CreateParams describes a notification to persist.
type CreateParams struct {
	UserID    uuid.UUID
	Title     string
	Message   string
	Type      enums.NotificationType
	Data      map[string]any
	ExpiresAt *time.Time
}

// PreferenceInput is one (type, enabled) pair to upsert.
type PreferenceInput struct {
	Type    enums.NotificationType
	Enabled bool
}

// ListPage is a single offset page of active notifications.
type ListPage struct {
	Total  int64
	Unread int64
	Items  []models.Notification
}

type repositoryImpl struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db, now: utcNow}
}

func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx, now: r.now}
}

func (r *repositoryImpl) Create(ctx context.Context, params CreateParams) (*models.Notification, error) {
	notification, err := r.buildModel(params, r.now())
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Create(notification).Error; err != nil {
		return nil, err
	}
	return notification, nil
}

// CreateBatch inserts all rows in one transaction; either every row lands or
// none do. The stored rows are returned in input order.
func (r *repositoryImpl) CreateBatch(ctx context.Context, params []CreateParams) ([]models.Notification, error) {
	if len(params) == 0 {
		return nil, nil
	}
	now := r.now()
	rows := make([]models.Notification, 0, len(params))
	for _, p := range params {
		row, err := r.buildModel(p, now)
		if err != nil {
			return nil, err
		}
		rows = append(rows, *row)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) buildModel(params CreateParams, now time.Time) (*models.Notification, error) {
	notificationType := params.Type
	if notificationType == "" {
		notificationType = enums.NotificationTypeInfo
	}
	if !notificationType.IsValid() {
		return nil, fmt.Errorf("invalid notification type %q", params.Type)
	}
	var data datatypes.JSON
	if params.Data != nil {
		raw, err := json.Marshal(params.Data)
		if err != nil {
			return nil, fmt.Errorf("encode notification data: %w", err)
		}
		data = datatypes.JSON(raw)
	}
	var expiresAt *time.Time
	if params.ExpiresAt != nil {
		exp := params.ExpiresAt.UTC()
		expiresAt = &exp
	}
	return &models.Notification{
		ID:        uuid.New(),
		UserID:    params.UserID,
		Title:     params.Title,
		Message:   params.Message,
		Type:      notificationType,
		Data:      data,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (r *repositoryImpl) activeForUser(ctx context.Context, userID uuid.UUID, now time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ?", userID).
		Where(activeClause, now)
}

type notificationCounts struct {
	Total  int64
	Unread int64
}

func (r *repositoryImpl) ListForUser(ctx context.Context, userID uuid.UUID, page pagination.Params, includeRead bool) (ListPage, error) {
	now := r.now()

	var counts notificationCounts
	if err := r.activeForUser(ctx, userID, now).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN read_at IS NULL THEN 1 ELSE 0 END), 0) AS unread").
		Scan(&counts).Error; err != nil {
		return ListPage{}, err
	}

	query := r.activeForUser(ctx, userID, now)
	if !includeRead {
		query = query.Where("read_at IS NULL")
	}

	var items []models.Notification
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&items).Error; err != nil {
		return ListPage{}, err
	}

	total := counts.Total
	if !includeRead {
		total = counts.Unread
	}
	return ListPage{Total: total, Unread: counts.Unread, Items: items}, nil
}

func (r *repositoryImpl) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.activeForUser(ctx, userID, r.now()).
		Where("read_at IS NULL").
		Count(&count).Error
	return count, err
}

func (r *repositoryImpl) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := r.now()
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND id IN ? AND read_at IS NULL", userID, ids).
		UpdateColumns(map[string]any{"read_at": now, "updated_at": now})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	now := r.now()
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		UpdateColumns(map[string]any{"read_at": now, "updated_at": now})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) Delete(ctx context.Context, userID, notificationID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) CleanupExpired(ctx context.Context) (int64, error) {
	return r.DeleteExpired(ctx, r.db, r.now())
}

// DeleteExpired removes every row whose expiry is at or before now, across all users.
func (r *repositoryImpl) DeleteExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	conn := tx
	if conn == nil {
		conn = r.db
	}
	result := conn.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now.UTC()).
		Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}

// GetPreference returns nil when the user never stored a preference for the type.
func (r *repositoryImpl) GetPreference(ctx context.Context, userID uuid.UUID, notificationType enums.NotificationType) (*models.NotificationPreference, error) {
	var rows []models.NotificationPreference
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, notificationType).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repositoryImpl) GetPreferences(ctx context.Context, userID uuid.UUID) ([]models.NotificationPreference, error) {
	var rows []models.NotificationPreference
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("type ASC").
		Find(&rows).Error
	return rows, err
}

// SetPreferences upserts the given types and leaves the rest untouched. When a
// type repeats, the last entry wins.
func (r *repositoryImpl) SetPreferences(ctx context.Context, userID uuid.UUID, prefs []PreferenceInput) ([]models.NotificationPreference, error) {
	if len(prefs) > 0 {
		now := r.now()
		index := make(map[enums.NotificationType]int, len(prefs))
		rows := make([]models.NotificationPreference, 0, len(prefs))
		for _, pref := range prefs {
			if i, ok := index[pref.Type]; ok {
				rows[i].Enabled = pref.Enabled
				continue
			}
			index[pref.Type] = len(rows)
			rows = append(rows, models.NotificationPreference{
				UserID:    userID,
				Type:      pref.Type,
				Enabled:   pref.Enabled,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}

		if err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "type"}},
				DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
			}).
			Create(&rows).Error; err != nil {
			return nil, err
		}
	}
	return r.GetPreferences(ctx, userID)
}
