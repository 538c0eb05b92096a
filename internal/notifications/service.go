package notifications

import (
	"context"
	"fmt"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/pagination"
	"github.com/google/uuid"
)

// Service is the HTTP-facing notification surface: it clamps paging, validates
// preference payloads and maps store failures onto error codes.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, userID, notificationID uuid.UUID) error
	Preferences(ctx context.Context, userID uuid.UUID) ([]PreferenceDTO, error)
	UpdatePreferences(ctx context.Context, userID uuid.UUID, updates []PreferenceUpdate) ([]PreferenceDTO, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// ListParams configures a page request. Zero values fall back to defaults.
type ListParams struct {
	UserID      uuid.UUID
	Page        int
	Limit       int
	IncludeRead bool
}

// PreferenceUpdate is a raw (type, enabled) pair from a client.
type PreferenceUpdate struct {
	Type    string
	Enabled bool
}

// NewService wires notifications dependencies.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	page := pagination.Normalize(pagination.Params{Page: params.Page, Limit: params.Limit})
	rows, err := s.repo.ListForUser(ctx, params.UserID, page, params.IncludeRead)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	items := make([]NotificationDTO, 0, len(rows.Items))
	for _, row := range rows.Items {
		dto, repairErr := toDTO(row)
		if repairErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "notification_id", row.ID.String()), repairErr.Error())
		}
		items = append(items, dto)
	}

	return &ListResult{
		Items:  items,
		Total:  rows.Total,
		Unread: rows.Unread,
		Page:   page.Page,
		Limit:  page.Limit,
		Pages:  pagination.Pages(rows.Total, page.Limit),
	}, nil
}

func (s *service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}
	return count, nil
}

func (s *service) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if len(ids) == 0 {
		return 0, nil
	}
	count, err := s.repo.MarkRead(ctx, userID, dedupeIDs(ids))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	count, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark all notifications read")
	}
	return count, nil
}

// Delete reports not found for both missing and foreign-owned ids.
func (s *service) Delete(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	deleted, err := s.repo.Delete(ctx, userID, notificationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete notification")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) Preferences(ctx context.Context, userID uuid.UUID) ([]PreferenceDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	rows, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification preferences")
	}
	return toPreferenceDTOs(rows), nil
}

func (s *service) UpdatePreferences(ctx context.Context, userID uuid.UUID, updates []PreferenceUpdate) ([]PreferenceDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	inputs := make([]PreferenceInput, 0, len(updates))
	invalid := map[string]string{}
	for i, update := range updates {
		notificationType, err := enums.ParseNotificationType(update.Type)
		if err != nil {
			invalid[fmt.Sprintf("preferences[%d].type", i)] = err.Error()
			continue
		}
		inputs = append(inputs, PreferenceInput{Type: notificationType, Enabled: update.Enabled})
	}
	if len(invalid) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid notification type").WithDetails(invalid)
	}

	rows, err := s.repo.SetPreferences(ctx, userID, inputs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update notification preferences")
	}
	return toPreferenceDTOs(rows), nil
}

func (s *service) CleanupExpired(ctx context.Context) (int64, error) {
	count, err := s.repo.CleanupExpired(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cleanup expired notifications")
	}
	if count > 0 {
		s.logg.Info(s.logg.WithField(ctx, "deleted", count), "expired notifications removed")
	}
	return count, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
