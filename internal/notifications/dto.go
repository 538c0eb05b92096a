package notifications

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/google/uuid"
)

// NotificationDTO is the client-facing view of a notification.
type NotificationDTO struct {
	ID        uuid.UUID              `json:"id"`
	UserID    uuid.UUID              `json:"userId"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Type      enums.NotificationType `json:"type"`
	Data      map[string]any         `json:"data,omitempty"`
	IsRead    bool                   `json:"isRead"`
	ReadAt    *time.Time             `json:"readAt,omitempty"`
	ExpiresAt *time.Time             `json:"expiresAt,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// PreferenceDTO is the client-facing view of a notification preference.
type PreferenceDTO struct {
	Type      enums.NotificationType `json:"type"`
	Enabled   bool                   `json:"enabled"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// ListResult is a page of notifications plus the counters the UI badges use.
type ListResult struct {
	Items  []NotificationDTO `json:"items"`
	Total  int64             `json:"total"`
	Unread int64             `json:"unread"`
	Page   int               `json:"page"`
	Limit  int               `json:"limit"`
	Pages  int               `json:"pages"`
}

// toDTO never fails the caller on a malformed row: undecodable data is dropped
// and an unknown type renders as info. The returned error only describes what
// was repaired so the caller can log it.
func toDTO(n models.Notification) (NotificationDTO, error) {
	dto := NotificationDTO{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		IsRead:    n.ReadAt != nil,
		ReadAt:    n.ReadAt,
		ExpiresAt: n.ExpiresAt,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}

	var repairErr error
	if !dto.Type.IsValid() {
		repairErr = fmt.Errorf("notification %s has unknown type %q", n.ID, n.Type)
		dto.Type = enums.NotificationTypeInfo
	}
	if len(n.Data) > 0 {
		var data map[string]any
		if err := json.Unmarshal(n.Data, &data); err != nil {
			repairErr = fmt.Errorf("notification %s has malformed data: %w", n.ID, err)
		} else {
			dto.Data = data
		}
	}
	return dto, repairErr
}

func toPreferenceDTOs(rows []models.NotificationPreference) []PreferenceDTO {
	out := make([]PreferenceDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, PreferenceDTO{
			Type:      row.Type,
			Enabled:   row.Enabled,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return out
}
