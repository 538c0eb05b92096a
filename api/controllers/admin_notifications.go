package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/api/responses"
	"github.com/angelmondragon/loyalty-backend/api/validators"
	"github.com/angelmondragon/loyalty-backend/internal/notifications"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

// Broadcaster is the admin fan-out entry point.
type Broadcaster interface {
	Broadcast(ctx context.Context, req notifications.BroadcastRequest) (*notifications.BroadcastResult, error)
}

type broadcastRequest struct {
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Type       string         `json:"type"`
	Data       map[string]any `json:"data"`
	ActiveOnly *bool          `json:"activeOnly"`
	Role       *string        `json:"role" validate:"omitempty,oneof=user admin super_admin"`
	TierID     *string        `json:"tierId" validate:"omitempty,uuid"`
	ExpiresAt  *time.Time     `json:"expiresAt"`
}

// AdminBroadcastNotification stores an announcement for every matching user.
// activeOnly defaults to true.
func AdminBroadcastNotification(svc Broadcaster, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req broadcastRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := notifications.BroadcastRequest{
			Title:      req.Title,
			Message:    req.Message,
			Type:       enums.NotificationType(req.Type),
			Data:       req.Data,
			ExpiresAt:  req.ExpiresAt,
			ActiveOnly: req.ActiveOnly == nil || *req.ActiveOnly,
		}
		if req.Role != nil {
			role := enums.UserRole(*req.Role)
			input.Role = &role
		}
		if req.TierID != nil {
			tierID := uuid.MustParse(*req.TierID)
			input.TierID = &tierID
		}

		result, err := svc.Broadcast(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminCleanupNotifications deletes every expired notification immediately.
func AdminCleanupNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := svc.CleanupExpired(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"deletedCount": count})
	}
}
