package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/loyalty-backend/internal/users"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/google/uuid"
)

const (
	maxBroadcastTitle   = 200
	maxBroadcastMessage = 2000
)

// RecipientLister resolves a broadcast audience.
type RecipientLister interface {
	ListRecipientIDs(ctx context.Context, filter users.RecipientFilter) ([]uuid.UUID, error)
}

// BroadcastRequest is an admin announcement to a filtered set of users.
type BroadcastRequest struct {
	Title      string
	Message    string
	Type       enums.NotificationType
	Data       map[string]any
	ExpiresAt  *time.Time
	ActiveOnly bool
	Role       *enums.UserRole
	TierID     *uuid.UUID
}

// BroadcastResult reports audience size and rows stored.
type BroadcastResult struct {
	Recipients int `json:"recipients"`
	Created    int `json:"notificationsSent"`
}

// BroadcastService fans an admin announcement out to every matching user.
// Announcements bypass per-user preferences.
type BroadcastService struct {
	policy     *Policy
	recipients RecipientLister
	logg       *logger.Logger
}

// NewBroadcastService wires broadcast dependencies.
func NewBroadcastService(policy *Policy, recipients RecipientLister, logg *logger.Logger) (*BroadcastService, error) {
	if policy == nil {
		return nil, fmt.Errorf("policy required")
	}
	if recipients == nil {
		return nil, fmt.Errorf("recipient lister required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &BroadcastService{policy: policy, recipients: recipients, logg: logg}, nil
}

// Broadcast stores one notification per recipient. On partial failure it
// returns the rows stored alongside a dependency error.
func (s *BroadcastService) Broadcast(ctx context.Context, req BroadcastRequest) (*BroadcastResult, error) {
	if err := validateBroadcast(&req); err != nil {
		return nil, err
	}

	ids, err := s.recipients.ListRecipientIDs(ctx, users.RecipientFilter{
		ActiveOnly: req.ActiveOnly,
		Role:       req.Role,
		TierID:     req.TierID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list broadcast recipients")
	}

	specs := make([]Spec, 0, len(ids))
	for _, id := range ids {
		specs = append(specs, Spec{
			UserID:    id,
			Type:      req.Type,
			Title:     req.Title,
			Message:   req.Message,
			Data:      req.Data,
			ExpiresAt: req.ExpiresAt,
		})
	}

	created, err := s.policy.BulkCreate(ctx, specs)
	result := &BroadcastResult{Recipients: len(ids), Created: created}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"recipients": len(ids),
		"created":    created,
		"type":       req.Type,
	})
	if err != nil {
		s.logg.Error(logCtx, "broadcast partially failed", err)
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "broadcast notifications").
			WithDetails(map[string]any{"notificationsSent": created, "recipients": len(ids)})
	}
	s.logg.Info(logCtx, "broadcast notifications created")
	return result, nil
}

func validateBroadcast(req *BroadcastRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	req.Message = strings.TrimSpace(req.Message)

	details := map[string]string{}
	if n := len([]rune(req.Title)); n < 1 || n > maxBroadcastTitle {
		details["title"] = fmt.Sprintf("must be 1-%d characters", maxBroadcastTitle)
	}
	if n := len([]rune(req.Message)); n < 1 || n > maxBroadcastMessage {
		details["message"] = fmt.Sprintf("must be 1-%d characters", maxBroadcastMessage)
	}
	if req.Type == "" {
		req.Type = enums.NotificationTypeInfo
	} else if !req.Type.IsValid() {
		details["type"] = fmt.Sprintf("unknown notification type %q", req.Type)
	}
	if req.Role != nil && !req.Role.IsValid() {
		details["role"] = fmt.Sprintf("unknown role %q", *req.Role)
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid broadcast request").WithDetails(details)
	}
	return nil
}
