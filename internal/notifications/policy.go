package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/loyalty-backend/internal/realtime"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const (
	defaultRewardExpiry     = 30 * 24 * time.Hour
	defaultTierChangeExpiry = 90 * 24 * time.Hour
	defaultBatchSize        = 500
)

// Content is what a Builder produces for one notification.
type Content struct {
	Title   string
	Message string
	Data    map[string]any
	// ExpiresAt overrides the per-type default expiry when set.
	ExpiresAt *time.Time
}

// Builder renders notification content lazily, only once the preference
// check allowed it.
type Builder func() Content

// Spec is one row of a fan-out request.
type Spec struct {
	UserID    uuid.UUID
	Type      enums.NotificationType
	Title     string
	Message   string
	Data      map[string]any
	ExpiresAt *time.Time
}

// Publisher pushes payloads to attached realtime sessions. It returns how
// many listeners took the payload; zero is normal when nobody is attached.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) int
}

// PolicyParams configure the notification policy.
type PolicyParams struct {
	Logger           *logger.Logger
	Repository       Repository
	// Publisher announces stored rows on the owner's notification channel.
	// Nil disables realtime announcements.
	Publisher        Publisher
	RewardExpiry     time.Duration
	TierChangeExpiry time.Duration
	BatchSize        int
	Now              func() time.Time
	Metrics          *metrics.NotificationMetrics
}

// Policy decides whether a triggering event becomes a stored notification.
// It does not deduplicate; callers own "already notified" state.
type Policy struct {
	logg             *logger.Logger
	repo             Repository
	publisher        Publisher
	rewardExpiry     time.Duration
	tierChangeExpiry time.Duration
	batchSize        int
	now              func() time.Time
	metrics          *metrics.NotificationMetrics
}

// NewPolicy builds a Policy, filling unset knobs with defaults.
func NewPolicy(params PolicyParams) (*Policy, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	p := &Policy{
		logg:             params.Logger,
		repo:             params.Repository,
		publisher:        params.Publisher,
		rewardExpiry:     params.RewardExpiry,
		tierChangeExpiry: params.TierChangeExpiry,
		batchSize:        params.BatchSize,
		now:              params.Now,
		metrics:          params.Metrics,
	}
	if p.rewardExpiry <= 0 {
		p.rewardExpiry = defaultRewardExpiry
	}
	if p.tierChangeExpiry <= 0 {
		p.tierChangeExpiry = defaultTierChangeExpiry
	}
	if p.batchSize <= 0 {
		p.batchSize = defaultBatchSize
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	return p, nil
}

// DefaultEnabled is the answer when a user never stored a preference.
func DefaultEnabled(enums.NotificationType) bool {
	return true
}

// ShouldNotify reads the stored preference, falling back to DefaultEnabled.
func (p *Policy) ShouldNotify(ctx context.Context, userID uuid.UUID, notificationType enums.NotificationType) (bool, error) {
	pref, err := p.repo.GetPreference(ctx, userID, notificationType)
	if err != nil {
		return false, fmt.Errorf("load preference: %w", err)
	}
	if pref == nil {
		return DefaultEnabled(notificationType), nil
	}
	return pref.Enabled, nil
}

// NotifyIfEnabled persists the built notification when the user allows the
// type. A nil notification with a nil error means the preference blocked it.
func (p *Policy) NotifyIfEnabled(ctx context.Context, userID uuid.UUID, notificationType enums.NotificationType, build Builder) (*models.Notification, error) {
	if !notificationType.IsValid() {
		return nil, fmt.Errorf("invalid notification type %q", notificationType)
	}
	if build == nil {
		return nil, errors.New("builder required")
	}
	allowed, err := p.ShouldNotify(ctx, userID, notificationType)
	if err != nil {
		return nil, err
	}
	if !allowed {
		p.logg.Debug(p.logg.WithFields(ctx, map[string]any{
			"user_id": userID.String(),
			"type":    notificationType,
		}), "notification suppressed by preference")
		p.metrics.IncSuppressed(string(notificationType))
		return nil, nil
	}

	content := build()
	expiresAt := content.ExpiresAt
	if expiresAt == nil {
		expiresAt = p.ExpiryFor(notificationType)
	}
	row, err := p.repo.Create(ctx, CreateParams{
		UserID:    userID,
		Title:     content.Title,
		Message:   content.Message,
		Type:      notificationType,
		Data:      content.Data,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, err
	}
	p.metrics.AddCreated(string(notificationType), 1)
	p.announce(ctx, *row)
	return row, nil
}

// Notify runs a Template through NotifyIfEnabled.
func (p *Policy) Notify(ctx context.Context, userID uuid.UUID, tpl Template) (*models.Notification, error) {
	return p.NotifyIfEnabled(ctx, userID, tpl.Type, tpl.Build)
}

// CreateNotification stores a notification unconditionally. Collaborators that
// already decided to notify call this directly.
func (p *Policy) CreateNotification(ctx context.Context, spec Spec) (*models.Notification, error) {
	if spec.Type != "" && !spec.Type.IsValid() {
		return nil, fmt.Errorf("invalid notification type %q", spec.Type)
	}
	row, err := p.repo.Create(ctx, spec.createParams())
	if err != nil {
		return nil, err
	}
	p.metrics.AddCreated(string(row.Type), 1)
	p.announce(ctx, *row)
	return row, nil
}

// ExpiryFor returns the default expiry for a type, or nil for none.
func (p *Policy) ExpiryFor(notificationType enums.NotificationType) *time.Time {
	var ttl time.Duration
	switch notificationType {
	case enums.NotificationTypeReward, enums.NotificationTypeCoupon, enums.NotificationTypePoints:
		ttl = p.rewardExpiry
	case enums.NotificationTypeTierChange:
		ttl = p.tierChangeExpiry
	default:
		return nil
	}
	expiresAt := p.now().Add(ttl)
	return &expiresAt
}

// BulkCreate fans specs out in batches. Specs with an unknown type are
// rejected up front and reported in the returned error. Each batch commits or
// fails as a unit; a failed batch does not stop later ones. The count is rows
// actually stored.
func (p *Policy) BulkCreate(ctx context.Context, specs []Spec) (int, error) {
	var errs error
	valid := make([]CreateParams, 0, len(specs))
	for i, spec := range specs {
		if spec.Type != "" && !spec.Type.IsValid() {
			errs = multierr.Append(errs, fmt.Errorf("spec %d: invalid notification type %q", i, spec.Type))
			continue
		}
		valid = append(valid, spec.createParams())
	}

	created := 0
	for start := 0; start < len(valid); start += p.batchSize {
		end := start + p.batchSize
		if end > len(valid) {
			end = len(valid)
		}

		rows, err := p.repo.CreateBatch(ctx, valid[start:end])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("batch %d-%d: %w", start, end, err))
			p.logg.Error(p.logg.WithFields(ctx, map[string]any{
				"batch_start": start,
				"batch_end":   end,
			}), "notification batch failed", err)
			continue
		}
		created += len(rows)
		for _, row := range rows {
			p.metrics.AddCreated(string(row.Type), 1)
			p.announce(ctx, row)
		}
	}
	return created, errs
}

// announce pushes a stored row to the owner's attached sessions. Delivery is
// best effort; the row is already committed.
func (p *Policy) announce(ctx context.Context, row models.Notification) {
	if p.publisher == nil {
		return
	}
	dto, repaired := toDTO(row)
	if repaired != nil {
		p.logg.Warn(p.logg.WithField(ctx, "notification_id", row.ID.String()), "notification repaired for delivery: "+repaired.Error())
	}
	p.publisher.Publish(ctx, realtime.UserChannel(realtime.EventNotification, row.UserID), dto)
}

func (s Spec) createParams() CreateParams {
	return CreateParams{
		UserID:    s.UserID,
		Title:     s.Title,
		Message:   s.Message,
		Type:      s.Type,
		Data:      s.Data,
		ExpiresAt: s.ExpiresAt,
	}
}
