package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type names a loyalty domain event carried on the events topic. Producers set
// it as the event_type message attribute.
type Type string

const (
	TypeRewardGranted    Type = "reward.granted"
	TypeCouponGranted    Type = "coupon.granted"
	TypePointsGranted    Type = "points.granted"
	TypeTierChanged      Type = "tier.changed"
	TypeProfileCompleted Type = "profile.completed"
	TypeSurveyAvailable  Type = "survey.available"
	// TypeSlipUploaded is raised by the booking service when a guest attaches
	// a payment slip. It never becomes a stored notification.
	TypeSlipUploaded Type = "slip.uploaded"
)

// AttributeEventType is the Pub/Sub attribute holding the event Type.
const AttributeEventType = "event_type"

// Envelope is the stable payload structure published by loyalty services.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// NewEnvelope wraps data with a fresh event id.
func NewEnvelope(occurredAt time.Time, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: occurredAt.UTC(),
		Data:       raw,
	}, nil
}

type RewardGranted struct {
	UserID     uuid.UUID `json:"userId"`
	RewardID   uuid.UUID `json:"rewardId"`
	RewardName string    `json:"rewardName"`
}

type CouponGranted struct {
	UserID      uuid.UUID `json:"userId"`
	CouponID    uuid.UUID `json:"couponId"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
}

type PointsGranted struct {
	UserID  uuid.UUID `json:"userId"`
	Points  int64     `json:"points"`
	Balance int64     `json:"balance"`
	Reason  string    `json:"reason,omitempty"`
}

type TierChanged struct {
	UserID   uuid.UUID `json:"userId"`
	FromTier string    `json:"fromTier"`
	ToTier   string    `json:"toTier"`
	Upgraded bool      `json:"upgraded"`
}

type ProfileCompleted struct {
	UserID      uuid.UUID `json:"userId"`
	BonusPoints int64     `json:"bonusPoints"`
}

type SurveyAvailable struct {
	UserID   uuid.UUID `json:"userId"`
	SurveyID uuid.UUID `json:"surveyId"`
	Title    string    `json:"title"`
}

type SlipUploaded struct {
	BookingID string `json:"bookingId"`
	SlipID    string `json:"slipId"`
}
