package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/loyalty-backend/internal/realtime"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/events"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/google/uuid"
)

const loyaltyNotificationConsumer = "loyalty-notifications"

var errUnhandledEvent = errors.New("unhandled event type")

// notifier is the slice of Policy the consumer needs.
type notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, tpl Template) (*models.Notification, error)
}

// processedGuard is the slice of idempotency.Manager the consumer needs.
type processedGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns loyalty domain events into preference-gated notifications.
// When a realtime publisher is set it also pushes loyalty and coupon updates
// to the member's stream and relays slip uploads to admin streams.
type Consumer struct {
	notifier     notifier
	subscription *pubsub.Subscriber
	idempotency  processedGuard
	realtime     realtime.Publisher
	logg         *logger.Logger
}

// NewConsumer builds a loyalty event consumer. live may be nil.
func NewConsumer(policy notifier, subscription *pubsub.Subscriber, guard processedGuard, live realtime.Publisher, logg *logger.Logger) (*Consumer, error) {
	if policy == nil {
		return nil, fmt.Errorf("notification policy required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("loyalty events subscription required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		notifier:     policy,
		subscription: subscription,
		idempotency:  guard,
		realtime:     live,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := events.Type(msg.Attributes[events.AttributeEventType])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	var envelope events.Envelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	if eventType == events.TypeSlipUploaded {
		return c.relaySlipUploaded(logCtx, envelope.Data)
	}

	userID, tpl, err := templateFor(eventType, envelope.Data)
	if errors.Is(err, errUnhandledEvent) {
		c.logg.Debug(logCtx, "skipping unhandled event")
		return processResult{ack: true}
	}
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, loyaltyNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	logCtx = c.logg.WithUserID(logCtx, userID.String())
	created, err := c.notifier.Notify(ctx, userID, tpl)
	if err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		if delErr := c.idempotency.Delete(ctx, loyaltyNotificationConsumer, eventID); delErr != nil {
			c.logg.Error(logCtx, "failed to release idempotency key", delErr)
		}
		return processResult{nack: true}
	}
	if created == nil {
		c.logg.Info(logCtx, "notification suppressed by preference")
	} else {
		c.logg.Info(c.logg.WithField(logCtx, "notification_id", created.ID.String()), "notification created")
	}
	c.pushUpdate(logCtx, eventType, userID, envelope.Data)
	return processResult{ack: true}
}

// pushUpdate sends the raw event body to the member's stream. Updates go out
// even when the notification was suppressed; they refresh balances, not inboxes.
func (c *Consumer) pushUpdate(ctx context.Context, eventType events.Type, userID uuid.UUID, data json.RawMessage) {
	if c.realtime == nil {
		return
	}
	var event string
	switch eventType {
	case events.TypePointsGranted, events.TypeTierChanged:
		event = realtime.EventLoyaltyUpdate
	case events.TypeCouponGranted:
		event = realtime.EventCouponAssigned
	default:
		return
	}
	c.realtime.Publish(ctx, realtime.UserChannel(event, userID), data)
}

// relaySlipUploaded forwards a slip upload to admin streams. Nothing is
// stored, so redelivery only repeats a harmless announcement.
func (c *Consumer) relaySlipUploaded(ctx context.Context, data json.RawMessage) processResult {
	var payload events.SlipUploaded
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logg.Error(ctx, "failed to parse slip payload", err)
		return processResult{ack: true}
	}
	if payload.BookingID == "" || payload.SlipID == "" {
		c.logg.Warn(ctx, "slip event missing bookingId or slipId")
		return processResult{ack: true}
	}
	if c.realtime == nil {
		c.logg.Debug(ctx, "realtime publisher not configured; slip event dropped")
		return processResult{ack: true}
	}
	n := c.realtime.PublishSlipUploaded(ctx, payload.BookingID, payload.SlipID)
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"booking_id": payload.BookingID,
		"instances":  n,
	}), "slip upload relayed")
	return processResult{ack: true}
}

func templateFor(eventType events.Type, data json.RawMessage) (uuid.UUID, Template, error) {
	switch eventType {
	case events.TypeRewardGranted:
		p, err := decodePayload[events.RewardGranted](data, func(p events.RewardGranted) uuid.UUID { return p.UserID })
		return p.UserID, RewardGranted(p.RewardID, p.RewardName), err
	case events.TypeCouponGranted:
		p, err := decodePayload[events.CouponGranted](data, func(p events.CouponGranted) uuid.UUID { return p.UserID })
		return p.UserID, CouponGranted(p.CouponID, p.Code, p.Description), err
	case events.TypePointsGranted:
		p, err := decodePayload[events.PointsGranted](data, func(p events.PointsGranted) uuid.UUID { return p.UserID })
		return p.UserID, PointsGranted(p.Points, p.Balance, p.Reason), err
	case events.TypeTierChanged:
		p, err := decodePayload[events.TierChanged](data, func(p events.TierChanged) uuid.UUID { return p.UserID })
		return p.UserID, TierChanged(p.FromTier, p.ToTier, p.Upgraded), err
	case events.TypeProfileCompleted:
		p, err := decodePayload[events.ProfileCompleted](data, func(p events.ProfileCompleted) uuid.UUID { return p.UserID })
		return p.UserID, ProfileCompleted(p.BonusPoints), err
	case events.TypeSurveyAvailable:
		p, err := decodePayload[events.SurveyAvailable](data, func(p events.SurveyAvailable) uuid.UUID { return p.UserID })
		return p.UserID, SurveyAvailable(p.SurveyID, p.Title), err
	default:
		return uuid.Nil, Template{}, errUnhandledEvent
	}
}

// decodePayload unmarshals an event body and rejects payloads without a user.
func decodePayload[T any](data json.RawMessage, userOf func(T) uuid.UUID) (T, error) {
	var payload T
	if len(data) == 0 {
		return payload, errors.New("event data is empty")
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("decode event data: %w", err)
	}
	if userOf(payload) == uuid.Nil {
		return payload, errors.New("event data missing userId")
	}
	return payload, nil
}
