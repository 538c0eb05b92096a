package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Publisher is what producers need: the in-process Broadcaster in a single
// API instance, or a RedisPublisher when the producer runs elsewhere.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) int
	PublishSlipUploaded(ctx context.Context, bookingID, slipID string) int
}

// Frame is one publish carried between processes on the realtime channel.
type Frame struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// framePublisher is the slice of the redis client RedisPublisher needs.
type framePublisher interface {
	Publish(ctx context.Context, channel string, message any) (int64, error)
}

// RedisPublisher forwards publishes to every API instance subscribed to the
// realtime channel. Each instance's Relay hands the frame to its Broadcaster.
type RedisPublisher struct {
	client  framePublisher
	channel string
	logg    *logger.Logger
	now     func() time.Time
}

// NewRedisPublisher publishes frames on channel through client.
func NewRedisPublisher(client framePublisher, channel string, logg *logger.Logger) (*RedisPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if channel == "" {
		return nil, errors.New("realtime channel required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Publish returns the number of relaying instances that received the frame.
// Failures are logged; realtime delivery never fails the producer.
func (p *RedisPublisher) Publish(ctx context.Context, event string, payload any) int {
	logCtx := p.logg.WithField(ctx, "event", event)
	raw, err := json.Marshal(payload)
	if err != nil {
		p.logg.Error(logCtx, "encode realtime payload", err)
		return 0
	}
	frame, err := json.Marshal(Frame{Channel: event, Payload: raw})
	if err != nil {
		p.logg.Error(logCtx, "encode realtime frame", err)
		return 0
	}
	n, err := p.client.Publish(ctx, p.channel, frame)
	if err != nil {
		p.logg.Error(logCtx, "publish realtime frame", err)
		return 0
	}
	return int(n)
}

// PublishSlipUploaded stamps the announcement here so every instance shows
// the same timestamp.
func (p *RedisPublisher) PublishSlipUploaded(ctx context.Context, bookingID, slipID string) int {
	return p.Publish(ctx, EventSlipUploaded, SlipUploaded{
		BookingID: bookingID,
		SlipID:    slipID,
		Timestamp: p.now(),
	})
}

// Relay feeds frames received from Redis into the local Broadcaster.
type Relay struct {
	broadcaster *Broadcaster
	logg        *logger.Logger
}

// NewRelay delivers relayed frames to broadcaster.
func NewRelay(broadcaster *Broadcaster, logg *logger.Logger) (*Relay, error) {
	if broadcaster == nil {
		return nil, errors.New("broadcaster required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Relay{broadcaster: broadcaster, logg: logg}, nil
}

// Run delivers messages until ctx is canceled or messages is closed.
func (r *Relay) Run(ctx context.Context, messages <-chan *redis.Message) error {
	r.logg.Info(ctx, "realtime relay started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errors.New("realtime relay channel closed")
			}
			if err := r.handle(ctx, msg); err != nil {
				r.logg.Warn(r.logg.WithField(ctx, "redis_channel", msg.Channel), err.Error())
			}
		}
	}
}

func (r *Relay) handle(ctx context.Context, msg *redis.Message) error {
	var frame Frame
	if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
		return fmt.Errorf("decode realtime frame: %w", err)
	}
	if frame.Channel == "" {
		return errors.New("realtime frame missing channel")
	}
	if len(frame.Payload) == 0 {
		frame.Payload = json.RawMessage("null")
	}
	r.broadcaster.Publish(ctx, frame.Channel, frame.Payload)
	return nil
}
