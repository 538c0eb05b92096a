package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/metrics"
	"github.com/google/uuid"
)

const (
	// EventConnected is written once when a session attaches.
	EventConnected = "connected"
	// EventSlipUploaded announces a payment slip attached to a booking.
	EventSlipUploaded = "slip-uploaded"
	// EventNotification carries a freshly stored notification to its owner.
	EventNotification = "notification"
	// EventLoyaltyUpdate carries a points or tier change to its owner.
	EventLoyaltyUpdate = "loyalty-update"
	// EventCouponAssigned carries a newly granted coupon to its owner.
	EventCouponAssigned = "coupon-assigned"
)

// MemberEvents are the per-user events a member session subscribes to.
var MemberEvents = []string{EventNotification, EventLoyaltyUpdate, EventCouponAssigned}

// UserChannel scopes event to one user, e.g. "notification:<userId>".
// Sessions write the bare event name; the suffix only routes delivery.
func UserChannel(event string, userID uuid.UUID) string {
	return event + ":" + userID.String()
}

// EventName strips the user scope from a channel.
func EventName(channel string) string {
	name, _, _ := strings.Cut(channel, ":")
	return name
}

// Listener receives a published payload unchanged. Returned errors and panics
// are logged by the Broadcaster and never reach the publisher.
type Listener func(ctx context.Context, payload any) error

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	broadcaster *Broadcaster
	event       string
	listener    Listener
	once        sync.Once
}

// Event returns the event name this subscription listens to.
func (s *Subscription) Event() string {
	if s == nil {
		return ""
	}
	return s.event
}

// Unsubscribe detaches the listener. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.broadcaster == nil {
		return
	}
	s.once.Do(func() {
		s.broadcaster.remove(s)
	})
}

// Broadcaster is an in-process publish/subscribe registry for operational
// events that are never persisted. Publish is synchronous: listeners run on
// the publisher's goroutine in registration order.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[string][]*Subscription
	logg      *logger.Logger
	metrics   *metrics.RealtimeMetrics
	now       func() time.Time
}

// NewBroadcaster constructs an empty registry. Build one per process and inject it.
func NewBroadcaster(logg *logger.Logger, m *metrics.RealtimeMetrics) *Broadcaster {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Broadcaster{
		listeners: make(map[string][]*Subscription),
		logg:      logg,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers listener for event. A nil listener yields an inert handle.
func (b *Broadcaster) Subscribe(event string, listener Listener) *Subscription {
	sub := &Subscription{broadcaster: b, event: event, listener: listener}
	if listener == nil {
		sub.broadcaster = nil
		return sub
	}

	b.mu.Lock()
	b.listeners[event] = append(b.listeners[event], sub)
	count := b.countByNameLocked(EventName(event))
	b.mu.Unlock()

	b.metrics.SetSubscribers(EventName(event), count)
	return sub
}

// Unsubscribe is shorthand for sub.Unsubscribe().
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	sub.Unsubscribe()
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	current := b.listeners[sub.event]
	kept := make([]*Subscription, 0, len(current))
	for _, existing := range current {
		if existing != sub {
			kept = append(kept, existing)
		}
	}
	if len(kept) == 0 {
		delete(b.listeners, sub.event)
	} else {
		b.listeners[sub.event] = kept
	}
	count := b.countByNameLocked(EventName(sub.event))
	b.mu.Unlock()

	b.metrics.SetSubscribers(EventName(sub.event), count)
}

// countByNameLocked sums listeners over every channel of one event name, so
// metric labels stay bounded when channels are user scoped.
func (b *Broadcaster) countByNameLocked(name string) int {
	total := 0
	for channel, subs := range b.listeners {
		if EventName(channel) == name {
			total += len(subs)
		}
	}
	return total
}

// Publish hands payload to every listener registered for event at call time
// and returns how many returned without error. Listeners added during the
// call do not see this payload.
func (b *Broadcaster) Publish(ctx context.Context, event string, payload any) int {
	b.mu.RLock()
	snapshot := append([]*Subscription(nil), b.listeners[event]...)
	b.mu.RUnlock()

	label := EventName(event)
	b.metrics.IncPublished(label)

	delivered := 0
	for _, sub := range snapshot {
		if err := b.deliver(ctx, sub, payload); err != nil {
			b.metrics.IncListenerFailure(label)
			b.logg.Error(b.logg.WithField(ctx, "event", event), "realtime listener failed", err)
			continue
		}
		b.metrics.IncDelivered(label)
		delivered++
	}
	return delivered
}

func (b *Broadcaster) deliver(ctx context.Context, sub *Subscription, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return sub.listener(ctx, payload)
}

// SubscriberCount returns the listeners currently registered for event.
func (b *Broadcaster) SubscriberCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[event])
}

// TotalSubscribers returns the listener count across all events.
func (b *Broadcaster) TotalSubscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, subs := range b.listeners {
		total += len(subs)
	}
	return total
}

// SlipUploaded is the payload of EventSlipUploaded.
type SlipUploaded struct {
	BookingID string    `json:"bookingId"`
	SlipID    string    `json:"slipId"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishSlipUploaded announces a new payment slip to attached admin sessions.
func (b *Broadcaster) PublishSlipUploaded(ctx context.Context, bookingID, slipID string) int {
	return b.Publish(ctx, EventSlipUploaded, SlipUploaded{
		BookingID: bookingID,
		SlipID:    slipID,
		Timestamp: b.now(),
	})
}

var _ Publisher = (*Broadcaster)(nil)
