package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/google/uuid"
)

// DefaultHeartbeat is the keep-alive interval when none is configured.
const DefaultHeartbeat = 30 * time.Second

// ErrSessionClosed is returned when writing to a torn-down session.
var ErrSessionClosed = errors.New("session closed")

// EventWriter frames and flushes one message on the underlying transport.
type EventWriter interface {
	WriteEvent(name string, data []byte) error
	WriteHeartbeat() error
}

// SessionParams configure a Session.
type SessionParams struct {
	SubjectID   uuid.UUID
	Role        enums.UserRole
	Writer      EventWriter
	Broadcaster *Broadcaster
	Registry    *Registry
	Events      []string
	Heartbeat   time.Duration
	Logger      *logger.Logger
	// OnClose runs exactly once after teardown.
	OnClose func()
	Now     func() time.Time
}

// Session is one attached streaming client. Teardown happens once no matter
// which path triggers it: transport close, write failure or explicit Close.
type Session struct {
	id          uuid.UUID
	subjectID   uuid.UUID
	role        enums.UserRole
	writer      EventWriter
	broadcaster *Broadcaster
	registry    *Registry
	events      []string
	heartbeat   time.Duration
	logg        *logger.Logger
	onClose     func()
	now         func() time.Time

	writeMu sync.Mutex

	mu      sync.Mutex
	started bool
	closed  bool
	subs    []*Subscription

	done      chan struct{}
	closeOnce sync.Once
}

// NewSession validates params. Nothing is registered until Start.
func NewSession(params SessionParams) (*Session, error) {
	if params.SubjectID == uuid.Nil {
		return nil, fmt.Errorf("subject id required")
	}
	if params.Writer == nil {
		return nil, fmt.Errorf("event writer required")
	}
	if params.Broadcaster == nil {
		return nil, fmt.Errorf("broadcaster required")
	}
	s := &Session{
		id:          uuid.New(),
		subjectID:   params.SubjectID,
		role:        params.Role,
		writer:      params.Writer,
		broadcaster: params.Broadcaster,
		registry:    params.Registry,
		events:      dedupeEvents(params.Events),
		heartbeat:   params.Heartbeat,
		logg:        params.Logger,
		onClose:     params.OnClose,
		now:         params.Now,
		done:        make(chan struct{}),
	}
	if s.heartbeat <= 0 {
		s.heartbeat = DefaultHeartbeat
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// ID identifies the session in logs and the registry.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Done is closed once teardown has finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

type connectedPayload struct {
	SubjectID uuid.UUID `json:"subjectId"`
	SessionID uuid.UUID `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

// Start registers the session, sends the connected event, subscribes to the
// configured events and launches the heartbeat. Canceling ctx closes the session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.started = true
	s.mu.Unlock()

	connectedAt := s.now()
	if s.registry != nil {
		s.registry.add(SessionInfo{ID: s.id, SubjectID: s.subjectID, Role: s.role, ConnectedAt: connectedAt})
	}

	if err := s.send(EventConnected, connectedPayload{
		SubjectID: s.subjectID,
		SessionID: s.id,
		Timestamp: connectedAt,
	}); err != nil {
		s.Close()
		return err
	}

	for _, event := range s.events {
		sub := s.broadcaster.Subscribe(event, s.forward(event))
		if !s.track(sub) {
			return ErrSessionClosed
		}
	}

	go s.keepAlive(ctx)
	return nil
}

// track keeps sub for teardown, or drops it when the session already closed.
func (s *Session) track(sub *Subscription) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Unsubscribe()
		return false
	}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return true
}

func (s *Session) forward(channel string) Listener {
	event := EventName(channel)
	return func(ctx context.Context, payload any) error {
		if s.isClosed() {
			return nil
		}
		return s.send(event, payload)
	}
}

func (s *Session) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.Close()
			return
		case <-ticker.C:
			if err := s.writeHeartbeat(); err != nil {
				return
			}
		}
	}
}

func (s *Session) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	if err := s.write(func(w EventWriter) error { return w.WriteEvent(event, data) }); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return err
		}
		return fmt.Errorf("write %s event: %w", event, err)
	}
	return nil
}

func (s *Session) writeHeartbeat() error {
	return s.write(func(w EventWriter) error { return w.WriteHeartbeat() })
}

// write serializes transport writes. A failed write closes the session after
// writeMu is released, since Close waits on writeMu.
func (s *Session) write(fn func(EventWriter) error) error {
	s.writeMu.Lock()
	if s.isClosed() {
		s.writeMu.Unlock()
		return ErrSessionClosed
	}
	err := fn(s.writer)
	s.writeMu.Unlock()

	if err != nil {
		s.Close()
		return err
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the session down. Only the first call has any effect. It
// returns once any in-flight write has finished, so the transport is no
// longer touched when Done fires.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		subs := s.subs
		s.subs = nil
		s.mu.Unlock()

		for _, sub := range subs {
			sub.Unsubscribe()
		}
		// Wait out a write already in flight; later writes see closed.
		s.writeMu.Lock()
		close(s.done)
		s.writeMu.Unlock()
		if s.registry != nil {
			s.registry.remove(s.id)
		}

		logCtx := s.logg.WithSessionID(context.Background(), s.id.String())
		s.logg.Info(s.logg.WithUserID(logCtx, s.subjectID.String()), "realtime session closed")

		if s.onClose != nil {
			s.onClose()
		}
	})
}

func dedupeEvents(events []string) []string {
	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, event := range events {
		if event == "" {
			continue
		}
		if _, ok := seen[event]; ok {
			continue
		}
		seen[event] = struct{}{}
		out = append(out, event)
	}
	return out
}
