package realtime

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/google/uuid"
)

// writeTimeout bounds a single frame so a stalled client cannot hold a
// session's write lock, and with it teardown, indefinitely.
const writeTimeout = 10 * time.Second

// sseWriter frames messages as server-sent events and flushes each one.
type sseWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

func (s *sseWriter) WriteEvent(name string, data []byte) error {
	_ = s.rc.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return s.rc.Flush()
}

// WriteHeartbeat sends an SSE comment, which EventSource clients never dispatch.
func (s *sseWriter) WriteHeartbeat() error {
	_ = s.rc.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := io.WriteString(s.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// StreamParams configure an event stream.
type StreamParams struct {
	Broadcaster *Broadcaster
	Registry    *Registry
	// Events are shared channels every session hears.
	Events []string
	// UserEvents are scoped per principal with UserChannel, so a session
	// only hears its own subject's events.
	UserEvents []string
	Heartbeat  time.Duration
	Logger     *logger.Logger
}

// Stream attaches authenticated principals as SSE sessions.
type Stream struct {
	broadcaster *Broadcaster
	registry    *Registry
	events      []string
	userEvents  []string
	heartbeat   time.Duration
	logg        *logger.Logger
}

// StreamInfo summarizes attached sessions and listener counts.
type StreamInfo struct {
	ConnectedSessions int            `json:"connectedSessions"`
	Subscribers       map[string]int `json:"subscribers"`
	Sessions          []SessionInfo  `json:"sessions"`
}

// SubjectInfo is a member's view of their own attached sessions.
type SubjectInfo struct {
	SubjectID         uuid.UUID `json:"subjectId"`
	ConnectedSessions int       `json:"connectedSessions"`
	Events            []string  `json:"events"`
}

// NewStream builds a stream over a Registry of its own. With neither Events
// nor UserEvents set it carries the admin slip-uploaded feed.
func NewStream(params StreamParams) (*Stream, error) {
	if params.Broadcaster == nil {
		return nil, fmt.Errorf("broadcaster required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("session registry required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	events := params.Events
	if len(events) == 0 && len(params.UserEvents) == 0 {
		events = []string{EventSlipUploaded}
	}
	return &Stream{
		broadcaster: params.Broadcaster,
		registry:    params.Registry,
		events:      events,
		userEvents:  params.UserEvents,
		heartbeat:   params.Heartbeat,
		logg:        params.Logger,
	}, nil
}

// Serve streams events to principal until the client disconnects or a write fails.
func (s *Stream) Serve(w http.ResponseWriter, r *http.Request, principal Principal) error {
	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return fmt.Errorf("streaming unsupported: %w", err)
	}

	ctx := r.Context()
	session, err := NewSession(SessionParams{
		SubjectID:   principal.UserID,
		Role:        principal.Role,
		Writer:      &sseWriter{w: w, rc: rc},
		Broadcaster: s.broadcaster,
		Registry:    s.registry,
		Events:      s.channelsFor(principal.UserID),
		Heartbeat:   s.heartbeat,
		Logger:      s.logg,
	})
	if err != nil {
		return err
	}

	logCtx := s.logg.WithSessionID(s.logg.WithUserID(ctx, principal.UserID.String()), session.ID().String())
	if err := session.Start(ctx); err != nil {
		s.logg.Warn(logCtx, "realtime session failed to start: "+err.Error())
		return nil
	}
	s.logg.Info(logCtx, "realtime session attached")

	select {
	case <-session.Done():
	case <-ctx.Done():
		session.Close()
	}
	return nil
}

func (s *Stream) channelsFor(subjectID uuid.UUID) []string {
	channels := make([]string, 0, len(s.events)+len(s.userEvents))
	channels = append(channels, s.events...)
	for _, event := range s.userEvents {
		channels = append(channels, UserChannel(event, subjectID))
	}
	return channels
}

// Info reports attached sessions and per-event listener counts.
func (s *Stream) Info() StreamInfo {
	subscribers := make(map[string]int, len(s.events))
	for _, event := range s.events {
		subscribers[event] = s.broadcaster.SubscriberCount(event)
	}
	return StreamInfo{
		ConnectedSessions: s.registry.Count(),
		Subscribers:       subscribers,
		Sessions:          s.registry.Snapshot(),
	}
}

// InfoFor reports how many sessions subjectID has attached and the event
// names those sessions receive.
func (s *Stream) InfoFor(subjectID uuid.UUID) SubjectInfo {
	names := make([]string, 0, len(s.events)+len(s.userEvents))
	names = append(names, s.events...)
	names = append(names, s.userEvents...)
	return SubjectInfo{
		SubjectID:         subjectID,
		ConnectedSessions: s.registry.CountFor(subjectID),
		Events:            names,
	}
}
