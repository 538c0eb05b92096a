package realtime

import (
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/angelmondragon/loyalty-backend/pkg/metrics"
	"github.com/google/uuid"
)

// SessionInfo is the public view of an attached session.
type SessionInfo struct {
	ID          uuid.UUID      `json:"id"`
	SubjectID   uuid.UUID      `json:"subjectId"`
	Role        enums.UserRole `json:"role"`
	ConnectedAt time.Time      `json:"connectedAt"`
}

// Stream names label the sessions gauge.
const (
	StreamAdmin  = "admin"
	StreamMember = "member"
)

// Registry tracks live sessions for the info endpoint and the sessions gauge.
type Registry struct {
	mu       sync.RWMutex
	stream   string
	sessions map[uuid.UUID]SessionInfo
	metrics  *metrics.RealtimeMetrics
}

// NewRegistry builds an empty registry for one stream. m may be nil.
func NewRegistry(stream string, m *metrics.RealtimeMetrics) *Registry {
	return &Registry{
		stream:   stream,
		sessions: make(map[uuid.UUID]SessionInfo),
		metrics:  m,
	}
}

func (r *Registry) add(info SessionInfo) {
	r.mu.Lock()
	r.sessions[info.ID] = info
	n := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetSessions(r.stream, n)
}

func (r *Registry) remove(id uuid.UUID) {
	r.mu.Lock()
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetSessions(r.stream, n)
}

// Count returns the number of attached sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CountFor returns the sessions attached for one subject.
func (r *Registry) CountFor(subjectID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, info := range r.sessions {
		if info.SubjectID == subjectID {
			n++
		}
	}
	return n
}

// Snapshot lists attached sessions, oldest first.
func (r *Registry) Snapshot() []SessionInfo {
	r.mu.RLock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, info := range r.sessions {
		out = append(out, info)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
