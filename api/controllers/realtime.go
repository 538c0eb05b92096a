package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/api/middleware"
	"github.com/angelmondragon/loyalty-backend/api/responses"
	"github.com/angelmondragon/loyalty-backend/internal/realtime"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

// StreamAuthenticator verifies the stream credential against the live role.
type StreamAuthenticator interface {
	Authenticate(ctx context.Context, token string) (realtime.Principal, error)
}

// EventStream is the SSE surface the admin dashboard attaches to.
type EventStream interface {
	Serve(w http.ResponseWriter, r *http.Request, principal realtime.Principal) error
	Info() realtime.StreamInfo
}

// AdminEventsStream authenticates from the token query parameter, since
// EventSource cannot send headers. Rejected callers get a JSON error and no
// session is ever created for them.
func AdminEventsStream(authn StreamAuthenticator, stream EventStream, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := authn.Authenticate(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := stream.Serve(w, r, principal); err != nil && logg != nil {
			logg.Error(logg.WithUserID(r.Context(), principal.UserID.String()), "event stream failed", err)
		}
	}
}

// AdminEventsInfo reports attached admin sessions and listener counts.
func AdminEventsInfo(stream EventStream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, stream.Info())
	}
}

// MemberEventStream is the SSE surface members attach to for their own
// notifications and loyalty updates.
type MemberEventStream interface {
	Serve(w http.ResponseWriter, r *http.Request, principal realtime.Principal) error
	InfoFor(subjectID uuid.UUID) realtime.SubjectInfo
}

// MemberEventsStream accepts the bearer header from native clients and the
// token query parameter from EventSource.
func MemberEventsStream(authn StreamAuthenticator, stream MemberEventStream, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := middleware.BearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		principal, err := authn.Authenticate(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := stream.Serve(w, r, principal); err != nil && logg != nil {
			logg.Error(logg.WithUserID(r.Context(), principal.UserID.String()), "member event stream failed", err)
		}
	}
}

// MemberEventsInfo reports the caller's own attached sessions.
func MemberEventsInfo(stream MemberEventStream, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, stream.InfoFor(userID))
	}
}
