package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/loyalty-backend/api/controllers"
	"github.com/angelmondragon/loyalty-backend/api/middleware"
	"github.com/angelmondragon/loyalty-backend/internal/notifications"
	"github.com/angelmondragon/loyalty-backend/pkg/auth/session"
	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

// NewRouter wires the notification REST surface, the admin and member event
// streams and the operational endpoints. sessionChecker may be nil to skip the live
// session lookup on bearer tokens.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP db.Pinger,
	sessionChecker session.AccessSessionChecker,
	roles middleware.RoleLookup,
	notificationsService notifications.Service,
	broadcastService controllers.Broadcaster,
	streamAuth controllers.StreamAuthenticator,
	stream controllers.EventStream,
	memberStreamAuth controllers.StreamAuthenticator,
	memberStream controllers.MemberEventStream,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))

		r.Get("/", controllers.ListNotifications(notificationsService, logg))
		r.Get("/unread-count", controllers.UnreadNotificationCount(notificationsService, logg))
		r.Post("/read", controllers.MarkNotificationsRead(notificationsService, logg))
		r.Put("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		r.Get("/preferences", controllers.GetNotificationPreferences(notificationsService, logg))
		r.Put("/preferences", controllers.UpdateNotificationPreferences(notificationsService, logg))
		r.Put("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
		r.Delete("/{notificationId}", controllers.DeleteNotification(notificationsService, logg))
	})

	r.Route("/api/v1/events", func(r chi.Router) {
		r.Get("/stream", controllers.MemberEventsStream(memberStreamAuth, memberStream, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))
			r.Get("/info", controllers.MemberEventsInfo(memberStream, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		// EventSource cannot set headers, so the stream authenticates itself
		// from the query string.
		r.Get("/events/stream", controllers.AdminEventsStream(streamAuth, stream, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))
			r.Use(middleware.RequireAdmin(roles, logg))

			r.Get("/events/info", controllers.AdminEventsInfo(stream))
			r.Post("/notifications/broadcast", controllers.AdminBroadcastNotification(broadcastService, logg))
			r.Post("/notifications/cleanup", controllers.AdminCleanupNotifications(notificationsService, logg))
		})
	})

	return r
}
