package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/loyalty-backend/api/routes"
	"github.com/angelmondragon/loyalty-backend/internal/notifications"
	"github.com/angelmondragon/loyalty-backend/internal/realtime"
	"github.com/angelmondragon/loyalty-backend/internal/users"
	"github.com/angelmondragon/loyalty-backend/pkg/auth/session"
	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/instance"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/metrics"
	"github.com/angelmondragon/loyalty-backend/pkg/migrate"
	"github.com/angelmondragon/loyalty-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var sessionChecker session.AccessSessionChecker
	if cfg.JWT.RequireSession {
		sessionManager, err := session.NewManager(redisClient)
		if err != nil {
			logg.Error(context.Background(), "failed to create session manager", err)
			os.Exit(1)
		}
		sessionChecker = sessionManager
	}

	realtimeMetrics := metrics.NewRealtimeMetrics(prometheus.DefaultRegisterer)
	notificationMetrics := metrics.NewNotificationMetrics(prometheus.DefaultRegisterer)

	usersRepo := users.NewRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())

	notificationsService, err := notifications.NewService(notificationsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}
	broadcaster := realtime.NewBroadcaster(logg, realtimeMetrics)
	// Producers publish through Redis so every API instance, this one
	// included, hears the event through its relay.
	realtimePublisher, err := realtime.NewRedisPublisher(redisClient, cfg.Realtime.Channel, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create realtime publisher", err)
		os.Exit(1)
	}
	relay, err := realtime.NewRelay(broadcaster, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create realtime relay", err)
		os.Exit(1)
	}
	relaySub, err := redisClient.Subscribe(context.Background(), cfg.Realtime.Channel)
	if err != nil {
		logg.Error(context.Background(), "failed to subscribe to realtime channel", err)
		os.Exit(1)
	}
	defer func() {
		if err := relaySub.Close(); err != nil {
			logg.Error(context.Background(), "error closing realtime subscription", err)
		}
	}()

	policy, err := notifications.NewPolicy(notifications.PolicyParams{
		Logger:           logg,
		Repository:       notificationsRepo,
		Publisher:        realtimePublisher,
		RewardExpiry:     cfg.Notifications.RewardExpiry,
		TierChangeExpiry: cfg.Notifications.TierChangeExpiry,
		BatchSize:        cfg.Notifications.BroadcastBatchSize,
		Metrics:          notificationMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification policy", err)
		os.Exit(1)
	}
	broadcastService, err := notifications.NewBroadcastService(policy, usersRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create broadcast service", err)
		os.Exit(1)
	}

	stream, err := realtime.NewStream(realtime.StreamParams{
		Broadcaster: broadcaster,
		Registry:    realtime.NewRegistry(realtime.StreamAdmin, realtimeMetrics),
		Events:      []string{realtime.EventSlipUploaded},
		Heartbeat:   cfg.Realtime.HeartbeatInterval,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create event stream", err)
		os.Exit(1)
	}
	streamAuth, err := realtime.NewAuthenticator(cfg.JWT, usersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create stream authenticator", err)
		os.Exit(1)
	}
	memberStream, err := realtime.NewStream(realtime.StreamParams{
		Broadcaster: broadcaster,
		Registry:    realtime.NewRegistry(realtime.StreamMember, realtimeMetrics),
		UserEvents:  realtime.MemberEvents,
		Heartbeat:   cfg.Realtime.HeartbeatInterval,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create member event stream", err)
		os.Exit(1)
	}
	memberStreamAuth, err := realtime.NewMemberAuthenticator(cfg.JWT, usersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create member stream authenticator", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	// Cancelling the base context ends every open event stream on shutdown.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionChecker,
			usersRepo,
			notificationsService,
			broadcastService,
			streamAuth,
			stream,
			memberStreamAuth,
			memberStream,
			promhttp.Handler(),
		),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := relay.Run(baseCtx, relaySub.Channel()); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "realtime relay stopped", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		cancelBase()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
