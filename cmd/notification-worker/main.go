package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/loyalty-backend/internal/notifications"
	"github.com/angelmondragon/loyalty-backend/internal/realtime"
	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/idempotency"
	"github.com/angelmondragon/loyalty-backend/pkg/instance"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/metrics"
	"github.com/angelmondragon/loyalty-backend/pkg/pubsub"
	"github.com/angelmondragon/loyalty-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "notification-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "notification-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	subscription := pubsubClient.LoyaltyEventsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "loyalty events subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	// Stored notifications and loyalty updates reach API instances, and
	// from there attached streams, over the realtime channel.
	realtimePublisher, err := realtime.NewRedisPublisher(redisClient, cfg.Realtime.Channel, logg)
	requireResource(ctx, logg, "realtime publisher", err)

	policy, err := notifications.NewPolicy(notifications.PolicyParams{
		Logger:           logg,
		Repository:       notifications.NewRepository(dbClient.DB()),
		Publisher:        realtimePublisher,
		RewardExpiry:     cfg.Notifications.RewardExpiry,
		TierChangeExpiry: cfg.Notifications.TierChangeExpiry,
		BatchSize:        cfg.Notifications.BroadcastBatchSize,
		Metrics:          metrics.NewNotificationMetrics(prometheus.DefaultRegisterer),
	})
	requireResource(ctx, logg, "notification policy", err)

	consumer, err := notifications.NewConsumer(policy, subscription, manager, realtimePublisher, logg)
	requireResource(ctx, logg, "loyalty event consumer", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})
	logg.Info(runCtx, "notification worker ready")

	go func() {
		if err := metrics.Serve(runCtx, cfg.App.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(runCtx, "metrics listener failed", err)
		}
	}()

	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "notification worker failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "notification worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
