package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/metrics"
	"gorm.io/gorm"
)

// NotificationCleanupJobName labels the job in logs and metrics.
const NotificationCleanupJobName = "notification-cleanup"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type expiredNotificationDeleter interface {
	DeleteExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
}

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository expiredNotificationDeleter
	Metrics    *metrics.NotificationMetrics
}

// NewNotificationCleanupJob removes notifications whose expiry has passed.
// Rows without an expiry are never touched.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return &notificationCleanupJob{
		logg:    params.Logger,
		db:      params.DB,
		repo:    params.Repository,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

type notificationCleanupJob struct {
	logg    *logger.Logger
	db      txRunner
	repo    expiredNotificationDeleter
	metrics *metrics.NotificationMetrics
	now     func() time.Time
}

func (j *notificationCleanupJob) Name() string { return NotificationCleanupJobName }

func (j *notificationCleanupJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteExpired(ctx, tx, now)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("notification cleanup: %w", err)
	}
	j.metrics.AddExpiredDeleted(deleted)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"expired_before": now,
		"rows_deleted":   deleted,
	}), "expired notifications removed")
	return nil
}
