package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/loyalty-backend/internal/realtime"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

func newTestPolicy(t *testing.T, repo Repository, batchSize int) *Policy {
	t.Helper()
	policy, err := NewPolicy(PolicyParams{
		Logger:     logger.Nop(),
		Repository: repo,
		BatchSize:  batchSize,
		Now:        func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return policy
}

func TestPolicyDefaultsToEnabled(t *testing.T) {
	var created []CreateParams
	repo := &fakeRepository{
		createFn: func(ctx context.Context, params CreateParams) (*models.Notification, error) {
			created = append(created, params)
			return &models.Notification{ID: uuid.New()}, nil
		},
	}
	policy := newTestPolicy(t, repo, 0)

	row, err := policy.Notify(context.Background(), uuid.New(), RewardGranted(uuid.New(), "Late checkout"))
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Len(t, created, 1)
	require.Equal(t, enums.NotificationTypeReward, created[0].Type)
	require.NotNil(t, created[0].ExpiresAt)
	require.Equal(t, fixedNow.Add(defaultRewardExpiry), *created[0].ExpiresAt)
}

func TestPolicySuppressesDisabledTypeWithoutBuilding(t *testing.T) {
	repo := &fakeRepository{
		getPreferenceFn: func(ctx context.Context, userID uuid.UUID, nt enums.NotificationType) (*models.NotificationPreference, error) {
			return &models.NotificationPreference{UserID: userID, Type: nt, Enabled: false}, nil
		},
		createFn: func(ctx context.Context, params CreateParams) (*models.Notification, error) {
			t.Fatal("suppressed notification must not be stored")
			return nil, nil
		},
	}
	policy := newTestPolicy(t, repo, 0)

	built := false
	row, err := policy.NotifyIfEnabled(context.Background(), uuid.New(), enums.NotificationTypeCoupon, func() Content {
		built = true
		return Content{Title: "x", Message: "y"}
	})
	require.NoError(t, err)
	require.Nil(t, row)
	require.False(t, built, "builder must not run when suppressed")
}

func TestPolicyRejectsInvalidInput(t *testing.T) {
	policy := newTestPolicy(t, &fakeRepository{}, 0)

	_, err := policy.NotifyIfEnabled(context.Background(), uuid.New(), enums.NotificationType("sms"), func() Content { return Content{} })
	require.Error(t, err)

	_, err = policy.NotifyIfEnabled(context.Background(), uuid.New(), enums.NotificationTypeInfo, nil)
	require.Error(t, err)
}

func TestPolicyPreferenceLookupFailure(t *testing.T) {
	repo := &fakeRepository{
		getPreferenceFn: func(ctx context.Context, userID uuid.UUID, nt enums.NotificationType) (*models.NotificationPreference, error) {
			return nil, errors.New("db down")
		},
	}
	_, err := newTestPolicy(t, repo, 0).Notify(context.Background(), uuid.New(), SurveyAvailable(uuid.New(), "Stay"))
	require.Error(t, err)
}

func TestPolicyExpiryFor(t *testing.T) {
	policy := newTestPolicy(t, &fakeRepository{}, 0)

	for _, nt := range []enums.NotificationType{enums.NotificationTypeReward, enums.NotificationTypeCoupon, enums.NotificationTypePoints} {
		exp := policy.ExpiryFor(nt)
		require.NotNil(t, exp, nt)
		require.Equal(t, fixedNow.Add(defaultRewardExpiry), *exp)
	}
	exp := policy.ExpiryFor(enums.NotificationTypeTierChange)
	require.NotNil(t, exp)
	require.Equal(t, fixedNow.Add(defaultTierChangeExpiry), *exp)

	require.Nil(t, policy.ExpiryFor(enums.NotificationTypeSystem))
	require.Nil(t, policy.ExpiryFor(enums.NotificationTypeSurvey))
}

func TestPolicyExplicitExpiryWins(t *testing.T) {
	custom := fixedNow.Add(2 * time.Hour)
	var got *time.Time
	repo := &fakeRepository{
		createFn: func(ctx context.Context, params CreateParams) (*models.Notification, error) {
			got = params.ExpiresAt
			return &models.Notification{}, nil
		},
	}
	_, err := newTestPolicy(t, repo, 0).NotifyIfEnabled(context.Background(), uuid.New(), enums.NotificationTypeReward, func() Content {
		return Content{Title: "t", Message: "m", ExpiresAt: &custom}
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, custom, *got)
}

func TestPolicyBulkCreateCountsOnlyStoredRows(t *testing.T) {
	calls := 0
	repo := &fakeRepository{
		createBatchFn: func(ctx context.Context, params []CreateParams) ([]models.Notification, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("batch rejected")
			}
			return rowsFor(params), nil
		},
	}
	policy := newTestPolicy(t, repo, 2)

	specs := make([]Spec, 5)
	for i := range specs {
		specs[i] = Spec{UserID: uuid.New(), Type: enums.NotificationTypeSystem, Title: "t", Message: "m"}
	}

	created, err := policy.BulkCreate(context.Background(), specs)
	require.Error(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, 3, created)
}

func TestPolicyBulkCreateEmpty(t *testing.T) {
	created, err := newTestPolicy(t, &fakeRepository{}, 0).BulkCreate(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, created)
}

func TestPolicyNotifyStoresRow(t *testing.T) {
	repo, _ := newTestRepo(t)
	policy := newTestPolicy(t, repo, 0)
	ctx := context.Background()
	userID := uuid.New()

	_, err := repo.SetPreferences(ctx, userID, []PreferenceInput{{Type: enums.NotificationTypePoints, Enabled: false}})
	require.NoError(t, err)

	row, err := policy.Notify(ctx, userID, PointsGranted(10, 110, ""))
	require.NoError(t, err)
	require.Nil(t, row)

	row, err = policy.Notify(ctx, userID, TierChanged("Silver", "Gold", true))
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, enums.NotificationTypeTierChange, row.Type)

	count, err := repo.UnreadCount(ctx, userID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestPolicyBulkCreateRejectsUnknownTypes(t *testing.T) {
	repo, _ := newTestRepo(t)
	policy := newTestPolicy(t, repo, 0)
	ctx := context.Background()
	good := uuid.New()
	bad := uuid.New()

	created, err := policy.BulkCreate(ctx, []Spec{
		{UserID: bad, Type: enums.NotificationType("bogus"), Title: "t", Message: "m"},
		{UserID: good, Type: enums.NotificationTypeSystem, Title: "t", Message: "m"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), `invalid notification type "bogus"`)
	require.Equal(t, 1, created)

	count, err := repo.UnreadCount(ctx, bad)
	require.NoError(t, err)
	require.Zero(t, count)
	count, err = repo.UnreadCount(ctx, good)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestPolicyAnnouncesStoredNotifications(t *testing.T) {
	repo, _ := newTestRepo(t)
	live := &recordingPublisher{}
	policy, err := NewPolicy(PolicyParams{
		Logger:     logger.Nop(),
		Repository: repo,
		Publisher:  live,
		Now:        func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	ctx := context.Background()
	userID := uuid.New()

	_, err = repo.SetPreferences(ctx, userID, []PreferenceInput{{Type: enums.NotificationTypeSurvey, Enabled: false}})
	require.NoError(t, err)
	row, err := policy.Notify(ctx, userID, SurveyAvailable(uuid.New(), "Your stay"))
	require.NoError(t, err)
	require.Nil(t, row)
	require.Empty(t, live.events, "suppressed notifications are not announced")

	row, err = policy.Notify(ctx, userID, PointsGranted(10, 110, ""))
	require.NoError(t, err)
	require.NotNil(t, row)

	_, err = policy.CreateNotification(ctx, Spec{UserID: userID, Title: "Welcome", Message: "Hi"})
	require.NoError(t, err)

	others := []uuid.UUID{uuid.New(), uuid.New()}
	_, err = policy.BulkCreate(ctx, []Spec{
		{UserID: others[0], Type: enums.NotificationTypeSystem, Title: "t", Message: "m"},
		{UserID: others[1], Type: enums.NotificationTypeSystem, Title: "t", Message: "m"},
	})
	require.NoError(t, err)

	require.Len(t, live.events, 4)
	require.Equal(t, realtime.UserChannel(realtime.EventNotification, userID), live.events[0].channel)
	dto, ok := live.events[0].payload.(NotificationDTO)
	require.True(t, ok)
	require.Equal(t, row.ID, dto.ID)
	require.Equal(t, enums.NotificationTypePoints, dto.Type)
	require.Equal(t, realtime.UserChannel(realtime.EventNotification, userID), live.events[1].channel)
	require.Equal(t, realtime.UserChannel(realtime.EventNotification, others[0]), live.events[2].channel)
	require.Equal(t, realtime.UserChannel(realtime.EventNotification, others[1]), live.events[3].channel)
}
