package notifications

import (
	"fmt"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/google/uuid"
)

// Template pairs a notification type with its content.
type Template struct {
	Type    enums.NotificationType
	Content Content
}

// Build satisfies Builder.
func (t Template) Build() Content {
	return t.Content
}

// RewardGranted announces a reward the user earned.
func RewardGranted(rewardID uuid.UUID, rewardName string) Template {
	return Template{
		Type: enums.NotificationTypeReward,
		Content: Content{
			Title:   "You earned a reward!",
			Message: fmt.Sprintf("%s has been added to your account.", rewardName),
			Data: map[string]any{
				"rewardId":   rewardID.String(),
				"rewardName": rewardName,
			},
		},
	}
}

// CouponGranted announces a coupon issued to the user.
func CouponGranted(couponID uuid.UUID, code, description string) Template {
	return Template{
		Type: enums.NotificationTypeCoupon,
		Content: Content{
			Title:   "New coupon available",
			Message: fmt.Sprintf("Use code %s: %s", code, description),
			Data: map[string]any{
				"couponId": couponID.String(),
				"code":     code,
			},
		},
	}
}

// PointsGranted announces a points credit and the resulting balance.
func PointsGranted(points, balance int64, reason string) Template {
	msg := fmt.Sprintf("You received %d points. Your balance is now %d.", points, balance)
	if reason != "" {
		msg = fmt.Sprintf("You received %d points for %s. Your balance is now %d.", points, reason, balance)
	}
	return Template{
		Type: enums.NotificationTypePoints,
		Content: Content{
			Title:   "Points added",
			Message: msg,
			Data: map[string]any{
				"points":  points,
				"balance": balance,
				"reason":  reason,
			},
		},
	}
}

// TierChanged announces a move between loyalty tiers.
func TierChanged(fromTier, toTier string, upgraded bool) Template {
	title := "Your tier has changed"
	if upgraded {
		title = "Congratulations on your new tier!"
	}
	return Template{
		Type: enums.NotificationTypeTierChange,
		Content: Content{
			Title:   title,
			Message: fmt.Sprintf("You moved from %s to %s.", fromTier, toTier),
			Data: map[string]any{
				"fromTier": fromTier,
				"toTier":   toTier,
				"upgraded": upgraded,
			},
		},
	}
}

// ProfileCompleted thanks the user for completing their profile.
func ProfileCompleted(bonusPoints int64) Template {
	msg := "Thanks for completing your profile."
	if bonusPoints > 0 {
		msg = fmt.Sprintf("Thanks for completing your profile. %d bonus points are on the way.", bonusPoints)
	}
	return Template{
		Type: enums.NotificationTypeProfile,
		Content: Content{
			Title:   "Profile complete",
			Message: msg,
			Data:    map[string]any{"bonusPoints": bonusPoints},
		},
	}
}

// SurveyAvailable invites the user to a survey.
func SurveyAvailable(surveyID uuid.UUID, surveyTitle string) Template {
	return Template{
		Type: enums.NotificationTypeSurvey,
		Content: Content{
			Title:   "New survey",
			Message: fmt.Sprintf("Tell us what you think: %s", surveyTitle),
			Data: map[string]any{
				"surveyId": surveyID.String(),
				"title":    surveyTitle,
			},
		},
	}
}
