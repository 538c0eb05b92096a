package enums

import "fmt"

// NotificationType maps to the notification_type column on notifications and
// notification_preferences.
type NotificationType string

const (
	NotificationTypeInfo       NotificationType = "info"
	NotificationTypeSuccess    NotificationType = "success"
	NotificationTypeWarning    NotificationType = "warning"
	NotificationTypeError      NotificationType = "error"
	NotificationTypeSystem     NotificationType = "system"
	NotificationTypeReward     NotificationType = "reward"
	NotificationTypeCoupon     NotificationType = "coupon"
	NotificationTypeSurvey     NotificationType = "survey"
	NotificationTypeProfile    NotificationType = "profile"
	NotificationTypeTierChange NotificationType = "tier_change"
	NotificationTypePoints     NotificationType = "points"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeInfo,
	NotificationTypeSuccess,
	NotificationTypeWarning,
	NotificationTypeError,
	NotificationTypeSystem,
	NotificationTypeReward,
	NotificationTypeCoupon,
	NotificationTypeSurvey,
	NotificationTypeProfile,
	NotificationTypeTierChange,
	NotificationTypePoints,
}

// NotificationTypes returns a copy of every known notification type.
func NotificationTypes() []NotificationType {
	out := make([]NotificationType, len(validNotificationTypes))
	copy(out, validNotificationTypes)
	return out
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
