package enums

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeMatch    NotificationType = "match"
	NotificationTypeDonation NotificationType = "donation"
	NotificationTypePickup   NotificationType = "pickup"
)

var notificationTypes = enumOf("notification type",
	NotificationTypeMatch, NotificationTypeDonation, NotificationTypePickup)

func (n NotificationType) IsValid() bool { return notificationTypes.has(n) }

func ParseNotificationType(value string) (NotificationType, error) {
	return notificationTypes.parse(value)
}
