package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/pkg/enums"
)

// Notification is an in-app message addressed to a single user.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	Type      enums.NotificationType `gorm:"column:type;type:notification_type;not null" json:"type"`
	Title     string                 `gorm:"column:title;type:text;not null" json:"title"`
	Message   string                 `gorm:"column:message;type:text;not null" json:"message"`
	RelatedID *uuid.UUID             `gorm:"column:related_id;type:uuid" json:"related_id,omitempty"`
	ReadAt    *time.Time             `gorm:"column:read_at;type:timestamptz" json:"read_at,omitempty"`
	Version   int64                  `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt time.Time              `gorm:"column:created_at;type:timestamptz;autoCreateTime" json:"created_at"`
}

// Read reports whether the owner has seen the notification.
func (n Notification) Read() bool {
	return n.ReadAt != nil
}

// DeviceToken is a push target registered by a user's device.
type DeviceToken struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	Token     string    `gorm:"column:token;not null;uniqueIndex" json:"token"`
	Platform  string    `gorm:"column:platform;not null" json:"platform"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
