package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/pkg/enums"
)

// Match binds one recipient (and later one volunteer) to a donation.
type Match struct {
	ID                  uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DonationID          uuid.UUID         `gorm:"column:donation_id;type:uuid;not null" json:"donation_id"`
	RecipientID         uuid.UUID         `gorm:"column:recipient_id;type:uuid;not null" json:"recipient_id"`
	VolunteerID         *uuid.UUID        `gorm:"column:volunteer_id;type:uuid" json:"volunteer_id,omitempty"`
	Status              enums.MatchStatus `gorm:"column:status;type:match_status;not null;default:pending" json:"status"`
	ScheduledPickupTime *time.Time        `gorm:"column:scheduled_pickup_time" json:"scheduled_pickup_time,omitempty"`
	ActualPickupTime    *time.Time        `gorm:"column:actual_pickup_time" json:"actual_pickup_time,omitempty"`
	DeliveryTime        *time.Time        `gorm:"column:delivery_time" json:"delivery_time,omitempty"`
	Notes               *string           `gorm:"column:notes" json:"notes,omitempty"`
	CancelledBy         *uuid.UUID        `gorm:"column:cancelled_by;type:uuid" json:"cancelled_by,omitempty"`
	Version             int64             `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt           time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Match) TableName() string { return "donation_matches" }
