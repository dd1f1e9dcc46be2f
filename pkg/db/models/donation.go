package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/foodbridge/foodbridge-backend/pkg/enums"
)

// Donation is a food donation listed by a donor. Status moves only through
// conditional writes; Version increases by one on every committed change.
type Donation struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DonorID         uuid.UUID            `gorm:"column:donor_id;type:uuid;not null" json:"donor_id"`
	Title           string               `gorm:"column:title;not null" json:"title"`
	Description     *string              `gorm:"column:description" json:"description,omitempty"`
	FoodType        enums.FoodType       `gorm:"column:food_type;type:food_type;not null" json:"food_type"`
	Quantity        decimal.Decimal      `gorm:"column:quantity;type:numeric(12,2);not null" json:"quantity"`
	Unit            enums.QuantityUnit   `gorm:"column:unit;type:quantity_unit;not null" json:"unit"`
	ExpirationDate  time.Time            `gorm:"column:expiration_date;type:date;not null" json:"expiration_date"`
	PickupLocation  string               `gorm:"column:pickup_location;not null" json:"pickup_location"`
	PickupTimeStart time.Time            `gorm:"column:pickup_time_start;not null" json:"pickup_time_start"`
	PickupTimeEnd   time.Time            `gorm:"column:pickup_time_end;not null" json:"pickup_time_end"`
	ImageURL        *string              `gorm:"column:image_url" json:"image_url,omitempty"`
	Status          enums.DonationStatus `gorm:"column:status;type:donation_status;not null;default:available" json:"status"`
	Version         int64                `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Donation) TableName() string { return "food_donations" }
