package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/pkg/enums"
)

// Profile mirrors an identity provider user. The core only reads it.
type Profile struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	FullName         string                 `gorm:"column:full_name;not null" json:"full_name"`
	Phone            *string                `gorm:"column:phone" json:"phone,omitempty"`
	Role             enums.UserRole         `gorm:"column:role;type:user_role;not null" json:"role"`
	OrganizationType enums.OrganizationType `gorm:"column:organization_type;not null;default:individual" json:"organization_type"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// BusinessProfile holds onboarding details for business donors.
type BusinessProfile struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID         uuid.UUID          `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`
	BusinessName   string             `gorm:"column:business_name;not null" json:"business_name"`
	BusinessType   enums.BusinessType `gorm:"column:business_type;not null;default:restaurant" json:"business_type"`
	Address        string             `gorm:"column:address;not null" json:"address"`
	Phone          string             `gorm:"column:phone;not null" json:"phone"`
	Email          string             `gorm:"column:email;not null" json:"email"`
	LicenseNumber  *string            `gorm:"column:license_number" json:"license_number,omitempty"`
	Description    *string            `gorm:"column:description" json:"description,omitempty"`
	OperatingHours *string            `gorm:"column:operating_hours" json:"operating_hours,omitempty"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
