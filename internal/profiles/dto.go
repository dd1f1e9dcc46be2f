package profiles

import (
	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
)

// Contact is the subset of a profile shown to the other parties of a match.
type Contact struct {
	ID       uuid.UUID      `json:"id"`
	FullName string         `json:"full_name"`
	Phone    *string        `json:"phone,omitempty"`
	Role     enums.UserRole `json:"role"`
}

// ContactFrom projects a profile into its public contact card.
func ContactFrom(p models.Profile) Contact {
	return Contact{ID: p.ID, FullName: p.FullName, Phone: p.Phone, Role: p.Role}
}

// BusinessInput is the onboarding payload for a business donor.
type BusinessInput struct {
	UserID         uuid.UUID
	BusinessName   string
	BusinessType   string
	Address        string
	Phone          string
	Email          string
	LicenseNumber  *string
	Description    *string
	OperatingHours *string
}

// MeView is the caller's own profile, with the business record when onboarded.
type MeView struct {
	models.Profile
	Business *models.BusinessProfile `json:"business,omitempty"`
}
