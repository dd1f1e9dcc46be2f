package matches

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/foodbridge/foodbridge-backend/internal/profiles"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/pagination"
)

// ClaimInput reserves an available donation for a recipient.
type ClaimInput struct {
	DonationID uuid.UUID
	ActorID    uuid.UUID
	ActorRole  enums.UserRole
}

// TransitionInput moves a match to Target.
type TransitionInput struct {
	MatchID   uuid.UUID
	ActorID   uuid.UUID
	ActorRole enums.UserRole
	Target    enums.MatchStatus
}

// ReorderInput re-claims the donation of a cancelled match.
type ReorderInput struct {
	MatchID   uuid.UUID
	ActorID   uuid.UUID
	ActorRole enums.UserRole
}

// ListInput selects the matches visible to the actor. Queue adds confirmed
// matches still waiting for a volunteer.
type ListInput struct {
	ActorID   uuid.UUID
	ActorRole enums.UserRole
	Status    string
	Queue     bool
	Limit     int
	Cursor    string
}

// ListResult is one page of match views.
type ListResult struct {
	Items  []View `json:"items"`
	Cursor string `json:"cursor"`
}

// DonationSummary is the donation context shown with a match.
type DonationSummary struct {
	ID              uuid.UUID            `json:"id"`
	DonorID         uuid.UUID            `json:"donor_id"`
	Title           string               `json:"title"`
	FoodType        enums.FoodType       `json:"food_type"`
	Quantity        decimal.Decimal      `json:"quantity"`
	Unit            enums.QuantityUnit   `json:"unit"`
	PickupLocation  string               `json:"pickup_location"`
	PickupTimeStart time.Time            `json:"pickup_time_start"`
	PickupTimeEnd   time.Time            `json:"pickup_time_end"`
	ExpirationDate  time.Time            `json:"expiration_date"`
	Status          enums.DonationStatus `json:"status"`
}

func summaryOf(d models.Donation) DonationSummary {
	return DonationSummary{
		ID:              d.ID,
		DonorID:         d.DonorID,
		Title:           d.Title,
		FoodType:        d.FoodType,
		Quantity:        d.Quantity,
		Unit:            d.Unit,
		PickupLocation:  d.PickupLocation,
		PickupTimeStart: d.PickupTimeStart,
		PickupTimeEnd:   d.PickupTimeEnd,
		ExpirationDate:  d.ExpirationDate,
		Status:          d.Status,
	}
}

// View is a match with its donation summary and party contacts.
type View struct {
	models.Match
	Donation  DonationSummary   `json:"donation"`
	Donor     *profiles.Contact `json:"donor,omitempty"`
	Recipient *profiles.Contact `json:"recipient,omitempty"`
	Volunteer *profiles.Contact `json:"volunteer,omitempty"`
}

type listQuery struct {
	ActorID uuid.UUID
	Role    enums.UserRole
	Status  *enums.MatchStatus
	Queue   bool
	Limit   int
	Cursor  *pagination.Cursor
}

// casGuard narrows a compare-and-set beyond the expected status.
type casGuard struct {
	VolunteerUnset bool
	VolunteerID    *uuid.UUID
}
