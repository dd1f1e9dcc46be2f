package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/foodbridge/foodbridge-backend/pkg/enums"
)

// ChangeVersion is the current schema version of ChangeEvent.
const ChangeVersion = 1

// ChangeEvent announces that a row of a synced table was inserted or updated.
// RowVersion is the row's version column after the write and orders events
// for the same row.
type ChangeEvent struct {
	Table      enums.OutboxAggregateType `json:"table"`
	RowID      uuid.UUID                 `json:"row_id"`
	Op         enums.ChangeOp            `json:"op"`
	RowVersion int64                     `json:"row_version"`
	Status     string                    `json:"status,omitempty"`
	// OwnerIDs lists the users allowed to observe the row.
	OwnerIDs []uuid.UUID `json:"owner_ids"`
	// Public rows are visible to every subscriber of the table.
	Public bool `json:"public,omitempty"`
	// AudienceRoles widens visibility to every user holding one of the roles.
	AudienceRoles []enums.UserRole `json:"audience_roles,omitempty"`
	Donation      *DonationFacts   `json:"donation,omitempty"`
	Match         *MatchFacts      `json:"match,omitempty"`
}

// DonationFacts carries the donation attributes analytics sinks record.
type DonationFacts struct {
	DonorID        uuid.UUID          `json:"donor_id"`
	FoodType       enums.FoodType     `json:"food_type"`
	Quantity       decimal.Decimal    `json:"quantity"`
	Unit           enums.QuantityUnit `json:"unit"`
	ExpirationDate time.Time          `json:"expiration_date"`
}

// MatchFacts carries the match attributes analytics sinks record.
type MatchFacts struct {
	DonationID  uuid.UUID  `json:"donation_id"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	VolunteerID *uuid.UUID `json:"volunteer_id,omitempty"`
	FromStatus  string     `json:"from_status,omitempty"`
	Action      string     `json:"action,omitempty"`
}

// VisibleTo reports whether a user holding role may observe the row.
func (c ChangeEvent) VisibleTo(userID uuid.UUID, role enums.UserRole) bool {
	if c.Public {
		return true
	}
	for _, audience := range c.AudienceRoles {
		if audience == role {
			return true
		}
	}
	for _, owner := range c.OwnerIDs {
		if owner == userID {
			return true
		}
	}
	return false
}
