package donations

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/pagination"
)

// CreateInput carries a donor's new listing.
type CreateInput struct {
	DonorID         uuid.UUID
	ActorRole       enums.UserRole
	Title           string
	Description     *string
	FoodType        string
	Quantity        decimal.Decimal
	Unit            string
	ExpirationDate  time.Time
	PickupLocation  string
	PickupTimeStart time.Time
	PickupTimeEnd   time.Time
	ImageURL        *string
}

// UpdateInput carries a partial edit; nil fields are left untouched.
type UpdateInput struct {
	DonationID      uuid.UUID
	DonorID         uuid.UUID
	ActorRole       enums.UserRole
	Title           *string
	Description     *string
	FoodType        *string
	Quantity        *decimal.Decimal
	Unit            *string
	ExpirationDate  *time.Time
	PickupLocation  *string
	PickupTimeStart *time.Time
	PickupTimeEnd   *time.Time
	ImageURL        *string
}

// ListFilter narrows the browse listing. Category "all" or "" disables the
// category filter.
type ListFilter struct {
	Query    string
	Category string
	Limit    int
	Cursor   string
}

// ListResult wraps one page of donations plus the cursor of the next page.
type ListResult struct {
	Items  []models.Donation `json:"items"`
	Cursor string            `json:"cursor,omitempty"`
}

type listQuery struct {
	Query    string
	Category *enums.FoodType
	Today    time.Time
	Limit    int
	Cursor   *pagination.Cursor
}
