package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
)

// Profile inserts a profile with the given role.
func Profile(t testing.TB, conn *gorm.DB, role enums.UserRole, name string) models.Profile {
	t.Helper()
	now := time.Now().UTC()
	profile := models.Profile{
		ID:               uuid.New(),
		FullName:         name,
		Role:             role,
		OrganizationType: enums.OrganizationIndividual,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := conn.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return profile
}

// Donation inserts an available donation owned by donorID. mutate may adjust
// fields before insert.
func Donation(t testing.TB, conn *gorm.DB, donorID uuid.UUID, mutate func(*models.Donation)) models.Donation {
	t.Helper()
	now := time.Now().UTC()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	donation := models.Donation{
		ID:              uuid.New(),
		DonorID:         donorID,
		Title:           "Fresh bread",
		FoodType:        enums.FoodTypeBakery,
		Quantity:        decimal.NewFromInt(5),
		Unit:            enums.UnitKilograms,
		ExpirationDate:  today.AddDate(0, 0, 2),
		PickupLocation:  "12 Baker St",
		PickupTimeStart: now.Add(time.Hour),
		PickupTimeEnd:   now.Add(3 * time.Hour),
		Status:          enums.DonationStatusAvailable,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if mutate != nil {
		mutate(&donation)
	}
	if err := conn.Create(&donation).Error; err != nil {
		t.Fatalf("seed donation: %v", err)
	}
	return donation
}

// Match inserts a match on donationID for recipientID with the given status.
func Match(t testing.TB, conn *gorm.DB, donationID, recipientID uuid.UUID, status enums.MatchStatus, mutate func(*models.Match)) models.Match {
	t.Helper()
	now := time.Now().UTC()
	match := models.Match{
		ID:          uuid.New(),
		DonationID:  donationID,
		RecipientID: recipientID,
		Status:      status,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if mutate != nil {
		mutate(&match)
	}
	if err := conn.Create(&match).Error; err != nil {
		t.Fatalf("seed match: %v", err)
	}
	return match
}
