package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/foodbridge/foodbridge-backend/internal/repo"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
)

// Repository aggregates donation figures for a donor.
type Repository struct {
	base repo.Base
}

// NewRepository binds the dashboard repository to db.
func NewRepository(db *gorm.DB, timeout time.Duration) *Repository {
	return &Repository{base: repo.NewBase(db).WithTimeout(timeout)}
}

// DonationCounts groups a donor's donations by status.
func (r *Repository) DonationCounts(ctx context.Context, donorID uuid.UUID) (map[enums.DonationStatus]int64, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var rows []struct {
		Status enums.DonationStatus
		Total  int64
	}
	err := db.Model(&models.Donation{}).
		Select("status, COUNT(*) AS total").
		Where("donor_id = ?", donorID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[enums.DonationStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

// DeliveredQuantity sums completed donation quantities per unit.
func (r *Repository) DeliveredQuantity(ctx context.Context, donorID uuid.UUID) (map[enums.QuantityUnit]decimal.Decimal, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var rows []struct {
		Unit  enums.QuantityUnit
		Total decimal.Decimal
	}
	err := db.Model(&models.Donation{}).
		Select("unit, SUM(quantity) AS total").
		Where("donor_id = ? AND status = ?", donorID, enums.DonationStatusCompleted).
		Group("unit").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[enums.QuantityUnit]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[row.Unit] = row.Total
	}
	return out, nil
}
