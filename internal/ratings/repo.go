package ratings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/foodbridge/foodbridge-backend/internal/repo"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/pagination"
)

// Repository persists ratings.
type Repository struct {
	base repo.Base
}

// NewRepository binds a ratings repository to db.
func NewRepository(db *gorm.DB, timeout time.Duration) *Repository {
	return &Repository{base: repo.NewBase(db).WithTimeout(timeout)}
}

func (r *Repository) Create(ctx context.Context, rating *models.Rating) error {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	return db.Create(rating).Error
}

func (r *Repository) FindMatch(ctx context.Context, id uuid.UUID) (*models.Match, *models.Donation, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var match models.Match
	if err := db.First(&match, "id = ?", id).Error; err != nil {
		return nil, nil, err
	}
	var donation models.Donation
	if err := db.First(&donation, "id = ?", match.DonationID).Error; err != nil {
		return nil, nil, err
	}
	return &match, &donation, nil
}

// Recent lists reviews newest first with the rater's name and the donation title.
func (r *Repository) Recent(ctx context.Context, limit int, after *pagination.Cursor) ([]Review, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()

	query := db.Table("ratings AS r").
		Select("r.id, r.match_id, r.user_id, r.score, r.feedback, r.created_at, " +
			"COALESCE(p.full_name, '') AS rater_name, COALESCE(d.title, '') AS donation_title").
		Joins("LEFT JOIN profiles p ON p.id = r.user_id").
		Joins("LEFT JOIN donation_matches m ON m.id = r.match_id").
		Joins("LEFT JOIN food_donations d ON d.id = m.donation_id")
	var rows []Review
	if err := query.Scopes(pagination.Keyset("r", after, limit)).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// AverageFor returns the mean score and count of ratings on matches of donations owned by donorID.
func (r *Repository) AverageFor(ctx context.Context, donorID uuid.UUID) (float64, int64, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var row struct {
		Average float64
		Total   int64
	}
	err := db.Table("ratings AS r").
		Select("COALESCE(AVG(r.score), 0) AS average, COUNT(*) AS total").
		Joins("JOIN donation_matches m ON m.id = r.match_id").
		Joins("JOIN food_donations d ON d.id = m.donation_id").
		Where("d.donor_id = ? AND r.user_id <> ?", donorID, donorID).
		Scan(&row).Error
	return row.Average, row.Total, err
}
