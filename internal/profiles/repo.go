package profiles

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/foodbridge/foodbridge-backend/internal/repo"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
)

// Repository exposes profile persistence operations.
type Repository struct {
	base repo.Base
}

// NewRepository constructs a profiles repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB, timeout time.Duration) *Repository {
	return &Repository{base: repo.NewBase(db).WithTimeout(timeout)}
}

// WithTx scopes the repository to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{base: repo.NewBase(tx)}
}

// FindByID loads a profile by user id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var profile models.Profile
	if err := db.First(&profile, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindByIDs loads the profiles that exist among ids.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var rows []models.Profile
	if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindBusiness loads the business profile owned by userID.
func (r *Repository) FindBusiness(ctx context.Context, userID uuid.UUID) (*models.BusinessProfile, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var business models.BusinessProfile
	if err := db.First(&business, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

// UpsertBusiness inserts or replaces the business profile keyed by user_id.
func (r *Repository) UpsertBusiness(ctx context.Context, business *models.BusinessProfile) error {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"business_name", "business_type", "address", "phone", "email",
			"license_number", "description", "operating_hours", "updated_at",
		}),
	}).Create(business).Error
}

// SetOrganizationType records the profile's organization type.
func (r *Repository) SetOrganizationType(ctx context.Context, userID uuid.UUID, orgType enums.OrganizationType, now time.Time) (int64, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	result := db.Model(&models.Profile{}).
		Where("id = ?", userID).
		Updates(map[string]any{"organization_type": orgType, "updated_at": now})
	return result.RowsAffected, result.Error
}
