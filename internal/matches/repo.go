package matches

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/foodbridge/foodbridge-backend/internal/repo"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/pagination"
)

// Repository persists matches. Every status change is a compare-and-set on
// the expected prior status.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, match *models.Match) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Match, error)
	FindDonation(ctx context.Context, id uuid.UUID) (*models.Donation, error)
	FindDonations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Donation, error)
	CompareAndSet(ctx context.Context, id uuid.UUID, from, to enums.MatchStatus, guard casGuard, fields map[string]any, now time.Time) (int64, error)
	List(ctx context.Context, q listQuery) ([]models.Match, error)
	CountByStatus(ctx context.Context, q listQuery) (map[enums.MatchStatus]int64, error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns a matches repository bound to db.
func NewRepository(db *gorm.DB, timeout time.Duration) Repository {
	return &repository{base: repo.NewBase(db).WithTimeout(timeout)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, match *models.Match) error {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	return db.Create(match).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var match models.Match
	if err := db.First(&match, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *repository) FindDonation(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var donation models.Donation
	if err := db.First(&donation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &donation, nil
}

func (r *repository) FindDonations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Donation, error) {
	out := make(map[uuid.UUID]models.Donation, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var rows []models.Donation
	if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *repository) CompareAndSet(ctx context.Context, id uuid.UUID, from, to enums.MatchStatus, guard casGuard, fields map[string]any, now time.Time) (int64, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()

	updates := map[string]any{
		"status":     to,
		"version":    gorm.Expr("version + 1"),
		"updated_at": now,
	}
	for k, v := range fields {
		updates[k] = v
	}

	query := db.Model(&models.Match{}).Where("id = ? AND status = ?", id, from)
	if guard.VolunteerUnset {
		query = query.Where("volunteer_id IS NULL")
	}
	if guard.VolunteerID != nil {
		query = query.Where("volunteer_id = ?", *guard.VolunteerID)
	}
	result := query.Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *repository) List(ctx context.Context, q listQuery) ([]models.Match, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()

	query := r.scoped(db, q)
	var rows []models.Match
	if err := query.Scopes(pagination.Keyset("", q.Cursor, q.Limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountByStatus(ctx context.Context, q listQuery) (map[enums.MatchStatus]int64, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()

	var rows []struct {
		Status enums.MatchStatus
		Total  int64
	}
	if err := r.scoped(db, q).Select("status, COUNT(*) AS total").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[enums.MatchStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

// scoped narrows donation_matches to the rows the actor may see.
func (r *repository) scoped(db *gorm.DB, q listQuery) *gorm.DB {
	query := db.Model(&models.Match{})
	switch q.Role {
	case enums.UserRoleDonor:
		query = query.Where("donation_id IN (?)",
			db.Session(&gorm.Session{NewDB: true}).Model(&models.Donation{}).Select("id").Where("donor_id = ?", q.ActorID))
	case enums.UserRoleRecipient:
		query = query.Where("recipient_id = ?", q.ActorID)
	case enums.UserRoleVolunteer:
		if q.Queue {
			query = query.Where("(volunteer_id = ? OR (status = ? AND volunteer_id IS NULL))", q.ActorID, enums.MatchStatusConfirmed)
		} else {
			query = query.Where("volunteer_id = ?", q.ActorID)
		}
	default:
		query = query.Where("1 = 0")
	}
	if q.Status != nil {
		query = query.Where("status = ?", *q.Status)
	}
	return query
}
