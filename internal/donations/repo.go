package donations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/foodbridge/foodbridge-backend/internal/repo"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/pagination"
)

// Repository persists donations. Every status write is conditional on the
// current status and bumps the row version.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, donation *models.Donation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Donation, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateAvailable(ctx context.Context, id, donorID uuid.UUID, fields map[string]any, now time.Time) (int64, error)
	ListAvailable(ctx context.Context, q listQuery) ([]models.Donation, error)
	ListByDonor(ctx context.Context, donorID uuid.UUID, limit int, after *pagination.Cursor) ([]models.Donation, error)
	MarkClaimed(ctx context.Context, id uuid.UUID, today, now time.Time) (int64, error)
	Release(ctx context.Context, id uuid.UUID, now time.Time) (int64, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, now time.Time) (int64, error)
	ExpiredCandidates(ctx context.Context, today time.Time, limit int) ([]uuid.UUID, error)
	MarkExpired(ctx context.Context, id uuid.UUID, today, now time.Time) (int64, error)
}

type repository struct {
	base repo.Base
}

// NewRepository binds the donations repository to a GORM connection.
func NewRepository(db *gorm.DB, timeout time.Duration) Repository {
	return &repository{base: repo.NewBase(db).WithTimeout(timeout)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, donation *models.Donation) error {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	return db.Create(donation).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var donation models.Donation
	if err := db.Where("id = ?", id).First(&donation).Error; err != nil {
		return nil, err
	}
	return &donation, nil
}

func (r *repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var count int64
	if err := db.Model(&models.Donation{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) UpdateAvailable(ctx context.Context, id, donorID uuid.UUID, fields map[string]any, now time.Time) (int64, error) {
	if len(fields) == 0 {
		return 0, errors.New("no fields to update")
	}
	updates := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = now

	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	result := db.Model(&models.Donation{}).
		Where("id = ? AND donor_id = ? AND status = ?", id, donorID, enums.DonationStatusAvailable).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *repository) ListAvailable(ctx context.Context, q listQuery) ([]models.Donation, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()

	query := db.Model(&models.Donation{}).
		Where("status = ? AND expiration_date >= ?", enums.DonationStatusAvailable, q.Today)
	if term := strings.ToLower(strings.TrimSpace(q.Query)); term != "" {
		pattern := "%" + escapeLike(term) + "%"
		query = query.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(CAST(food_type AS TEXT)) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	if q.Category != nil {
		query = query.Where("food_type = ?", *q.Category)
	}

	var rows []models.Donation
	if err := query.Scopes(pagination.Keyset("", q.Cursor, q.Limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByDonor(ctx context.Context, donorID uuid.UUID, limit int, after *pagination.Cursor) ([]models.Donation, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()

	query := db.Model(&models.Donation{}).Where("donor_id = ?", donorID)
	var rows []models.Donation
	if err := query.Scopes(pagination.Keyset("", after, limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MarkClaimed(ctx context.Context, id uuid.UUID, today, now time.Time) (int64, error) {
	return r.transition(ctx, id, enums.DonationStatusAvailable, enums.DonationStatusClaimed, now,
		"expiration_date >= ?", today)
}

// Release returns a claimed donation to available unless another active match
// still holds it.
func (r *repository) Release(ctx context.Context, id uuid.UUID, now time.Time) (int64, error) {
	return r.transition(ctx, id, enums.DonationStatusClaimed, enums.DonationStatusAvailable, now,
		"NOT EXISTS (SELECT 1 FROM donation_matches dm WHERE dm.donation_id = food_donations.id AND dm.status <> ?)",
		enums.MatchStatusCancelled)
}

func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, now time.Time) (int64, error) {
	return r.transition(ctx, id, enums.DonationStatusClaimed, enums.DonationStatusCompleted, now, "")
}

func (r *repository) ExpiredCandidates(ctx context.Context, today time.Time, limit int) ([]uuid.UUID, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var ids []uuid.UUID
	err := db.Model(&models.Donation{}).
		Where("status = ? AND expiration_date < ?", enums.DonationStatusAvailable, today).
		Order("expiration_date ASC, id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID, today, now time.Time) (int64, error) {
	return r.transition(ctx, id, enums.DonationStatusAvailable, enums.DonationStatusExpired, now,
		"expiration_date < ?", today)
}

func (r *repository) transition(ctx context.Context, id uuid.UUID, from, to enums.DonationStatus, now time.Time, cond string, args ...any) (int64, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()

	query := db.Model(&models.Donation{}).Where("id = ? AND status = ?", id, from)
	if cond != "" {
		query = query.Where(cond, args...)
	}
	result := query.Updates(map[string]any{
		"status":     to,
		"version":    gorm.Expr("version + 1"),
		"updated_at": now,
	})
	return result.RowsAffected, result.Error
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(term)
}
