package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/foodbridge/foodbridge-backend/internal/repo"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/pagination"
)

// Repository exposes persistence helpers for notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Notification, error)
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error)
	UnreadIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, now time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	base repo.Base
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB, timeout time.Duration) Repository {
	return &repositoryImpl{base: repo.NewBase(db).WithTimeout(timeout)}
}

type listNotificationsParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

type notificationMarkResult struct {
	Updated bool
	Found   bool
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{base: repo.NewBase(tx)}
}

func (r *repositoryImpl) Create(ctx context.Context, notification *models.Notification) error {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	return db.Create(notification).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var notification models.Notification
	if err := db.Where("id = ?", id).First(&notification).Error; err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *repositoryImpl) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Notification, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var rows []models.Notification
	if err := db.Where("id IN ?", ids).Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()

	query := db.Model(&models.Notification{}).Where("user_id = ?", params.UserID)
	if params.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var notifications []models.Notification
	if err := query.Scopes(pagination.Keyset("", params.Cursor, params.Limit)).Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repositoryImpl) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var count int64
	err := db.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	return count, err
}

func (r *repositoryImpl) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()

	result := db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", notificationID, userID).
		Updates(map[string]any{"read_at": now, "version": gorm.Expr("version + 1")})
	if result.Error != nil {
		return notificationMarkResult{}, result.Error
	}

	mark := notificationMarkResult{Updated: result.RowsAffected > 0}
	if mark.Updated {
		mark.Found = true
		return mark, nil
	}

	var count int64
	if err := db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Count(&count).Error; err != nil {
		return notificationMarkResult{}, err
	}
	mark.Found = count > 0
	return mark, nil
}

func (r *repositoryImpl) UnreadIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var ids []uuid.UUID
	err := db.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	result := db.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL AND id IN ?", userID, ids).
		Updates(map[string]any{"read_at": now, "version": gorm.Expr("version + 1")})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	result := db.Where("read_at IS NOT NULL AND created_at < ?", cutoff).Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}

// DeviceRepository stores push targets.
type DeviceRepository interface {
	Upsert(ctx context.Context, token *models.DeviceToken) error
	Delete(ctx context.Context, userID uuid.UUID, token string) (int64, error)
	TokensFor(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID][]string, error)
	DeleteTokens(ctx context.Context, tokens []string) (int64, error)
}

type deviceRepository struct {
	base repo.Base
}

func NewDeviceRepository(db *gorm.DB, timeout time.Duration) DeviceRepository {
	return &deviceRepository{base: repo.NewBase(db).WithTimeout(timeout)}
}

// Upsert registers token for its user, moving it over if another user held it.
func (r *deviceRepository) Upsert(ctx context.Context, token *models.DeviceToken) error {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "updated_at"}),
	}).Create(token).Error
}

func (r *deviceRepository) Delete(ctx context.Context, userID uuid.UUID, token string) (int64, error) {
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	result := db.Where("user_id = ? AND token = ?", userID, token).Delete(&models.DeviceToken{})
	return result.RowsAffected, result.Error
}

func (r *deviceRepository) TokensFor(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	out := map[uuid.UUID][]string{}
	if len(userIDs) == 0 {
		return out, nil
	}
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	var rows []models.DeviceToken
	if err := db.Where("user_id IN ?", userIDs).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.UserID] = append(out[row.UserID], row.Token)
	}
	return out, nil
}

func (r *deviceRepository) DeleteTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	db, cancel := r.base.Bounded(ctx)
	defer cancel()
	result := db.Where("token IN ?", tokens).Delete(&models.DeviceToken{})
	return result.RowsAffected, result.Error
}
