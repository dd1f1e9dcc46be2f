package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/foodbridge/foodbridge-backend/pkg/db"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox"
	"github.com/foodbridge/foodbridge-backend/pkg/pagination"
)

const maxTokenLength = 4096

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the per-user notification inbox.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	RegisterDevice(ctx context.Context, userID uuid.UUID, token, platform string) error
	UnregisterDevice(ctx context.Context, userID uuid.UUID, token string) error
	PurgeRead(ctx context.Context, cutoff time.Time) (int64, error)
}

type service struct {
	repo    Repository
	devices DeviceRepository
	tx      txRunner
	outbox  changeEmitter
	now     func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items       []models.Notification `json:"items"`
	Cursor      string                `json:"cursor"`
	UnreadCount int64                 `json:"unread_count"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository, devices DeviceRepository, tx txRunner, emitter changeEmitter) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if devices == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "device repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	return &service{
		repo:    repo,
		devices: devices,
		tx:      tx,
		outbox:  emitter,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	query := listNotificationsParams{
		UserID:     params.UserID,
		Limit:      pagination.LimitWithBuffer(limit),
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, db.Classify(err, "list notifications")
	}
	unread, err := s.repo.CountUnread(ctx, params.UserID)
	if err != nil {
		return nil, db.Classify(err, "count unread notifications")
	}

	items, cursor := pagination.Trim(rows, limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	if items == nil {
		items = []models.Notification{}
	}
	return &ListResult{Items: items, Cursor: cursor, UnreadCount: unread}, nil
}

// MarkRead is idempotent: an already read notification is returned unchanged.
func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) (*models.Notification, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return nil, pkgerrors.Validation("notification_id", "notification id required")
	}

	var notification *models.Notification
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		result, err := repo.MarkRead(ctx, userID, notificationID, s.now())
		if err != nil {
			return db.Classify(err, "mark notification read")
		}
		if !result.Found {
			return pkgerrors.NotFound("notification")
		}
		notification, err = repo.FindByID(ctx, notificationID)
		if err != nil {
			return db.Classify(err, "reload notification")
		}
		if !result.Updated {
			return nil
		}
		return s.outbox.EmitChange(ctx, tx, ChangeFor(*notification, enums.ChangeOpUpdate), &outbox.ActorRef{UserID: userID})
	})
	if err != nil {
		return nil, err
	}
	return notification, nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	var count int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ids, err := repo.UnreadIDs(ctx, userID)
		if err != nil {
			return db.Classify(err, "load unread notifications")
		}
		if len(ids) == 0 {
			return nil
		}
		count, err = repo.MarkAllRead(ctx, userID, ids, s.now())
		if err != nil {
			return db.Classify(err, "mark notifications read")
		}
		rows, err := repo.FindByIDs(ctx, ids)
		if err != nil {
			return db.Classify(err, "reload notifications")
		}
		actor := &outbox.ActorRef{UserID: userID}
		for _, row := range rows {
			if !row.Read() {
				continue
			}
			if err := s.outbox.EmitChange(ctx, tx, ChangeFor(row, enums.ChangeOpUpdate), actor); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *service) RegisterDevice(ctx context.Context, userID uuid.UUID, token, platform string) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxTokenLength {
		return pkgerrors.Validation("token", "device token is required")
	}
	platform = strings.ToLower(strings.TrimSpace(platform))
	switch platform {
	case "ios", "android", "web":
	default:
		return pkgerrors.Validation("platform", "platform must be one of ios, android, web")
	}

	now := s.now()
	device := &models.DeviceToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		Platform:  platform,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.devices.Upsert(ctx, device); err != nil {
		return db.Classify(err, "register device")
	}
	return nil
}

func (s *service) UnregisterDevice(ctx context.Context, userID uuid.UUID, token string) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	removed, err := s.devices.Delete(ctx, userID, strings.TrimSpace(token))
	if err != nil {
		return db.Classify(err, "unregister device")
	}
	if removed == 0 {
		return pkgerrors.NotFound("device")
	}
	return nil
}

// PurgeRead deletes read notifications created before cutoff.
func (s *service) PurgeRead(ctx context.Context, cutoff time.Time) (int64, error) {
	removed, err := s.repo.DeleteReadBefore(ctx, cutoff.UTC())
	if err != nil {
		return 0, db.Classify(err, "purge read notifications")
	}
	return removed, nil
}
