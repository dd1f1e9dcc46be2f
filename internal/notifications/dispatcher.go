package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/foodbridge/foodbridge-backend/pkg/db"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"github.com/foodbridge/foodbridge-backend/pkg/metrics"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/payloads"
	"github.com/foodbridge/foodbridge-backend/pkg/push"
)

type changeEmitter interface {
	EmitChange(ctx context.Context, tx *gorm.DB, change payloads.ChangeEvent, actor *outbox.ActorRef) error
}

// Dispatcher turns lifecycle transitions into inbox rows and best-effort pushes.
type Dispatcher struct {
	repo    Repository
	devices DeviceRepository
	outbox  changeEmitter
	sender  push.Sender
	metrics *metrics.PushMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewDispatcher wires the dispatcher. sender may be nil when push is disabled.
func NewDispatcher(repo Repository, devices DeviceRepository, emitter changeEmitter, sender push.Sender, pushMetrics *metrics.PushMetrics, logg *logger.Logger) (*Dispatcher, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if devices == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "device repository required")
	}
	if emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	if sender == nil {
		sender = push.NoopSender{}
	}
	return &Dispatcher{
		repo:    repo,
		devices: devices,
		outbox:  emitter,
		sender:  sender,
		metrics: pushMetrics,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Dispatch persists one notification per interested party inside tx.
func (d *Dispatcher) Dispatch(ctx context.Context, tx *gorm.DB, t Transition) ([]models.Notification, error) {
	related := t.Match.ID
	actor := outbox.Actor(t.ActorID, t.ActorRole)
	return d.create(ctx, tx, Parties(t), templateFor(t), &related, actor)
}

// DonationExpired tells the donor their listing lapsed unclaimed.
func (d *Dispatcher) DonationExpired(ctx context.Context, tx *gorm.DB, donation models.Donation) ([]models.Notification, error) {
	related := donation.ID
	return d.create(ctx, tx, []uuid.UUID{donation.DonorID}, expiredTemplate(donation), &related, nil)
}

func (d *Dispatcher) create(ctx context.Context, tx *gorm.DB, parties []uuid.UUID, tmpl template, related *uuid.UUID, actor *outbox.ActorRef) ([]models.Notification, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	repo := d.repo.WithTx(tx)
	now := d.now()
	created := make([]models.Notification, 0, len(parties))
	for _, userID := range parties {
		notification := models.Notification{
			ID:        uuid.New(),
			UserID:    userID,
			Type:      tmpl.Type,
			Title:     tmpl.Title,
			Message:   tmpl.Message,
			RelatedID: related,
			Version:   1,
			CreatedAt: now,
		}
		if err := repo.Create(ctx, &notification); err != nil {
			return nil, db.Classify(err, "create notification")
		}
		if err := d.outbox.EmitChange(ctx, tx, ChangeFor(notification, enums.ChangeOpInsert), actor); err != nil {
			return nil, err
		}
		created = append(created, notification)
	}
	return created, nil
}

// Deliver pushes committed notifications to their owners' devices. Failures are
// logged and swallowed; tokens FCM reports as dead are pruned.
func (d *Dispatcher) Deliver(ctx context.Context, notifications []models.Notification) {
	if len(notifications) == 0 {
		return
	}
	userIDs := make([]uuid.UUID, 0, len(notifications))
	for _, n := range notifications {
		userIDs = append(userIDs, n.UserID)
	}
	tokens, err := d.devices.TokensFor(ctx, userIDs)
	if err != nil {
		d.warn(ctx, "load device tokens failed", err)
		return
	}

	var (
		errs    error
		invalid []string
	)
	for _, n := range notifications {
		targets := tokens[n.UserID]
		if len(targets) == 0 {
			continue
		}
		data := map[string]string{
			"notification_id": n.ID.String(),
			"type":            string(n.Type),
		}
		if n.RelatedID != nil {
			data["related_id"] = n.RelatedID.String()
		}
		result, err := d.sender.Send(ctx, targets, push.Message{Title: n.Title, Body: n.Message, Data: data})
		d.metrics.Add(result.Sent, result.Failed)
		errs = multierr.Append(errs, err)
		invalid = append(invalid, result.InvalidTokens...)
	}

	if len(invalid) > 0 {
		if _, err := d.devices.DeleteTokens(ctx, invalid); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		d.warn(ctx, "push delivery incomplete", errs)
	}
}

func (d *Dispatcher) warn(ctx context.Context, msg string, err error) {
	if d.logg == nil {
		return
	}
	d.logg.Warn(d.logg.WithField(ctx, "error", err.Error()), msg)
}

// ChangeFor builds the change event for a notification row; only its owner sees it.
func ChangeFor(n models.Notification, op enums.ChangeOp) payloads.ChangeEvent {
	status := "unread"
	if n.Read() {
		status = "read"
	}
	return payloads.ChangeEvent{
		Table:      enums.AggregateNotification,
		RowID:      n.ID,
		Op:         op,
		RowVersion: n.Version,
		Status:     status,
		OwnerIDs:   []uuid.UUID{n.UserID},
	}
}
