package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/payloads"
)

type inserter interface {
	Insert(tx *gorm.DB, event models.OutboxEvent) error
}

// Service queues change events inside the caller's transaction, so a row
// change and its notice commit or roll back together.
type Service struct {
	repo inserter
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// EmitChange queues a change-feed event for a synced row.
func (s *Service) EmitChange(ctx context.Context, tx *gorm.DB, change payloads.ChangeEvent, actor *ActorRef) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	eventType, err := EventTypeFor(change.Table)
	if err != nil {
		return err
	}
	if change.RowID == uuid.Nil {
		return fmt.Errorf("%s change without row id", change.Table)
	}
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal %s change: %w", change.Table, err)
	}

	id := uuid.New()
	occurredAt := s.now().UTC()
	body, err := json.Marshal(PayloadEnvelope{
		Version:    payloads.ChangeVersion,
		EventID:    id.String(),
		OccurredAt: occurredAt,
		Actor:      actor,
		Data:       data,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: change.Table,
		AggregateID:   change.RowID,
		Payload:       body,
		CreatedAt:     occurredAt,
	}); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":    id.String(),
			"event_type":  eventType,
			"row_id":      change.RowID.String(),
			"row_version": change.RowVersion,
		}), "change queued")
	}
	return nil
}

// EventTypeFor maps a synced table onto its change event type.
func EventTypeFor(table enums.OutboxAggregateType) (enums.OutboxEventType, error) {
	switch table {
	case enums.AggregateDonation:
		return enums.EventDonationChanged, nil
	case enums.AggregateMatch:
		return enums.EventMatchChanged, nil
	case enums.AggregateNotification:
		return enums.EventNotificationChanged, nil
	default:
		return "", fmt.Errorf("table %q is not synced", table)
	}
}
