package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/pkg/config"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/payloads"
)

// PermanentError marks a relay failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	if e.Err == nil {
		return "permanent relay failure"
	}
	return e.Err.Error()
}

func (e PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the relay dead-letters the row instead of retrying.
func Permanent(err error) error {
	return PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is permanent.
func IsPermanent(err error) bool {
	var p PermanentError
	return errors.As(err, &p)
}

// RoutedEvent is an outbox row checked and ready to publish.
type RoutedEvent struct {
	Topic   string
	EventID string
	Change  *payloads.ChangeEvent
}

// Routes maps each change event type to the table it describes. Every synced
// table goes out on the same topic.
type Routes struct {
	topic  string
	tables map[enums.OutboxEventType]enums.OutboxAggregateType
}

// NewRoutes builds the relay routing table for the configured topic.
func NewRoutes(cfg config.PubSubConfig) (*Routes, error) {
	if cfg.LiveSyncTopic == "" {
		return nil, errors.New("live sync topic is required")
	}
	return &Routes{
		topic: cfg.LiveSyncTopic,
		tables: map[enums.OutboxEventType]enums.OutboxAggregateType{
			enums.EventDonationChanged:     enums.AggregateDonation,
			enums.EventMatchChanged:        enums.AggregateMatch,
			enums.EventNotificationChanged: enums.AggregateNotification,
		},
	}, nil
}

// Resolve checks that the row is a well formed change event for a known table.
// Every failure is permanent: the row will never become valid by waiting.
func (r *Routes) Resolve(event models.OutboxEvent) (*RoutedEvent, error) {
	table, ok := r.tables[event.EventType]
	switch {
	case !ok:
		return nil, Permanent(fmt.Errorf("unsupported event type %s", event.EventType))
	case table != event.AggregateType:
		return nil, Permanent(fmt.Errorf("%s belongs to %s, row says %s", event.EventType, table, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, Permanent(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Permanent(fmt.Errorf("%s carries no change", event.EventType))
	}

	var change payloads.ChangeEvent
	if err := json.Unmarshal(data, &change); err != nil {
		return nil, Permanent(fmt.Errorf("decode change: %w", err))
	}
	if change.RowID != event.AggregateID {
		return nil, Permanent(fmt.Errorf("row_id %s does not match aggregate_id %s", change.RowID, event.AggregateID))
	}
	return &RoutedEvent{Topic: r.topic, EventID: envelope.EventID, Change: &change}, nil
}
