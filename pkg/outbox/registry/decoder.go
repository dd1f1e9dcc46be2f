package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/payloads"
)

type decoderFunc func(payload json.RawMessage) (any, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for consumers.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]decoderFunc
}

// NewDecoderRegistry builds an empty decoder registry.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]decoderFunc)}
}

// NewChangeDecoders registers the change feed payload for every synced table.
func NewChangeDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	decode := func(payload json.RawMessage) (any, error) {
		var change payloads.ChangeEvent
		if err := json.Unmarshal(payload, &change); err != nil {
			return nil, err
		}
		return &change, nil
	}
	for _, eventType := range []enums.OutboxEventType{
		enums.EventDonationChanged,
		enums.EventMatchChanged,
		enums.EventNotificationChanged,
	} {
		reg.Register(eventType, payloads.ChangeVersion, decode)
	}
	return reg
}

// Register stores a decoder for the given event type and version.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

// Decode runs the decoder registered for the event type and version.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]; ok {
		return decoder(payload)
	}
	return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
}

// DecodeChange decodes a change feed payload.
func (r *DecoderRegistry) DecodeChange(eventType enums.OutboxEventType, version int, payload json.RawMessage) (*payloads.ChangeEvent, error) {
	decoded, err := r.Decode(eventType, version, payload)
	if err != nil {
		return nil, err
	}
	change, ok := decoded.(*payloads.ChangeEvent)
	if !ok {
		return nil, fmt.Errorf("%s@v%d is not a change event", eventType, version)
	}
	return change, nil
}

// ChangeMessage is a relayed change event as seen by a Pub/Sub consumer.
type ChangeMessage struct {
	EventID    uuid.UUID
	EventType  enums.OutboxEventType
	OccurredAt time.Time
	Actor      *outbox.ActorRef
	Change     *payloads.ChangeEvent
}

// DecodeMessage decodes a Pub/Sub message body and attributes published by the
// outbox relay.
func (r *DecoderRegistry) DecodeMessage(data []byte, attrs map[string]string) (*ChangeMessage, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(attrs["event_type"]))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}

	rawID := strings.TrimSpace(envelope.EventID)
	if rawID == "" {
		rawID = strings.TrimSpace(attrs["event_id"])
	}
	if rawID == "" {
		return nil, errors.New("event_id missing")
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("event_id: %w", err)
	}

	version := envelope.Version
	if version == 0 {
		version = payloads.ChangeVersion
	}
	change, err := r.DecodeChange(eventType, version, envelope.Data)
	if err != nil {
		return nil, err
	}
	if aggregateID := strings.TrimSpace(attrs["aggregate_id"]); aggregateID != "" && aggregateID != change.RowID.String() {
		return nil, fmt.Errorf("row_id %s does not match aggregate_id %s", change.RowID, aggregateID)
	}

	occurredAt := envelope.OccurredAt
	if occurredAt.IsZero() {
		if created := strings.TrimSpace(attrs["created_at"]); created != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
				occurredAt = parsed
			}
		}
	}

	return &ChangeMessage{
		EventID:    eventID,
		EventType:  eventType,
		OccurredAt: occurredAt.UTC(),
		Actor:      envelope.Actor,
		Change:     change,
	}, nil
}
