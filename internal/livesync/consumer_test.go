package livesync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/payloads"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/registry"
)

type stubManager struct {
	seen     map[uuid.UUID]bool
	err      error
	consumer string
}

func (s *stubManager) Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error) {
	s.consumer = consumer
	if s.err != nil {
		return false, s.err
	}
	if s.seen == nil {
		s.seen = make(map[uuid.UUID]bool)
	}
	if s.seen[eventID] {
		return false, nil
	}
	s.seen[eventID] = true
	return true, fn(ctx)
}

func newTestConsumer(hub *Hub, manager *stubManager) *Consumer {
	return &Consumer{
		decoders: registry.NewChangeDecoders(),
		hub:      hub,
		manager:  manager,
		name:     consumerScope("api-1"),
		logg:     logger.New(logger.Options{ServiceName: "livesync-test"}),
	}
}

func changeMessage(t *testing.T, eventID uuid.UUID, change payloads.ChangeEvent) *gcppubsub.Message {
	t.Helper()
	data, err := json.Marshal(change)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    payloads.ChangeVersion,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return &gcppubsub.Message{
		ID:   "msg-1",
		Data: body,
		Attributes: map[string]string{
			"event_id":       eventID.String(),
			"event_type":     string(enums.EventMatchChanged),
			"aggregate_type": string(change.Table),
			"aggregate_id":   change.RowID.String(),
		},
	}
}

func TestConsumerPublishesOncePerEvent(t *testing.T) {
	hub := NewHub(4, nil)
	sub, cancel := hub.Subscribe(enums.AggregateMatch, nil)
	defer cancel()
	manager := &stubManager{}
	consumer := newTestConsumer(hub, manager)

	rowID := uuid.New()
	msg := changeMessage(t, uuid.New(), matchChange(rowID, 1))

	res := consumer.process(context.Background(), msg)
	assert.False(t, res.nack)
	res = consumer.process(context.Background(), msg)
	assert.False(t, res.nack)

	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, rowID, got[0].RowID)
	assert.Equal(t, "livesync:api-1", manager.consumer)
}

func TestConsumerAcksInvalidMessages(t *testing.T) {
	hub := NewHub(4, nil)
	manager := &stubManager{}
	consumer := newTestConsumer(hub, manager)

	res := consumer.process(context.Background(), &gcppubsub.Message{ID: "bad", Data: []byte("{")})
	assert.False(t, res.nack)
	assert.Empty(t, manager.consumer, "idempotency store untouched")
}

func TestConsumerNacksOnIdempotencyFailure(t *testing.T) {
	hub := NewHub(4, nil)
	sub, cancel := hub.Subscribe(enums.AggregateMatch, nil)
	defer cancel()
	consumer := newTestConsumer(hub, &stubManager{err: errors.New("redis down")})

	res := consumer.process(context.Background(), changeMessage(t, uuid.New(), matchChange(uuid.New(), 1)))
	assert.True(t, res.nack)
	assert.Empty(t, drain(sub))
}

func TestConsumerScope(t *testing.T) {
	assert.Equal(t, "livesync", consumerScope(""))
	assert.Equal(t, "livesync:pod-a", consumerScope("pod-a"))
}
