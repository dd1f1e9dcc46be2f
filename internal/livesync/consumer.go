package livesync

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/payloads"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/registry"
)

const consumerName = "livesync"

type idempotencyChecker interface {
	Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error)
}

type publisher interface {
	Publish(change payloads.ChangeEvent) bool
}

// Consumer relays the change feed subscription of this instance into the hub.
type Consumer struct {
	subscription *gcppubsub.Subscriber
	decoders     *registry.DecoderRegistry
	hub          publisher
	manager      idempotencyChecker
	// name scopes idempotency markers to this instance; every instance must
	// see every event.
	name string
	logg *logger.Logger
}

// NewConsumer builds a consumer for the given per-instance subscription.
func NewConsumer(subscription *gcppubsub.Subscriber, hub publisher, manager idempotencyChecker, instanceID string, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, errors.New("live sync subscription is required")
	}
	if hub == nil {
		return nil, errors.New("live sync hub is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		subscription: subscription,
		decoders:     registry.NewChangeDecoders(),
		hub:          hub,
		manager:      manager,
		name:         consumerScope(instanceID),
		logg:         logg,
	}, nil
}

func consumerScope(instanceID string) string {
	if instanceID == "" {
		return consumerName
	}
	return consumerName + ":" + instanceID
}

type processResult struct {
	nack bool
}

// Run receives until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if c.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{"message_id": msg.ID}
	logCtx := c.logg.WithFields(ctx, fields)

	decoded, err := c.decoders.DecodeMessage(msg.Data, msg.Attributes)
	if err != nil {
		fields["error"] = err.Error()
		c.logg.Warn(c.logg.WithFields(ctx, fields), "invalid change event")
		return processResult{}
	}
	fields["event_id"] = decoded.EventID.String()
	fields["event_type"] = string(decoded.EventType)
	fields["table"] = string(decoded.Change.Table)
	fields["row_id"] = decoded.Change.RowID.String()
	fields["row_version"] = decoded.Change.RowVersion
	fields["occurred_at"] = decoded.OccurredAt.Format(time.RFC3339Nano)
	logCtx = c.logg.WithFields(ctx, fields)

	change := *decoded.Change
	published := false
	ran, err := c.manager.Once(logCtx, c.name, decoded.EventID, func(context.Context) error {
		published = c.hub.Publish(change)
		return nil
	})
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	switch {
	case !ran:
		c.logg.Debug(logCtx, "change already relayed")
	case !published:
		c.logg.Debug(logCtx, "stale change skipped")
	}
	return processResult{}
}
