package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/foodbridge/foodbridge-backend/pkg/config"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxIdleBackoff     = 10 * time.Second
	maxJitter          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(topic string) *gcppubsub.Publisher
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.RoutedEvent, error)
}

// publisher is the slice of *gcppubsub.Publisher the relay uses.
type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// RelayParams wires a Relay.
type RelayParams struct {
	Outbox     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	PubSub     topicSource
	Store      outboxStore
	DeadLetter deadLetterStore
	Resolver   eventResolver
	// NewPublisher overrides how topic publishers are built. Tests only.
	NewPublisher func(topic string) publisher
}

// Relay drains the transactional outbox onto Pub/Sub. Each claimed row ends
// the batch published, scheduled for retry, or dead-lettered.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	pubsub      topicSource
	store       outboxStore
	deadLetter  deadLetterStore
	resolver    eventResolver
	batchSize   int
	maxAttempts int
	poll        time.Duration

	newPublisher func(topic string) publisher
	mu           sync.Mutex
	publishers   map[string]publisher
	stoppers     []func()
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case p.Store == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetter == nil:
		return nil, errors.New("dlq repository is required")
	case p.Resolver == nil:
		return nil, errors.New("event registry is required")
	}

	r := &Relay{
		logg:         p.Logger,
		db:           p.DB,
		pubsub:       p.PubSub,
		store:        p.Store,
		deadLetter:   p.DeadLetter,
		resolver:     p.Resolver,
		batchSize:    positiveOr(p.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(p.Outbox.MaxAttempts, defaultMaxAttempts),
		poll:         defaultPoll,
		newPublisher: p.NewPublisher,
		publishers:   make(map[string]publisher),
	}
	if p.Outbox.PollIntervalMS > 0 {
		r.poll = time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond
	}
	if r.newPublisher == nil {
		r.newPublisher = r.gcpPublisher
	}
	return r, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// the next one; an empty batch or a failure waits, doubling the wait on
// consecutive failures.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := r.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}
	defer r.stopPublishers()

	wait := r.poll
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.drainOnce(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case n >= r.batchSize:
			wait = r.poll
			continue
		default:
			wait = r.poll
		}
		if err := sleepCtx(ctx, wait+rand.N(maxJitter)); err != nil {
			return err
		}
	}
}

// Drain relays batches until one comes back short and reports how many rows
// were claimed in total. It stops at the first failed batch.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	defer r.stopPublishers()
	total := 0
	for {
		n, err := r.drainOnce(ctx)
		total += n
		if err != nil || n < r.batchSize {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

type verdict struct {
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	err     error
	topic   string
}

// drainOnce claims one batch inside a transaction, delivers it and settles
// every row. It returns how many rows were claimed.
func (r *Relay) drainOnce(ctx context.Context) (int, error) {
	var claimed int
	counts := map[outcome]int{}
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.store.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		claimed = len(events)
		for _, event := range events {
			v := r.deliver(ctx, event)
			if err := r.settle(ctx, tx, event, v); err != nil {
				return err
			}
			counts[v.outcome]++
		}
		return nil
	})
	if err == nil && claimed > 0 {
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"claimed":       claimed,
			"published":     counts[outcomePublished],
			"retrying":      counts[outcomeRetry],
			"dead_lettered": counts[outcomeDeadLetter],
		}), "outbox batch relayed")
	}
	return claimed, err
}

func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent) verdict {
	resolved, err := r.resolver.Resolve(event)
	if err != nil {
		return verdict{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	topic := resolved.Topic

	err = r.publish(ctx, topic, buildMessage(event, resolved))
	switch {
	case err == nil:
		return verdict{outcome: outcomePublished, topic: topic}
	case registry.IsPermanent(err):
		return verdict{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err, topic: topic}
	case event.AttemptCount+1 >= r.maxAttempts:
		return verdict{
			outcome: outcomeDeadLetter,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			err:     fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, err),
			topic:   topic,
		}
	default:
		return verdict{outcome: outcomeRetry, err: err, topic: topic}
	}
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, v verdict) error {
	switch v.outcome {
	case outcomePublished:
		if err := r.store.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.logg.Debug(r.eventContext(ctx, event, v.topic), "outbox event published")
	case outcomeRetry:
		r.logg.Warn(r.logg.WithField(r.eventContext(ctx, event, v.topic), "error", v.err.Error()), "outbox publish failed, will retry")
		if err := r.store.MarkFailedTx(tx, event.ID, v.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
	case outcomeDeadLetter:
		logCtx := r.logg.WithFields(r.eventContext(ctx, event, v.topic), map[string]any{
			"error":        v.err.Error(),
			"error_reason": v.reason,
		})
		r.logg.Warn(logCtx, "outbox event dead-lettered")
		msg := v.err.Error()
		entry := models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   v.reason,
			ErrorMessage:  &msg,
			AttemptCount:  event.AttemptCount,
			FailedAt:      time.Now().UTC(),
		}
		if err := r.deadLetter.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := r.store.MarkTerminalTx(tx, event.ID, v.err); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
	}
	return nil
}

func (r *Relay) eventContext(ctx context.Context, event models.OutboxEvent, topic string) context.Context {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	return r.logg.WithFields(ctx, fields)
}

// buildMessage keys messages by row so subscribers see each row's changes in
// commit order.
func buildMessage(event models.OutboxEvent, routed *registry.RoutedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       routed.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
			"row_version":    strconv.FormatInt(routed.Change.RowVersion, 10),
			"op":             string(routed.Change.Op),
		},
		OrderingKey: event.AggregateID.String(),
	}
}

func (r *Relay) publish(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := r.publisherFor(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("no publisher for topic %q", topic))
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(pctx, msg)
	if result == nil {
		return registry.Permanent(fmt.Errorf("publisher for %q returned no result", topic))
	}
	if _, err := result.Get(pctx); err != nil {
		// an ordered key stays paused after a failure until resumed
		pub.ResumePublish(msg.OrderingKey)
		return err
	}
	return nil
}

func (r *Relay) publisherFor(topic string) publisher {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pub, ok := r.publishers[topic]; ok {
		return pub
	}
	pub := r.newPublisher(topic)
	if pub != nil {
		r.publishers[topic] = pub
	}
	return pub
}

func (r *Relay) gcpPublisher(topic string) publisher {
	p := r.pubsub.Publisher(topic)
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	r.stoppers = append(r.stoppers, p.Stop)
	return gcpPublisher{p}
}

func (r *Relay) stopPublishers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stop := range r.stoppers {
		stop()
	}
	r.stoppers = nil
	r.publishers = make(map[string]publisher)
}

type gcpPublisher struct{ p *gcppubsub.Publisher }

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}

func (g gcpPublisher) ResumePublish(key string) { g.p.ResumePublish(key) }

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
