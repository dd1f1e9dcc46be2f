package worker

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/foodbridge/foodbridge-backend/internal/analytics/router"
	"github.com/foodbridge/foodbridge-backend/internal/analytics/types"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/registry"
)

const (
	consumerName      = "analytics"
	defaultFlushEvery = 5 * time.Second
	finalFlushTimeout = 15 * time.Second
)

// Handler records one decoded change.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

// Handle calls fn. A nil func accepts everything.
func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

// Flusher writes rows a batching handler is still holding.
type Flusher interface {
	Flush(ctx context.Context) error
}

type onceRunner interface {
	Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// Params wires a Service.
type Params struct {
	Subscription *gcppubsub.Subscriber
	Handler      Handler
	Idempotency  onceRunner
	Logger       *logger.Logger
	// Flusher is optional; it is flushed every FlushEvery and on shutdown.
	Flusher    Flusher
	FlushEvery time.Duration
}

// Service consumes the analytics subscription and records each event once.
type Service struct {
	subscription receiver
	decoders     *registry.DecoderRegistry
	handler      Handler
	manager      onceRunner
	flusher      Flusher
	flushEvery   time.Duration
	logg         *logger.Logger
}

// NewService validates p and builds a Service.
func NewService(p Params) (*Service, error) {
	switch {
	case p.Subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case p.Handler == nil:
		return nil, errors.New("analytics handler is required")
	case p.Idempotency == nil:
		return nil, errors.New("idempotency manager is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	}
	every := p.FlushEvery
	if every <= 0 {
		every = defaultFlushEvery
	}
	return &Service{
		subscription: p.Subscription,
		decoders:     registry.NewChangeDecoders(),
		handler:      p.Handler,
		manager:      p.Idempotency,
		flusher:      p.Flusher,
		flushEvery:   every,
		logg:         p.Logger,
	}, nil
}

// Run receives until ctx is cancelled, then flushes whatever is buffered.
func (s *Service) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.subscription.Receive(groupCtx, func(msgCtx context.Context, msg *gcppubsub.Message) {
			if s.process(msgCtx, msg) {
				msg.Nack()
				return
			}
			msg.Ack()
		})
	})
	if s.flusher != nil {
		group.Go(func() error {
			s.flushLoop(groupCtx)
			return nil
		})
	}

	err := group.Wait()
	if s.flusher != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
		defer cancel()
		if flushErr := s.flusher.Flush(flushCtx); flushErr != nil {
			s.logg.Error(ctx, "final analytics flush failed", flushErr)
		}
	}
	return err
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.flusher.Flush(ctx); err != nil && ctx.Err() == nil {
				s.logg.Error(ctx, "analytics flush failed", err)
			}
		}
	}
}

// process handles one message and reports whether it should be redelivered.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) (nack bool) {
	envelope, eventID, err := s.decode(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"message_id": msg.ID,
			"error":      err.Error(),
		}), "invalid analytics envelope")
		return false
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"message_id":  msg.ID,
		"event_id":    envelope.EventID,
		"event_type":  envelope.EventType,
		"table":       envelope.Change.Table,
		"row_id":      envelope.Change.RowID.String(),
		"row_version": envelope.Change.RowVersion,
	})

	skipped := false
	ran, err := s.manager.Once(ctx, consumerName, eventID, func(ctx context.Context) error {
		err := s.handler.Handle(ctx, envelope)
		if errors.Is(err, router.ErrUnsupportedEventType) {
			skipped = true
			return nil
		}
		return err
	})
	switch {
	case err != nil:
		s.logg.Error(ctx, "analytics event not recorded", err)
		return true
	case !ran:
		s.logg.Debug(ctx, "analytics event already recorded")
	case skipped:
		s.logg.Debug(ctx, "event type not recorded")
	default:
		s.logg.Debug(ctx, "analytics event recorded")
	}
	return false
}

func (s *Service) decode(msg *gcppubsub.Message) (types.Envelope, uuid.UUID, error) {
	decoded, err := s.decoders.DecodeMessage(msg.Data, msg.Attributes)
	if err != nil {
		return types.Envelope{}, uuid.Nil, err
	}
	return types.Envelope{
		EventID:    decoded.EventID.String(),
		EventType:  decoded.EventType,
		OccurredAt: decoded.OccurredAt,
		Actor:      decoded.Actor,
		Change:     *decoded.Change,
	}, decoded.EventID, nil
}
