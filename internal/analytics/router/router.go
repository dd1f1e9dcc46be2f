package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/foodbridge/foodbridge-backend/internal/analytics/types"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced from change envelopes.
type Writer interface {
	InsertDonationEvent(ctx context.Context, row types.DonationEventRow) error
}

// rowBuilder flattens one kind of change into a donation_events row.
type rowBuilder func(types.Envelope) (types.DonationEventRow, error)

// Router turns change envelopes into warehouse rows. Every supported event
// type lands in the same donation_events table.
type Router struct {
	writer   Writer
	builders map[enums.OutboxEventType]rowBuilder
	logg     *logger.Logger
}

func NewRouter(writer Writer, logg *logger.Logger) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Router{
		writer: writer,
		builders: map[enums.OutboxEventType]rowBuilder{
			enums.EventDonationChanged: donationRow,
			enums.EventMatchChanged:    matchRow,
		},
		logg: logg,
	}, nil
}

// Handle builds and inserts the row for envelope. Event types without a
// builder return ErrUnsupportedEventType so the caller can ack them.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	build, ok := r.builders[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"event_type": envelope.EventType,
		"table":      envelope.Change.Table,
		"row_id":     envelope.Change.RowID.String(),
		"version":    envelope.Change.RowVersion,
	})

	row, err := build(envelope)
	if err != nil {
		r.logg.Error(ctx, "cannot build analytics row", err)
		return err
	}
	if err := r.writer.InsertDonationEvent(ctx, row); err != nil {
		r.logg.Error(ctx, "analytics insert failed", err)
		return err
	}
	r.logg.Debug(ctx, "change recorded")
	return nil
}
