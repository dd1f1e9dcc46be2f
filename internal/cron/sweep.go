package cron

import (
	"context"
	"errors"
	"time"

	"github.com/foodbridge/foodbridge-backend/pkg/logger"
)

const (
	defaultNotificationRetention = 30 * 24 * time.Hour
	defaultOutboxRetention       = 7 * 24 * time.Hour
	defaultRetentionBatch        = 1000
)

// sweepFunc changes every row older than cutoff and reports how many it touched.
type sweepFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// sweepJob runs one cutoff-based sweep. A zero retention sweeps as of now.
type sweepJob struct {
	name      string
	rowsField string
	retention time.Duration
	sweep     sweepFunc
	logg      *logger.Logger
	now       func() time.Time
}

func newSweepJob(name, rowsField string, retention time.Duration, logg *logger.Logger, sweep sweepFunc) (*sweepJob, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &sweepJob{
		name:      name,
		rowsField: rowsField,
		retention: retention,
		sweep:     sweep,
		logg:      logg,
		now:       time.Now,
	}, nil
}

func (j *sweepJob) Name() string { return j.name }

// Run sweeps once. Rows handled before a failure are still logged.
func (j *sweepJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	rows, err := j.sweep(ctx, cutoff)

	fields := map[string]any{"cutoff": cutoff, j.rowsField: rows}
	if j.retention > 0 {
		fields["retention"] = j.retention.String()
	}
	logCtx := j.logg.WithFields(ctx, fields)
	if err != nil {
		if rows > 0 {
			j.logg.Warn(logCtx, "sweep stopped partway")
		}
		return err
	}
	j.logg.Info(logCtx, "sweep finished")
	return nil
}

type donationExpirer interface {
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

type DonationExpiryJobParams struct {
	Logger    *logger.Logger
	Donations donationExpirer
}

// NewDonationExpiryJob expires available donations whose expiration date has
// passed. Rows that fail are reported after the rest of the sweep.
func NewDonationExpiryJob(params DonationExpiryJobParams) (Job, error) {
	if params.Donations == nil {
		return nil, errors.New("donation service required")
	}
	return newSweepJob("donation-expiry", "rows_expired", 0, params.Logger, params.Donations.MarkExpired)
}

type notificationPurger interface {
	PurgeRead(ctx context.Context, cutoff time.Time) (int64, error)
}

type NotificationCleanupJobParams struct {
	Logger        *logger.Logger
	Notifications notificationPurger
	Retention     time.Duration
}

// NewNotificationCleanupJob deletes read notifications older than the
// retention window. Unread ones are kept however old they are.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Notifications == nil {
		return nil, errors.New("notification service required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultNotificationRetention
	}
	return newSweepJob("notification-cleanup", "rows_deleted", retention, params.Logger, params.Notifications.PurgeRead)
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxPruner
	Retention  time.Duration
	BatchSize  int
}

// NewOutboxRetentionJob removes relayed outbox rows past retention in batches
// so no single statement holds locks over the whole table.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, errors.New("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRetentionBatch
	}
	return newSweepJob("outbox-retention", "rows_deleted", retention, params.Logger, inBatches(params.Repository.DeletePublishedBefore, batch))
}

// inBatches repeats del until a batch comes back short or ctx ends.
func inBatches(del func(context.Context, time.Time, int) (int64, error), batch int) sweepFunc {
	return func(ctx context.Context, cutoff time.Time) (int64, error) {
		var total int64
		for {
			n, err := del(ctx, cutoff, batch)
			total += n
			if err != nil || n < int64(batch) {
				return total, err
			}
			if err := ctx.Err(); err != nil {
				return total, err
			}
		}
	}
}
