package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodbridge/foodbridge-backend/pkg/logger"
)

var sweepNow = time.Date(2026, 4, 2, 3, 0, 0, 0, time.UTC)

func pinClock(t *testing.T, job Job) *sweepJob {
	t.Helper()
	sj, ok := job.(*sweepJob)
	require.True(t, ok, "expected *sweepJob, got %T", job)
	sj.now = func() time.Time { return sweepNow }
	return sj
}

type fakeExpirer struct {
	asOf    time.Time
	expired int64
	err     error
}

func (f *fakeExpirer) MarkExpired(_ context.Context, now time.Time) (int64, error) {
	f.asOf = now
	return f.expired, f.err
}

type fakePurger struct {
	cutoff time.Time
	calls  int
	err    error
}

func (f *fakePurger) PurgeRead(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return 42, f.err
}

type fakePruner struct {
	remaining int64
	limits    []int
	err       error
}

func (f *fakePruner) DeletePublishedBefore(_ context.Context, _ time.Time, limit int) (int64, error) {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return 0, f.err
	}
	n := min(f.remaining, int64(limit))
	f.remaining -= n
	return n, nil
}

func TestDonationExpirySweepsAsOfNow(t *testing.T) {
	expirer := &fakeExpirer{expired: 3}
	job, err := NewDonationExpiryJob(DonationExpiryJobParams{Logger: logger.Nop(), Donations: expirer})
	require.NoError(t, err)
	pinClock(t, job)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "donation-expiry", job.Name())
	assert.True(t, expirer.asOf.Equal(sweepNow))
}

func TestDonationExpiryReportsPartialFailure(t *testing.T) {
	boom := errors.New("one row failed")
	job, err := NewDonationExpiryJob(DonationExpiryJobParams{Logger: logger.Nop(), Donations: &fakeExpirer{expired: 2, err: boom}})
	require.NoError(t, err)

	assert.ErrorIs(t, job.Run(context.Background()), boom)
}

func TestNotificationCleanupRetention(t *testing.T) {
	cases := []struct {
		retention time.Duration
		want      time.Time
	}{
		{0, sweepNow.Add(-defaultNotificationRetention)},
		{48 * time.Hour, sweepNow.Add(-48 * time.Hour)},
	}
	for _, tc := range cases {
		purger := &fakePurger{}
		job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{Logger: logger.Nop(), Notifications: purger, Retention: tc.retention})
		require.NoError(t, err)
		pinClock(t, job)

		require.NoError(t, job.Run(context.Background()))
		assert.Equal(t, 1, purger.calls)
		assert.True(t, purger.cutoff.Equal(tc.want), "retention %v: cutoff %v", tc.retention, purger.cutoff)
	}
}

func TestOutboxRetentionDeletesInBatches(t *testing.T) {
	pruner := &fakePruner{remaining: 250}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), Repository: pruner, BatchSize: 100})
	require.NoError(t, err)
	pinClock(t, job)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []int{100, 100, 100}, pruner.limits)
	assert.Zero(t, pruner.remaining)
}

func TestOutboxRetentionStopsOnExactBatchBoundary(t *testing.T) {
	pruner := &fakePruner{remaining: 200}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), Repository: pruner, BatchSize: 100})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, pruner.limits, 3, "a short final batch ends the loop")
}

func TestOutboxRetentionStopsWhenCancelled(t *testing.T) {
	pruner := &fakePruner{remaining: 10_000}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), Repository: pruner, BatchSize: 10})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Len(t, pruner.limits, 1)
}

func TestOutboxRetentionPropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), Repository: &fakePruner{err: boom}})
	require.NoError(t, err)
	assert.ErrorIs(t, job.Run(context.Background()), boom)
}

func TestSweepConstructorsValidate(t *testing.T) {
	_, err := NewDonationExpiryJob(DonationExpiryJobParams{Logger: logger.Nop()})
	assert.Error(t, err)
	_, err = NewNotificationCleanupJob(NotificationCleanupJobParams{Notifications: &fakePurger{}})
	assert.Error(t, err)
	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop()})
	assert.Error(t, err)
}
