package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodbridge/foodbridge-backend/pkg/db/dbtest"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
)

type fakeCounter struct {
	counts map[enums.MatchStatus]int64
	err    error
}

func (f fakeCounter) Counts(context.Context, uuid.UUID, enums.UserRole) (map[enums.MatchStatus]int64, error) {
	return f.counts, f.err
}

type fakeAverager struct {
	avg   float64
	total int64
}

func (f fakeAverager) DonorAverage(context.Context, uuid.UUID) (float64, int64, error) {
	return f.avg, f.total, nil
}

func TestDonorStats(t *testing.T) {
	conn := dbtest.Open(t)
	donorID := uuid.New()
	dbtest.Donation(t, conn, donorID, nil)
	dbtest.Donation(t, conn, donorID, func(d *models.Donation) { d.Status = enums.DonationStatusClaimed })
	dbtest.Donation(t, conn, donorID, func(d *models.Donation) {
		d.Status = enums.DonationStatusCompleted
		d.Quantity = decimal.NewFromInt(3)
	})
	dbtest.Donation(t, conn, donorID, func(d *models.Donation) {
		d.Status = enums.DonationStatusCompleted
		d.Quantity = decimal.NewFromInt(4)
	})
	dbtest.Donation(t, conn, uuid.New(), nil)

	counter := fakeCounter{counts: map[enums.MatchStatus]int64{
		enums.MatchStatusPending:   1,
		enums.MatchStatusCompleted: 2,
	}}
	svc, err := NewService(NewRepository(conn, time.Second), counter, fakeAverager{avg: 4.5, total: 2})
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background(), donorID, enums.UserRoleDonor)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ActiveDonations)
	assert.Equal(t, int64(4), stats.TotalDonations)
	assert.Equal(t, int64(4), stats.TotalImpact)
	assert.Equal(t, int64(1), stats.PendingMatches)
	assert.Equal(t, int64(2), stats.CompletedMatches)
	require.Contains(t, stats.QuantityDonated, enums.UnitKilograms)
	assert.True(t, decimal.NewFromInt(7).Equal(stats.QuantityDonated[enums.UnitKilograms]))
	require.NotNil(t, stats.AverageRating)
	assert.InDelta(t, 4.5, *stats.AverageRating, 0.0001)
}

func TestVolunteerStats(t *testing.T) {
	conn := dbtest.Open(t)
	counter := fakeCounter{counts: map[enums.MatchStatus]int64{
		enums.MatchStatusInTransit: 1,
		enums.MatchStatusCompleted: 5,
	}}
	svc, err := NewService(NewRepository(conn, time.Second), counter, fakeAverager{})
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background(), uuid.New(), enums.UserRoleVolunteer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.InTransitMatches)
	assert.Equal(t, int64(1), stats.PendingMatches)
	assert.Equal(t, int64(5), stats.CompletedMatches)
	assert.Equal(t, int64(6), stats.TotalImpact)
	assert.Zero(t, stats.TotalDonations)
	assert.Nil(t, stats.AverageRating)
}

func TestStatsPropagatesErrors(t *testing.T) {
	conn := dbtest.Open(t)
	boom := errors.New("store down")
	svc, err := NewService(NewRepository(conn, time.Second), fakeCounter{err: boom}, fakeAverager{})
	require.NoError(t, err)

	_, err = svc.Stats(context.Background(), uuid.New(), enums.UserRoleRecipient)
	require.ErrorIs(t, err, boom)

	_, err = svc.Stats(context.Background(), uuid.Nil, enums.UserRoleRecipient)
	require.Error(t, err)
}
