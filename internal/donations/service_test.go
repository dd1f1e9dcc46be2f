package donations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/foodbridge/foodbridge-backend/pkg/db"
	"github.com/foodbridge/foodbridge-backend/pkg/db/dbtest"
	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox"
	"github.com/foodbridge/foodbridge-backend/pkg/pagination"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(
		NewRepository(conn, time.Second),
		db.NewFromConn(conn, time.Second),
		outbox.NewService(outbox.NewRepository(conn), nil),
		nil,
	)
	require.NoError(t, err)
	return svc, conn
}

func validCreateInput(donorID uuid.UUID) CreateInput {
	now := time.Now().UTC()
	return CreateInput{
		DonorID:         donorID,
		ActorRole:       enums.UserRoleDonor,
		Title:           "  Vegetable curry  ",
		FoodType:        "prepared",
		Quantity:        decimal.NewFromInt(5),
		Unit:            "kg",
		ExpirationDate:  now.AddDate(0, 0, 1),
		PickupLocation:  "Community hall",
		PickupTimeStart: now.Add(time.Hour),
		PickupTimeEnd:   now.Add(2 * time.Hour),
	}
}

func outboxCount(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	return count
}

func TestCreatePersistsAvailableDonationAndQueuesChange(t *testing.T) {
	svc, conn := newTestService(t)
	donorID := uuid.New()

	donation, err := svc.Create(context.Background(), validCreateInput(donorID))
	require.NoError(t, err)
	assert.Equal(t, "Vegetable curry", donation.Title)
	assert.Equal(t, enums.DonationStatusAvailable, donation.Status)
	assert.Equal(t, int64(1), donation.Version)
	assert.Equal(t, DateOf(donation.ExpirationDate), donation.ExpirationDate)

	var events []models.OutboxEvent
	require.NoError(t, conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventDonationChanged, events[0].EventType)
	assert.Equal(t, donation.ID, events[0].AggregateID)
}

func TestCreateValidation(t *testing.T) {
	svc, conn := newTestService(t)
	donorID := uuid.New()

	tests := []struct {
		name   string
		mutate func(*CreateInput)
		code   pkgerrors.Code
		field  string
	}{
		{"missing title", func(in *CreateInput) { in.Title = "  " }, pkgerrors.CodeValidation, "title"},
		{"zero quantity", func(in *CreateInput) { in.Quantity = decimal.Zero }, pkgerrors.CodeValidation, "quantity"},
		{"negative quantity", func(in *CreateInput) { in.Quantity = decimal.NewFromInt(-2) }, pkgerrors.CodeValidation, "quantity"},
		{"unknown food type", func(in *CreateInput) { in.FoodType = "rocks" }, pkgerrors.CodeValidation, "food_type"},
		{"unknown unit", func(in *CreateInput) { in.Unit = "tons" }, pkgerrors.CodeValidation, "unit"},
		{"inverted window", func(in *CreateInput) { in.PickupTimeEnd = in.PickupTimeStart }, pkgerrors.CodeValidation, "pickup_time_end"},
		{"past expiration", func(in *CreateInput) { in.ExpirationDate = time.Now().AddDate(0, 0, -2) }, pkgerrors.CodeValidation, "expiration_date"},
		{"recipient cannot post", func(in *CreateInput) { in.ActorRole = enums.UserRoleRecipient }, pkgerrors.CodeForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validCreateInput(donorID)
			tt.mutate(&input)
			_, err := svc.Create(context.Background(), input)
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, tt.code, typed.Code())
			if tt.field != "" {
				details, ok := typed.Details().(map[string]any)
				require.True(t, ok)
				assert.Equal(t, tt.field, details["field"])
			}
		})
	}
	assert.Zero(t, outboxCount(t, conn))
}

func TestCreateAcceptsExpirationToday(t *testing.T) {
	svc, _ := newTestService(t)
	input := validCreateInput(uuid.New())
	input.ExpirationDate = time.Now().UTC()

	_, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
}

func TestUpdateOnlyWhileAvailableAndOwned(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	donorID := uuid.New()
	donation := dbtest.Donation(t, conn, donorID, nil)

	title := "Rye bread"
	updated, err := svc.Update(ctx, UpdateInput{DonationID: donation.ID, DonorID: donorID, ActorRole: enums.UserRoleDonor, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, int64(2), updated.Version)

	_, err = svc.Update(ctx, UpdateInput{DonationID: donation.ID, DonorID: uuid.New(), ActorRole: enums.UserRoleDonor, Title: &title})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	badEnd := donation.PickupTimeStart.Add(-time.Minute)
	_, err = svc.Update(ctx, UpdateInput{DonationID: donation.ID, DonorID: donorID, ActorRole: enums.UserRoleDonor, PickupTimeEnd: &badEnd})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.NoError(t, conn.Model(&models.Donation{}).Where("id = ?", donation.ID).
		Update("status", enums.DonationStatusClaimed).Error)
	_, err = svc.Update(ctx, UpdateInput{DonationID: donation.ID, DonorID: donorID, ActorRole: enums.UserRoleDonor, Title: &title})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestGetMissingDonationIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListAvailableRejectsUnknownCategoryAndBadCursor(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ListAvailable(context.Background(), ListFilter{Category: "gravel"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.ListAvailable(context.Background(), ListFilter{Cursor: "!!"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	result, err := svc.ListAvailable(context.Background(), ListFilter{Category: "all"})
	require.NoError(t, err)
	assert.NotNil(t, result.Items)
}

func TestAvailableIsLazyAndRestartable(t *testing.T) {
	svc, conn := newTestService(t)
	donor := uuid.New()
	base := time.Now().UTC()
	var expected []uuid.UUID
	for i := range 5 {
		d := dbtest.Donation(t, conn, donor, func(d *models.Donation) {
			d.CreatedAt = base.Add(-time.Duration(i) * time.Minute)
		})
		expected = append(expected, d.ID)
	}

	seq := svc.Available(context.Background(), ListFilter{Limit: 2})
	collect := func() []uuid.UUID {
		var ids []uuid.UUID
		for donation, err := range seq {
			require.NoError(t, err)
			ids = append(ids, donation.ID)
		}
		return ids
	}
	assert.Equal(t, expected, collect())
	assert.Equal(t, expected, collect(), "re-ranging restarts the sequence")

	var first []uuid.UUID
	for donation, err := range seq {
		require.NoError(t, err)
		first = append(first, donation.ID)
		if len(first) == 3 {
			break
		}
	}
	assert.Equal(t, expected[:3], first)
}

func TestListByDonorPages(t *testing.T) {
	svc, conn := newTestService(t)
	donor := uuid.New()
	base := time.Now().UTC()
	for i := range 3 {
		dbtest.Donation(t, conn, donor, func(d *models.Donation) {
			d.CreatedAt = base.Add(-time.Duration(i) * time.Minute)
		})
	}
	dbtest.Donation(t, conn, uuid.New(), nil)

	page1, err := svc.ListByDonor(context.Background(), donor, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page1.Items, 2)
	require.NotEmpty(t, page1.Cursor)

	page2, err := svc.ListByDonor(context.Background(), donor, pagination.Params{Limit: 2, Cursor: page1.Cursor})
	require.NoError(t, err)
	assert.Len(t, page2.Items, 1)
	assert.Empty(t, page2.Cursor)
}

func TestMarkClaimedConflictsWhenNotAvailable(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	expired := dbtest.Donation(t, conn, uuid.New(), func(d *models.Donation) {
		d.ExpirationDate = DateOf(time.Now()).AddDate(0, 0, -1)
	})
	claimed := dbtest.Donation(t, conn, uuid.New(), func(d *models.Donation) {
		d.Status = enums.DonationStatusClaimed
	})

	for _, id := range []uuid.UUID{expired.ID, claimed.ID} {
		err := conn.Transaction(func(tx *gorm.DB) error {
			_, err := svc.MarkClaimed(ctx, tx, id, nil)
			return err
		})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "donation %s", id)
	}

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.MarkClaimed(ctx, tx, uuid.New(), nil)
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMarkExpiredSweepsPastDonations(t *testing.T) {
	svc, conn := newTestService(t)
	now := time.Now().UTC()
	yesterday := DateOf(now).AddDate(0, 0, -1)
	stale1 := dbtest.Donation(t, conn, uuid.New(), func(d *models.Donation) { d.ExpirationDate = yesterday })
	stale2 := dbtest.Donation(t, conn, uuid.New(), func(d *models.Donation) { d.ExpirationDate = yesterday })
	fresh := dbtest.Donation(t, conn, uuid.New(), nil)

	count, err := svc.MarkExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	for _, id := range []uuid.UUID{stale1.ID, stale2.ID} {
		got, err := svc.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, enums.DonationStatusExpired, got.Status)
	}
	got, err := svc.Get(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DonationStatusAvailable, got.Status)
	assert.Equal(t, int64(2), outboxCount(t, conn))

	err = conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.MarkClaimed(context.Background(), tx, stale1.ID, nil)
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "expired donations can never be claimed")
}

func TestChangeForMarksPoolTransitionsPublic(t *testing.T) {
	donation := &models.Donation{ID: uuid.New(), DonorID: uuid.New(), Status: enums.DonationStatusClaimed, Version: 2}

	change := ChangeFor(donation, enums.ChangeOpUpdate, enums.DonationStatusAvailable)
	assert.True(t, change.Public)
	assert.Equal(t, []uuid.UUID{donation.DonorID}, change.OwnerIDs)

	donation.Status = enums.DonationStatusCompleted
	assert.False(t, ChangeFor(donation, enums.ChangeOpUpdate, enums.DonationStatusClaimed).Public)
}
