package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
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

func newTestInbox(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(
		NewRepository(conn, time.Second),
		NewDeviceRepository(conn, time.Second),
		db.NewFromConn(conn, time.Second),
		outbox.NewService(outbox.NewRepository(conn), nil),
	)
	require.NoError(t, err)
	return svc, conn
}

func seedNotification(t *testing.T, conn *gorm.DB, userID uuid.UUID, createdAt time.Time, read bool) models.Notification {
	t.Helper()
	n := models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      enums.NotificationTypeMatch,
		Title:     "Food Donation Claimed",
		Message:   "claimed",
		Version:   1,
		CreatedAt: createdAt.UTC(),
	}
	if read {
		readAt := createdAt.UTC().Add(time.Minute)
		n.ReadAt = &readAt
	}
	require.NoError(t, conn.Create(&n).Error)
	return n
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestListNewestFirstWithUnreadCount(t *testing.T) {
	svc, conn := newTestInbox(t)
	userID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)

	oldest := seedNotification(t, conn, userID, base, true)
	middle := seedNotification(t, conn, userID, base.Add(time.Minute), false)
	newest := seedNotification(t, conn, userID, base.Add(2*time.Minute), false)
	seedNotification(t, conn, uuid.New(), base, false)

	page, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, newest.ID, page.Items[0].ID)
	assert.Equal(t, middle.ID, page.Items[1].ID)
	assert.Equal(t, int64(2), page.UnreadCount)
	require.NotEmpty(t, page.Cursor)

	next, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, oldest.ID, next.Items[0].ID)
	assert.Empty(t, next.Cursor)

	unread, err := svc.List(context.Background(), ListParams{UserID: userID, UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread.Items, 2)
}

func TestListRejectsBadInput(t *testing.T) {
	svc, _ := newTestInbox(t)

	_, err := svc.List(context.Background(), ListParams{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.List(context.Background(), ListParams{UserID: uuid.New(), Cursor: "bad"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListEmptyInbox(t *testing.T) {
	svc, _ := newTestInbox(t)
	page, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Limit: pagination.DefaultLimit})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.UnreadCount)
}

func TestMarkReadEmitsOnceAndIsIdempotent(t *testing.T) {
	svc, conn := newTestInbox(t)
	userID := uuid.New()
	n := seedNotification(t, conn, userID, time.Now().Add(-time.Minute), false)

	updated, err := svc.MarkRead(context.Background(), userID, n.ID)
	require.NoError(t, err)
	assert.True(t, updated.Read())
	assert.Equal(t, int64(2), updated.Version)

	again, err := svc.MarkRead(context.Background(), userID, n.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Version)

	var events []models.OutboxEvent
	require.NoError(t, conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventNotificationChanged, events[0].EventType)
	assert.Equal(t, n.ID, events[0].AggregateID)
}

func TestMarkReadNotOwnedIsNotFound(t *testing.T) {
	svc, conn := newTestInbox(t)
	n := seedNotification(t, conn, uuid.New(), time.Now(), false)

	_, err := svc.MarkRead(context.Background(), uuid.New(), n.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.MarkRead(context.Background(), uuid.New(), uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestMarkAllRead(t *testing.T) {
	svc, conn := newTestInbox(t)
	userID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)
	seedNotification(t, conn, userID, base, false)
	seedNotification(t, conn, userID, base.Add(time.Minute), false)
	seedNotification(t, conn, userID, base.Add(2*time.Minute), true)
	other := seedNotification(t, conn, uuid.New(), base, false)

	count, err := svc.MarkAllRead(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	var unread int64
	require.NoError(t, conn.Model(&models.Notification{}).Where("user_id = ? AND read_at IS NULL", userID).Count(&unread).Error)
	assert.Zero(t, unread)

	var untouched models.Notification
	require.NoError(t, conn.First(&untouched, "id = ?", other.ID).Error)
	assert.False(t, untouched.Read())

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&events).Error)
	assert.Equal(t, int64(2), events)

	count, err = svc.MarkAllRead(context.Background(), userID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRegisterDevice(t *testing.T) {
	svc, conn := newTestInbox(t)
	first := uuid.New()
	second := uuid.New()

	require.NoError(t, svc.RegisterDevice(context.Background(), first, " token-1 ", "Android"))
	require.NoError(t, svc.RegisterDevice(context.Background(), second, "token-1", "ios"))

	var rows []models.DeviceToken
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, second, rows[0].UserID)
	assert.Equal(t, "ios", rows[0].Platform)

	err := svc.RegisterDevice(context.Background(), first, "", "ios")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	err = svc.RegisterDevice(context.Background(), first, "token-2", "blackberry")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = svc.UnregisterDevice(context.Background(), first, "token-1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.NoError(t, svc.UnregisterDevice(context.Background(), second, "token-1"))
}

func TestPurgeReadKeepsUnread(t *testing.T) {
	svc, conn := newTestInbox(t)
	userID := uuid.New()
	old := time.Now().UTC().AddDate(0, 0, -60)
	seedNotification(t, conn, userID, old, true)
	keep := seedNotification(t, conn, userID, old, false)
	seedNotification(t, conn, userID, time.Now(), true)

	removed, err := svc.PurgeRead(context.Background(), time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var rows []models.Notification
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Contains(t, []uuid.UUID{rows[0].ID, rows[1].ID}, keep.ID)
}
