package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore mimics the Redis commands the manager relies on.
type memStore struct {
	keys   map[string]time.Duration
	setErr error
	delErr error
}

func newMemStore() *memStore { return &memStore{keys: make(map[string]time.Duration)} }

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	if _, ok := s.keys[key]; ok {
		return "1", nil
	}
	return "", nil
}

func (s *memStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if s.setErr != nil {
		return false, s.setErr
	}
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = ttl
	return true, nil
}

func (s *memStore) Del(_ context.Context, keys ...string) error {
	if s.delErr != nil {
		return s.delErr
	}
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

func (s *memStore) IdempotencyKey(scope, id string) string {
	return "fb:idempotency:" + scope + ":" + id
}

func TestClaimIsExclusivePerConsumer(t *testing.T) {
	store := newMemStore()
	manager, err := NewManager(store, 24*time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	first, err := manager.Claim(ctx, "analytics", eventID)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := manager.Claim(ctx, "analytics", eventID)
	require.NoError(t, err)
	assert.False(t, again)

	other, err := manager.Claim(ctx, "livesync:api-1", eventID)
	require.NoError(t, err)
	assert.True(t, other, "consumers claim independently")

	assert.Equal(t, 24*time.Hour, store.keys["fb:idempotency:evt:analytics:"+eventID.String()])
}

func TestReleaseAllowsReclaim(t *testing.T) {
	manager, err := NewManager(newMemStore(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	_, err = manager.Claim(ctx, "analytics", eventID)
	require.NoError(t, err)
	require.NoError(t, manager.Release(ctx, "analytics", eventID))

	first, err := manager.Claim(ctx, "analytics", eventID)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestClaimValidatesInput(t *testing.T) {
	manager, err := NewManager(newMemStore(), time.Hour)
	require.NoError(t, err)

	_, err = manager.Claim(context.Background(), "", uuid.New())
	assert.ErrorIs(t, err, errConsumerRequired)
	_, err = manager.Claim(context.Background(), "analytics", uuid.Nil)
	assert.ErrorIs(t, err, errEventIDRequired)
}

func TestNewManagerDefaults(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewManager(newMemStore(), -time.Second)
	assert.Error(t, err)

	manager, err := NewManager(newMemStore(), 0)
	require.NoError(t, err)
	assert.Equal(t, defaultTTL, manager.ttl)
}

func TestOnceRunsOnlyTheFirstDelivery(t *testing.T) {
	manager, err := NewManager(newMemStore(), time.Hour)
	require.NoError(t, err)
	eventID := uuid.New()
	calls := 0
	fn := func(context.Context) error { calls++; return nil }

	ran, err := manager.Once(context.Background(), "livesync", eventID, fn)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = manager.Once(context.Background(), "livesync", eventID, fn)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1, calls)
}

func TestOnceReleasesClaimOnFailure(t *testing.T) {
	store := newMemStore()
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)
	eventID := uuid.New()
	boom := errors.New("sink down")

	ctx, cancel := context.WithCancel(context.Background())
	ran, err := manager.Once(ctx, "analytics", eventID, func(context.Context) error {
		cancel()
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ran)
	assert.Empty(t, store.keys, "claim released despite cancellation")
}

func TestOnceJoinsReleaseFailure(t *testing.T) {
	store := newMemStore()
	store.delErr = errors.New("redis gone")
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	boom := errors.New("sink down")
	_, err = manager.Once(context.Background(), "analytics", uuid.New(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, store.delErr)
}

func TestOnceSurfacesStoreErrors(t *testing.T) {
	store := newMemStore()
	store.setErr = errors.New("redis down")
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	ran, err := manager.Once(context.Background(), "analytics", uuid.New(), func(context.Context) error {
		t.Fatal("fn must not run without a claim")
		return nil
	})
	assert.ErrorIs(t, err, store.setErr)
	assert.False(t, ran)
}
