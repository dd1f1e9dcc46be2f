// Package idempotency records which events a consumer has already handled so
// at-least-once deliveries are applied once.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/pkg/redis"
)

const defaultTTL = 7 * 24 * time.Hour

var (
	errConsumerRequired = errors.New("consumer name is required")
	errEventIDRequired  = errors.New("event id is required")
)

// Manager claims event ids per consumer in Redis. A claim is a SETNX marker
// under `fb:idempotency:evt:<consumer>:<event_id>` that expires after the TTL.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

// NewManager builds a Manager. A zero ttl falls back to seven days.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = defaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// Claim marks eventID as taken by consumer. It reports false when another
// delivery already holds the claim.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
}

// Release drops a claim so the event can be handled again.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

// Once runs fn unless consumer already claimed eventID. A failing fn releases
// the claim, even after ctx is cancelled, so redelivery can retry.
func (m *Manager) Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error) {
	first, err := m.Claim(ctx, consumer, eventID)
	if err != nil || !first {
		return false, err
	}
	if err := fn(ctx); err != nil {
		if relErr := m.Release(context.WithoutCancel(ctx), consumer, eventID); relErr != nil {
			return false, errors.Join(err, relErr)
		}
		return false, err
	}
	return true, nil
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errConsumerRequired
	}
	if eventID == uuid.Nil {
		return "", errEventIDRequired
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
