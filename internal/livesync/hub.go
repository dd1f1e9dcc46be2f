package livesync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/metrics"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/payloads"
)

const defaultSubscriberBuffer = 64

// Change is the notice delivered to subscribers. Clients refetch the row.
type Change struct {
	Table   enums.OutboxAggregateType `json:"table"`
	RowID   uuid.UUID                 `json:"row_id"`
	Op      enums.ChangeOp            `json:"op"`
	Version int64                     `json:"version"`
	Status  string                    `json:"status,omitempty"`
}

// Predicate decides whether a subscriber may observe a change.
type Predicate func(payloads.ChangeEvent) bool

// Subscription is one subscriber's stream of changes for a single table.
type Subscription struct {
	id        uint64
	table     enums.OutboxAggregateType
	predicate Predicate
	ch        chan Change
	lagged    chan struct{}
	dropped   atomic.Int64
	closeOnce sync.Once
}

// C returns the channel of notices. It is closed when the subscription is cancelled.
func (s *Subscription) C() <-chan Change { return s.ch }

// Table returns the subscribed table.
func (s *Subscription) Table() enums.OutboxAggregateType { return s.table }

// Dropped reports how many notices were discarded because the subscriber lagged.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Lagged fires after one or more notices were dropped. Once it fires the
// subscriber must refetch the table, since the dropped versions are never
// offered again.
func (s *Subscription) Lagged() <-chan struct{} { return s.lagged }

type rowKey struct {
	table enums.OutboxAggregateType
	id    uuid.UUID
}

type highWater struct {
	version int64
	seenAt  time.Time
}

// Hub fans change events out to in-process subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[enums.OutboxAggregateType]map[uint64]*Subscription
	nextID uint64

	// delivered holds the last version published per row.
	vmu       sync.Mutex
	delivered map[rowKey]highWater

	buffer  int
	metrics *metrics.LiveSyncMetrics
	now     func() time.Time
}

// NewHub builds a hub whose subscriptions buffer up to buffer notices.
func NewHub(buffer int, m *metrics.LiveSyncMetrics) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		subs:      make(map[enums.OutboxAggregateType]map[uint64]*Subscription),
		delivered: make(map[rowKey]highWater),
		buffer:    buffer,
		metrics:   m,
		now:       time.Now,
	}
}

// Subscribe registers a subscriber for table. A nil predicate admits every change.
// The returned cancel func is idempotent.
func (h *Hub) Subscribe(table enums.OutboxAggregateType, predicate Predicate) (*Subscription, func()) {
	if predicate == nil {
		predicate = func(payloads.ChangeEvent) bool { return true }
	}

	h.mu.Lock()
	h.nextID++
	sub := &Subscription{
		id:        h.nextID,
		table:     table,
		predicate: predicate,
		ch:        make(chan Change, h.buffer),
		lagged:    make(chan struct{}, 1),
	}
	bucket, ok := h.subs[table]
	if !ok {
		bucket = make(map[uint64]*Subscription)
		h.subs[table] = bucket
	}
	bucket[sub.id] = sub
	h.mu.Unlock()
	h.metrics.AddSubscribers(1)

	cancel := func() {
		sub.closeOnce.Do(func() {
			h.mu.Lock()
			delete(h.subs[table], sub.id)
			if len(h.subs[table]) == 0 {
				delete(h.subs, table)
			}
			close(sub.ch)
			h.mu.Unlock()
			h.metrics.AddSubscribers(-1)
		})
	}
	return sub, cancel
}

// Publish delivers change to every matching subscriber. Changes whose version
// is not newer than the last one published for the row are discarded and
// Publish returns false.
func (h *Hub) Publish(change payloads.ChangeEvent) bool {
	if !h.advance(change) {
		return false
	}

	notice := Change{
		Table:   change.Table,
		RowID:   change.RowID,
		Op:      change.Op,
		Version: change.RowVersion,
		Status:  change.Status,
	}
	table := string(change.Table)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs[change.Table] {
		if !sub.predicate(change) {
			continue
		}
		select {
		case sub.ch <- notice:
			h.metrics.IncDelivered(table)
		default:
			sub.dropped.Add(1)
			h.metrics.IncDropped(table)
			select {
			case sub.lagged <- struct{}{}:
			default:
			}
		}
	}
	return true
}

func (h *Hub) advance(change payloads.ChangeEvent) bool {
	key := rowKey{table: change.Table, id: change.RowID}
	h.vmu.Lock()
	defer h.vmu.Unlock()
	if last, ok := h.delivered[key]; ok && change.RowVersion <= last.version {
		return false
	}
	h.delivered[key] = highWater{version: change.RowVersion, seenAt: h.now()}
	return true
}

// Forget drops high-water marks not touched since cutoff and returns how many were removed.
func (h *Hub) Forget(cutoff time.Time) int {
	h.vmu.Lock()
	defer h.vmu.Unlock()
	removed := 0
	for key, mark := range h.delivered {
		if mark.seenAt.Before(cutoff) {
			delete(h.delivered, key)
			removed++
		}
	}
	return removed
}

// Prune periodically forgets rows idle for longer than ttl until ctx is done.
func (h *Hub) Prune(ctx context.Context, every, ttl time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Forget(h.now().Add(-ttl))
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, bucket := range h.subs {
		n += len(bucket)
	}
	return n
}
