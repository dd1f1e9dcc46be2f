package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for match transitions.
const (
	OutcomeOK          = "ok"
	OutcomeConflict    = "conflict"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// MatchMetrics counts match transitions by target status and outcome.
type MatchMetrics struct {
	transitions *prometheus.CounterVec
}

func NewMatchMetrics(reg prometheus.Registerer) *MatchMetrics {
	if reg == nil {
		return &MatchMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "match_transitions_total",
		Help: "Match state transitions by target status and outcome.",
	}, []string{"target", "outcome"})
	reg.MustRegister(transitions)
	return &MatchMetrics{transitions: transitions}
}

func (m *MatchMetrics) IncTransition(target, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(target), normalizeLabel(outcome)).Inc()
}

// LiveSyncMetrics tracks change feed fan-out.
type LiveSyncMetrics struct {
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	subscribers prometheus.Gauge
}

func NewLiveSyncMetrics(reg prometheus.Registerer) *LiveSyncMetrics {
	if reg == nil {
		return &LiveSyncMetrics{}
	}
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livesync_deliveries_total",
		Help: "Change notices delivered to subscribers.",
	}, []string{"table"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livesync_dropped_total",
		Help: "Change notices dropped for slow subscribers.",
	}, []string{"table"})
	subscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livesync_subscribers",
		Help: "Active live sync subscriptions.",
	})
	reg.MustRegister(delivered, dropped, subscribers)
	return &LiveSyncMetrics{delivered: delivered, dropped: dropped, subscribers: subscribers}
}

func (m *LiveSyncMetrics) IncDelivered(table string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(table)).Inc()
}

func (m *LiveSyncMetrics) IncDropped(table string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(table)).Inc()
}

func (m *LiveSyncMetrics) AddSubscribers(delta int) {
	if m == nil || m.subscribers == nil {
		return
	}
	m.subscribers.Add(float64(delta))
}

// PushMetrics counts push notification outcomes.
type PushMetrics struct {
	sent   prometheus.Counter
	failed prometheus.Counter
}

func NewPushMetrics(reg prometheus.Registerer) *PushMetrics {
	if reg == nil {
		return &PushMetrics{}
	}
	sent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_sent_total",
		Help: "Push messages accepted by FCM.",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_failed_total",
		Help: "Push messages rejected by FCM or not attempted.",
	})
	reg.MustRegister(sent, failed)
	return &PushMetrics{sent: sent, failed: failed}
}

func (m *PushMetrics) Add(sent, failed int) {
	if m == nil || m.sent == nil {
		return
	}
	m.sent.Add(float64(sent))
	m.failed.Add(float64(failed))
}
