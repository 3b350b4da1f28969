package command

import (
	"sync"
	"time"
)

// DeliveryMetrics accumulates the notification orchestrator's
// operational counters: totals, retry and failover counts, per-provider
// breakdowns and a running response-time average. One instance lives on
// UseCase for the process lifetime; all methods are safe for concurrent
// use by the delivery workers.
type DeliveryMetrics struct {
	mu sync.Mutex

	sent      int64
	failed    int64
	retries   int64
	failovers int64

	responseTimeTotal time.Duration
	responseTimeCount int64

	byProvider map[string]*ProviderCounters
}

// ProviderCounters is the per-vendor slice of DeliveryMetrics.
type ProviderCounters struct {
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}

// NewDeliveryMetrics returns an empty counter set.
func NewDeliveryMetrics() *DeliveryMetrics {
	return &DeliveryMetrics{byProvider: map[string]*ProviderCounters{}}
}

func (m *DeliveryMetrics) provider(name string) *ProviderCounters {
	c, ok := m.byProvider[name]
	if !ok {
		c = &ProviderCounters{}
		m.byProvider[name] = c
	}

	return c
}

// RecordSent records one successful delivery through provider, with the
// observed provider round-trip time.
func (m *DeliveryMetrics) RecordSent(provider string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent++
	m.provider(provider).Sent++

	// bulk sends report a zero elapsed time per recipient; keep them out
	// of the round-trip average.
	if elapsed > 0 {
		m.responseTimeTotal += elapsed
		m.responseTimeCount++
	}
}

// RecordFailed records one delivery that exhausted every leg.
func (m *DeliveryMetrics) RecordFailed(provider string) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.failed++
	m.provider(provider).Failed++
}

// RecordRetry records one retry attempt beyond the first against a
// provider.
func (m *DeliveryMetrics) RecordRetry() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.retries++
}

// RecordFailover records one switch from a primary leg to its secondary.
func (m *DeliveryMetrics) RecordFailover() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.failovers++
}

// MetricsSnapshot is the read model Snapshot returns.
type MetricsSnapshot struct {
	TotalSent         int64                        `json:"total_sent"`
	TotalFailed       int64                        `json:"total_failed"`
	Retries           int64                        `json:"retries"`
	Failovers         int64                        `json:"failovers"`
	SuccessRate       float64                      `json:"success_rate"`
	AvgResponseTimeMS int64                        `json:"avg_response_time_ms"`
	ByProvider        map[string]ProviderCounters  `json:"by_provider"`
}

// Snapshot returns a point-in-time copy of every counter.
func (m *DeliveryMetrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{ByProvider: map[string]ProviderCounters{}}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		TotalSent:  m.sent,
		TotalFailed: m.failed,
		Retries:    m.retries,
		Failovers:  m.failovers,
		ByProvider: make(map[string]ProviderCounters, len(m.byProvider)),
	}

	if total := m.sent + m.failed; total > 0 {
		snap.SuccessRate = float64(m.sent) / float64(total)
	}

	if m.responseTimeCount > 0 {
		snap.AvgResponseTimeMS = (m.responseTimeTotal / time.Duration(m.responseTimeCount)).Milliseconds()
	}

	for name, c := range m.byProvider {
		snap.ByProvider[name] = *c
	}

	return snap
}
