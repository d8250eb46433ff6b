package outbox

import (
	"sync"
	"sync/atomic"
	"time"
)

type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeRetry   Outcome = "retry"
	OutcomeFailed  Outcome = "failed"
	OutcomeRelease Outcome = "released"
)

// MetricsCollector receives worker and replay measurements.
type MetricsCollector interface {
	RecordEntryProcessed(entryType Type, outcome Outcome, duration time.Duration)
	RecordBatchClaimed(count int, duration time.Duration)
	RecordIdleSleep(d time.Duration)
}

type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordEntryProcessed(Type, Outcome, time.Duration) {}
func (NoOpMetricsCollector) RecordBatchClaimed(int, time.Duration)             {}
func (NoOpMetricsCollector) RecordIdleSleep(time.Duration)                     {}

// CounterMetrics keeps process-local totals for the /metrics endpoint.
type CounterMetrics struct {
	claimed   atomic.Uint64
	batches   atomic.Uint64
	idleNanos atomic.Int64

	mu       sync.Mutex
	outcomes map[Outcome]uint64
	busy     time.Duration
}

func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{outcomes: make(map[Outcome]uint64)}
}

func (m *CounterMetrics) RecordEntryProcessed(_ Type, outcome Outcome, duration time.Duration) {
	m.mu.Lock()
	m.outcomes[outcome]++
	m.busy += duration
	m.mu.Unlock()
}

func (m *CounterMetrics) RecordBatchClaimed(count int, _ time.Duration) {
	m.batches.Add(1)
	m.claimed.Add(uint64(count))
}

func (m *CounterMetrics) RecordIdleSleep(d time.Duration) {
	m.idleNanos.Store(int64(d))
}

type MetricsSnapshot struct {
	Claimed      uint64
	Batches      uint64
	Outcomes     map[Outcome]uint64
	BusySeconds  float64
	CurrentSleep time.Duration
}

func (m *CounterMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	outcomes := make(map[Outcome]uint64, len(m.outcomes))
	for k, v := range m.outcomes {
		outcomes[k] = v
	}
	busy := m.busy
	m.mu.Unlock()

	return MetricsSnapshot{
		Claimed:      m.claimed.Load(),
		Batches:      m.batches.Load(),
		Outcomes:     outcomes,
		BusySeconds:  busy.Seconds(),
		CurrentSleep: time.Duration(m.idleNanos.Load()),
	}
}
