package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	DatabaseConnected bool      `json:"database_connected"`
	WorkerRunning     bool      `json:"worker_running"`
	ListenerConnected bool      `json:"listener_connected"`
	BrokerConnected   bool      `json:"broker_connected"`
	EntriesProcessed  uint64    `json:"entries_processed"`
	LastProcessedTime time.Time `json:"last_processed_time"`
	PendingEntries    int64     `json:"pending_entries"`
	FailedEntries     int64     `json:"failed_entries"`
	Errors            []string  `json:"errors"`
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Connectivity is implemented by the listener and the broker publisher.
type Connectivity interface {
	Connected() bool
}

type HealthChecker struct {
	db        Pinger
	store     Store
	worker    *Worker
	listener  Connectivity
	broker    Connectivity
	metrics   *CounterMetrics
	clock     clockwork.Clock
	threshold time.Duration
}

// NewHealthChecker reports unhealthy when pending work exists but nothing has
// completed for longer than threshold. listener, broker and metrics may be nil.
func NewHealthChecker(db Pinger, store Store, worker *Worker, listener, broker Connectivity, metrics *CounterMetrics, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		db:        db,
		store:     store,
		worker:    worker,
		listener:  listener,
		broker:    broker,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
		threshold: threshold,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	status.EntriesProcessed, status.LastProcessedTime = h.worker.Stats()
	status.WorkerRunning = h.worker.Running()
	if !status.WorkerRunning {
		status.Healthy = false
		status.Errors = append(status.Errors, "worker not running")
	}

	if err := h.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	// The listener only affects latency, so a lost connection is reported but
	// does not fail the check.
	if h.listener != nil {
		status.ListenerConnected = h.listener.Connected()
		if !status.ListenerConnected {
			status.Errors = append(status.Errors, "listener disconnected, polling only")
		}
	}

	if h.broker != nil {
		status.BrokerConnected = h.broker.Connected()
		if !status.BrokerConnected {
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if status.DatabaseConnected {
		counts, err := h.store.CountByStatus(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count outbox entries: %v", err))
		} else {
			status.PendingEntries = counts[StatusPending]
			status.FailedEntries = counts[StatusFailed]
			if status.FailedEntries > 0 {
				status.Errors = append(status.Errors, fmt.Sprintf("%d outbox entries need manual replay", status.FailedEntries))
			}
		}
	}

	if status.PendingEntries > 0 && !status.LastProcessedTime.IsZero() && h.threshold > 0 {
		if since := h.clock.Since(status.LastProcessedTime); since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no entries processed for %s", since.Truncate(time.Second)))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// PrometheusExporter renders health and counters in the text exposition format.
type PrometheusExporter struct {
	checker *HealthChecker
}

func NewPrometheusExporter(checker *HealthChecker) *PrometheusExporter {
	return &PrometheusExporter{checker: checker}
}

func (e *PrometheusExporter) Export(ctx context.Context) string {
	status := e.checker.Check(ctx)

	var b strings.Builder
	gauge := func(name, help string, value any) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %v\n\n", name, help, name, name, value)
	}
	counter := func(name, help string, value any) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %v\n\n", name, help, name, name, value)
	}

	gauge("outbox_healthy", "Whether the outbox worker is healthy", boolToInt(status.Healthy))
	gauge("outbox_database_connected", "Whether the database is reachable", boolToInt(status.DatabaseConnected))
	gauge("outbox_worker_running", "Whether the claim loop is running", boolToInt(status.WorkerRunning))
	gauge("outbox_listener_connected", "Whether LISTEN outbox_insert is connected", boolToInt(status.ListenerConnected))
	gauge("outbox_pending_entries", "Entries waiting to be claimed", status.PendingEntries)
	gauge("outbox_failed_entries", "Entries in terminal FAILED state", status.FailedEntries)
	counter("outbox_entries_processed_total", "Entries completed by this process", status.EntriesProcessed)
	gauge("outbox_last_processed_timestamp", "Unix time of the last completed entry", unixOrZero(status.LastProcessedTime))

	if m := e.checker.metrics; m != nil {
		snap := m.Snapshot()
		counter("outbox_claimed_total", "Entries claimed by this process", snap.Claimed)
		counter("outbox_claims_total", "Claim statements executed", snap.Batches)
		gauge("outbox_idle_sleep_seconds", "Current idle backoff interval", snap.CurrentSleep.Seconds())

		outcomes := make([]string, 0, len(snap.Outcomes))
		for o := range snap.Outcomes {
			outcomes = append(outcomes, string(o))
		}
		sort.Strings(outcomes)
		b.WriteString("# HELP outbox_outcomes_total Processing outcomes by kind\n# TYPE outbox_outcomes_total counter\n")
		for _, o := range outcomes {
			fmt.Fprintf(&b, "outbox_outcomes_total{outcome=%q} %d\n", o, snap.Outcomes[Outcome(o)])
		}
		b.WriteString("\n")
	}

	return b.String()
}

func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(e.Export(ctx)))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
