package outbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/srkrcodingclub/iconcoderz/go/internal/audit"
	"github.com/srkrcodingclub/iconcoderz/go/internal/events"
)

type Config struct {
	BatchSize      int
	MaxAttempts    int
	IdleBackoff    []time.Duration
	OnceIterations int
	NotifyChannel  string
}

func DefaultConfig() Config {
	return Config{
		BatchSize:   5,
		MaxAttempts: 5,
		IdleBackoff: []time.Duration{
			2 * time.Second,
			5 * time.Second,
			15 * time.Second,
			60 * time.Second,
			300 * time.Second,
		},
		OnceIterations: 1000,
		NotifyChannel:  "outbox_insert",
	}
}

type Auditor interface {
	RecordAsync(ctx context.Context, event audit.Event, details audit.Details)
}

type workerState int32

const (
	stateIdle workerState = iota
	stateRunning
)

var ErrWorkerRunning = errors.New("outbox worker already running")

type Option func(*Worker)

func WithClock(c clockwork.Clock) Option {
	return func(w *Worker) { w.clock = c }
}

func WithPublisher(p events.Publisher) Option {
	return func(w *Worker) { w.publisher = p }
}

func WithAuditor(a Auditor) Option {
	return func(w *Worker) { w.audit = a }
}

func WithMetrics(m MetricsCollector) Option {
	return func(w *Worker) { w.metrics = m }
}

// Worker drains due outbox entries. Any number of workers may run against the
// same table; exclusivity comes from the claim statement.
type Worker struct {
	store     Store
	handler   Handler
	cfg       Config
	clock     clockwork.Clock
	publisher events.Publisher
	audit     Auditor
	metrics   MetricsCollector

	state   atomic.Int32
	pending atomic.Bool
	wakeCh  chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	processed     atomic.Uint64
	lastProcessed atomic.Int64
}

func NewWorker(store Store, handler Handler, cfg Config, opts ...Option) *Worker {
	w := &Worker{
		store:     store,
		handler:   handler,
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
		publisher: events.NoOp{},
		metrics:   NoOpMetricsCollector{},
		wakeCh:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Notify marks work as likely available and cuts any idle sleep short.
func (w *Worker) Notify() {
	w.pending.Store(true)
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

// Start runs the loop on its own goroutine until Stop or ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(stateIdle), int32(stateRunning)) {
		return ErrWorkerRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.mu.Lock()
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	go func() {
		defer close(done)
		defer w.state.Store(int32(stateIdle))
		w.Run(runCtx)
	}()

	log.Info().
		Int("batch_size", w.cfg.BatchSize).
		Int("max_attempts", w.cfg.MaxAttempts).
		Msg("outbox worker started")
	return nil
}

// Stop cancels the loop and waits for the in-flight batch to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel == nil || !w.Running() {
		return errors.New("outbox worker not running")
	}
	cancel()
	<-done

	log.Info().Msg("outbox worker stopped")
	return nil
}

func (w *Worker) Running() bool {
	return workerState(w.state.Load()) == stateRunning
}

// Stats returns the number of entries completed and when the last one was.
func (w *Worker) Stats() (uint64, time.Time) {
	var last time.Time
	if ns := w.lastProcessed.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return w.processed.Load(), last
}

// Run claims and processes batches until ctx is done. Empty claims put the
// loop to sleep on the idle backoff sequence; Notify wakes it early.
func (w *Worker) Run(ctx context.Context) {
	backoff := NewIdleBackoff(w.cfg.IdleBackoff)

	for ctx.Err() == nil {
		w.pending.Store(false)

		n, err := w.claimAndProcess(ctx)
		if err == nil && n > 0 {
			backoff.Reset()
			continue
		}
		if w.pending.Swap(false) {
			w.drainWake()
			continue
		}

		backoff.Advance()
		sleep := backoff.Current()
		w.metrics.RecordIdleSleep(sleep)

		timer := w.clock.NewTimer(sleep)
		select {
		case <-ctx.Done():
		case <-w.wakeCh:
			log.Debug().Msg("outbox worker woken by notification")
		case <-timer.Chan():
		}
		timer.Stop()
	}
}

// RunOnce drains until a claim comes back empty or the iteration cap is hit,
// and returns how many entries were processed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	if err := w.store.EnsureNotifyTrigger(ctx, w.cfg.NotifyChannel); err != nil {
		log.Error().Err(err).Msg("failed to ensure outbox notify trigger")
	}

	total := 0
	for i := 0; i < w.cfg.OnceIterations; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := w.claimAndProcess(ctx)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			break
		}
	}

	log.Info().Int("processed", total).Msg("outbox drain finished")
	return total, nil
}

func (w *Worker) drainWake() {
	select {
	case <-w.wakeCh:
	default:
	}
}

func (w *Worker) claimAndProcess(ctx context.Context) (int, error) {
	start := w.clock.Now()
	entries, err := w.store.ClaimBatch(ctx, w.cfg.BatchSize, start)
	if err != nil {
		log.Error().Err(err).Msg("failed to claim outbox batch")
		return 0, err
	}
	w.metrics.RecordBatchClaimed(len(entries), w.clock.Since(start))
	if len(entries) == 0 {
		return 0, nil
	}

	log.Debug().Int("count", len(entries)).Msg("claimed outbox batch")
	for _, e := range entries {
		w.processEntry(ctx, e)
	}
	return len(entries), nil
}

// processEntry never returns an error: every outcome is written back to the
// entry's status.
func (w *Worker) processEntry(ctx context.Context, e Entry) {
	logger := log.With().
		Str("outbox_id", e.ID.String()).
		Str("type", string(e.Type)).
		Int("attempts", e.Attempts).
		Logger()

	start := w.clock.Now()
	procErr := w.handler.Process(ctx, e)
	now := w.clock.Now()

	// Status writes must land even if shutdown cancelled the handler.
	writeCtx := context.WithoutCancel(ctx)

	if procErr == nil {
		if err := w.store.MarkDone(writeCtx, e.ID, now); err != nil {
			logger.Error().Err(err).Msg("failed to mark outbox entry done")
			return
		}
		w.processed.Add(1)
		w.lastProcessed.Store(now.UnixNano())
		w.metrics.RecordEntryProcessed(e.Type, OutcomeDone, now.Sub(start))
		logger.Info().Msg("outbox entry processed")
		publishConfirmationSent(writeCtx, w.publisher, e, now)
		return
	}

	if IsTerminal(procErr) || e.Attempts >= w.cfg.MaxAttempts {
		if err := w.store.MarkFailed(writeCtx, e.ID, now, procErr.Error()); err != nil {
			logger.Error().Err(err).Msg("failed to mark outbox entry failed")
			return
		}
		w.metrics.RecordEntryProcessed(e.Type, OutcomeFailed, now.Sub(start))
		logger.Error().Err(procErr).Msg("outbox entry moved to FAILED")
		if w.audit != nil {
			w.audit.RecordAsync(writeCtx, audit.OutboxFailed, audit.Details{
				"outboxId": e.ID.String(),
				"type":     string(e.Type),
				"attempts": e.Attempts,
				"error":    procErr.Error(),
			})
		}
		return
	}

	next := now.Add(RetryDelay(e.Attempts))
	if err := w.store.ScheduleRetry(writeCtx, e.ID, next, procErr.Error()); err != nil {
		logger.Error().Err(err).Msg("failed to schedule outbox retry")
		return
	}
	w.metrics.RecordEntryProcessed(e.Type, OutcomeRetry, now.Sub(start))
	logger.Warn().Err(procErr).Time("next_retry_at", next).Msg("outbox entry scheduled for retry")
}

func publishConfirmationSent(ctx context.Context, publisher events.Publisher, e Entry, now time.Time) {
	if publisher == nil || e.Type != TypeSendConfirmation {
		return
	}
	msg, err := Decode(e.Type, e.Payload)
	if err != nil {
		return
	}
	m := msg.(SendConfirmation)

	event, err := events.New(e.ID, events.TypeConfirmationSent, e.AggregateID, now, events.ConfirmationSent{
		OutboxID:         e.ID.String(),
		UserID:           m.UserID,
		RegistrationCode: m.RegistrationCode,
		Email:            m.Email,
	})
	if err != nil {
		log.Error().Err(err).Str("outbox_id", e.ID.String()).Msg("failed to build confirmation event")
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		log.Error().Err(err).Str("outbox_id", e.ID.String()).Msg("failed to publish confirmation event")
	}
}
