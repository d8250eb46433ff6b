package outbox

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/srkrcodingclub/iconcoderz/go/internal/events"
)

// App is the admin surface over the outbox: manual replay, deletion and
// listing. Each id in a bulk call is handled independently.
type App struct {
	store     Store
	handler   Handler
	clock     clockwork.Clock
	publisher events.Publisher
	metrics   MetricsCollector
}

func NewApp(store Store, handler Handler, clock clockwork.Clock, publisher events.Publisher) *App {
	if publisher == nil {
		publisher = events.NoOp{}
	}
	return &App{
		store:     store,
		handler:   handler,
		clock:     clock,
		publisher: publisher,
		metrics:   NoOpMetricsCollector{},
	}
}

// SendOutboxEmails replays the given entries immediately. Success marks an
// entry DONE; failure puts it back to PENDING with no backoff.
func (a *App) SendOutboxEmails(ctx context.Context, ids []string) ReplayResult {
	result := ReplayResult{Success: []uuid.UUID{}, Failed: []FailedItem{}}

	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			result.Failed = append(result.Failed, FailedItem{ID: raw, Error: ErrInvalidID.Error()})
			continue
		}
		if err := a.replay(ctx, id); err != nil {
			result.Failed = append(result.Failed, FailedItem{ID: raw, Error: err.Error()})
			continue
		}
		result.Success = append(result.Success, id)
	}

	log.Info().
		Int("success", len(result.Success)).
		Int("failed", len(result.Failed)).
		Msg("manual outbox replay finished")
	return result
}

func (a *App) replay(ctx context.Context, id uuid.UUID) error {
	logger := log.With().Str("outbox_id", id.String()).Logger()

	existing, err := a.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status == StatusDone {
		return ErrAlreadyProcessed
	}

	entry, err := a.store.Begin(ctx, id)
	if err != nil {
		return err
	}

	start := a.clock.Now()
	procErr := a.handler.Process(ctx, entry)
	now := a.clock.Now()
	writeCtx := context.WithoutCancel(ctx)

	if procErr != nil {
		if IsTerminal(procErr) {
			if err := a.store.MarkFailed(writeCtx, id, now, procErr.Error()); err != nil {
				logger.Error().Err(err).Msg("failed to mark outbox entry failed")
			}
			a.metrics.RecordEntryProcessed(entry.Type, OutcomeFailed, now.Sub(start))
			if errors.Is(procErr, ErrUnknownType) {
				return ErrUnknownType
			}
			return procErr
		}
		if err := a.store.Release(writeCtx, id, procErr.Error()); err != nil {
			logger.Error().Err(err).Msg("failed to release outbox entry")
		}
		a.metrics.RecordEntryProcessed(entry.Type, OutcomeRelease, now.Sub(start))
		logger.Warn().Err(procErr).Msg("manual outbox replay failed")
		return procErr
	}

	if err := a.store.MarkDone(writeCtx, id, now); err != nil {
		return err
	}
	a.metrics.RecordEntryProcessed(entry.Type, OutcomeDone, now.Sub(start))
	logger.Info().Msg("manual outbox replay succeeded")
	publishConfirmationSent(writeCtx, a.publisher, entry, now)
	return nil
}

// DeleteOutbox removes entries outright.
func (a *App) DeleteOutbox(ctx context.Context, ids []string) DeleteResult {
	result := DeleteResult{Deleted: []uuid.UUID{}, Failed: []FailedItem{}}

	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			result.Failed = append(result.Failed, FailedItem{ID: raw, Error: ErrInvalidID.Error()})
			continue
		}
		if err := a.store.Delete(ctx, id); err != nil {
			result.Failed = append(result.Failed, FailedItem{ID: raw, Error: err.Error()})
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}

	log.Info().
		Int("deleted", len(result.Deleted)).
		Int("failed", len(result.Failed)).
		Msg("outbox delete finished")
	return result
}

// ListOutbox returns entries newest first. An unrecognised status filter is
// ignored.
func (a *App) ListOutbox(ctx context.Context, status string) ([]Entry, error) {
	var filter *Status
	if s := Status(status); s.IsValid() {
		filter = &s
	}
	return a.store.List(ctx, filter)
}

// Counts returns how many entries sit in each status.
func (a *App) Counts(ctx context.Context) (map[Status]int64, error) {
	return a.store.CountByStatus(ctx)
}

// WithMetrics attaches a collector to replay outcomes.
func (a *App) WithMetrics(m MetricsCollector) *App {
	a.metrics = m
	return a
}
