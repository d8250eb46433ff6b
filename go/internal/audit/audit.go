package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"

	"github.com/srkrcodingclub/iconcoderz/go/internal/db"
)

type Event string

const (
	RegistrationStarted Event = "REGISTRATION_STARTED"
	RegistrationSuccess Event = "REGISTRATION_SUCCESS"
	RegistrationFailed  Event = "REGISTRATION_FAILED"
	EmailSent           Event = "EMAIL_SENT"
	EmailFailed         Event = "EMAIL_FAILED"
	OutboxFailed        Event = "OUTBOX_FAILED"
)

type Details map[string]any

type Store interface {
	InsertAuditEvent(ctx context.Context, arg db.InsertAuditEventParams) error
}

// Recorder persists audit events. Failures are logged and never returned.
type Recorder struct {
	store   Store
	clock   clockwork.Clock
	timeout time.Duration
	pending sync.WaitGroup
}

func NewRecorder(store Store, clock clockwork.Clock) *Recorder {
	return &Recorder{
		store:   store,
		clock:   clock,
		timeout: 5 * time.Second,
	}
}

func (r *Recorder) Record(ctx context.Context, event Event, details Details) {
	log.Info().Str("event", string(event)).Fields(map[string]any(details)).Msg("audit")

	if r == nil || r.store == nil {
		return
	}

	var raw pqtype.NullRawMessage
	if len(details) > 0 {
		data, err := json.Marshal(details)
		if err != nil {
			log.Error().Err(err).Str("event", string(event)).Msg("failed to marshal audit details")
		} else {
			raw = pqtype.NullRawMessage{RawMessage: data, Valid: true}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.store.InsertAuditEvent(ctx, db.InsertAuditEventParams{
		ID:        uuid.New(),
		Event:     string(event),
		Details:   raw,
		CreatedAt: r.clock.Now(),
	})
	if err != nil {
		log.Error().Err(err).Str("event", string(event)).Msg("failed to persist audit event")
	}
}

// RecordAsync records in the background, detached from the caller's
// cancellation.
func (r *Recorder) RecordAsync(ctx context.Context, event Event, details Details) {
	ctx = context.WithoutCancel(ctx)
	if r == nil {
		r.Record(ctx, event, details)
		return
	}
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		r.Record(ctx, event, details)
	}()
}

// Wait blocks until every RecordAsync call made so far has finished.
// Short-lived commands call it before closing the database.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.pending.Wait()
}
