package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/srkrcodingclub/iconcoderz/go/internal/audit"
	"github.com/srkrcodingclub/iconcoderz/go/internal/events"
)

// memStore mirrors the SQL semantics of Repository in memory.
type memStore struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]*Entry
	claimErr error
	triggers []string
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[uuid.UUID]*Entry)}
}

func (s *memStore) add(t *testing.T, typ Type, payload any, createdAt time.Time) uuid.UUID {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	id := uuid.New()
	s.mu.Lock()
	s.entries[id] = &Entry{
		ID:            id,
		AggregateType: AggregateUser,
		AggregateID:   "u1",
		Type:          typ,
		Payload:       data,
		Status:        StatusPending,
		CreatedAt:     createdAt,
	}
	s.mu.Unlock()
	return id
}

func (s *memStore) get(id uuid.UUID) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.entries[id]
}

func (s *memStore) set(id uuid.UUID, fn func(e *Entry)) {
	s.mu.Lock()
	fn(s.entries[id])
	s.mu.Unlock()
}

func (s *memStore) ClaimBatch(_ context.Context, limit int, now time.Time) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}

	var due []*Entry
	for _, e := range s.entries {
		if e.Status == StatusPending && (e.NextRetryAt == nil || !e.NextRetryAt.After(now)) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]Entry, len(due))
	for i, e := range due {
		e.Status = StatusProcessing
		e.Attempts++
		out[i] = *e
	}
	return out, nil
}

func (s *memStore) MarkDone(_ context.Context, id uuid.UUID, now time.Time) error {
	s.set(id, func(e *Entry) {
		e.Status = StatusDone
		e.ProcessedAt = &now
		e.LastError = nil
	})
	return nil
}

func (s *memStore) ScheduleRetry(_ context.Context, id uuid.UUID, next time.Time, lastErr string) error {
	s.set(id, func(e *Entry) {
		e.Status = StatusPending
		e.NextRetryAt = &next
		e.LastError = &lastErr
	})
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id uuid.UUID, now time.Time, lastErr string) error {
	s.set(id, func(e *Entry) {
		e.Status = StatusFailed
		e.ProcessedAt = &now
		e.LastError = &lastErr
	})
	return nil
}

func (s *memStore) Release(_ context.Context, id uuid.UUID, lastErr string) error {
	s.set(id, func(e *Entry) {
		e.Status = StatusPending
		e.LastError = &lastErr
	})
	return nil
}

func (s *memStore) Begin(_ context.Context, id uuid.UUID) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.Status == StatusDone {
		return Entry{}, ErrAlreadyProcessed
	}
	e.Status = StatusProcessing
	e.Attempts++
	return *e, nil
}

func (s *memStore) Get(_ context.Context, id uuid.UUID) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

func (s *memStore) List(_ context.Context, status *Status) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if status == nil || e.Status == *status {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *memStore) CountByStatus(context.Context) (map[Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[Status]int64{}
	for _, e := range s.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func (s *memStore) EnsureNotifyTrigger(_ context.Context, channel string) error {
	s.mu.Lock()
	s.triggers = append(s.triggers, channel)
	s.mu.Unlock()
	return nil
}

// scriptedHandler fails the first failures[id] calls for an entry.
type scriptedHandler struct {
	mu       sync.Mutex
	calls    []Entry
	failures map[uuid.UUID]int
	always   error
}

func newScriptedHandler() *scriptedHandler {
	return &scriptedHandler{failures: make(map[uuid.UUID]int)}
}

func (h *scriptedHandler) Process(_ context.Context, e Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, e)
	if _, err := Decode(e.Type, e.Payload); err != nil {
		return err
	}
	if h.always != nil {
		return h.always
	}
	if h.failures[e.ID] > 0 {
		h.failures[e.ID]--
		return errors.New("smtp: connection refused")
	}
	return nil
}

func (h *scriptedHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAuditor) RecordAsync(_ context.Context, event audit.Event, _ audit.Details) {
	a.mu.Lock()
	a.events = append(a.events, event)
	a.mu.Unlock()
}

func confirmationPayload() ConfirmationPayload {
	return ConfirmationPayload{
		Action:           string(TypeSendConfirmation),
		RegistrationCode: "IC2K26-AB12",
		UserID:           "u1",
		Email:            "a@b.com",
		FullName:         "A B",
	}
}
