package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srkrcodingclub/iconcoderz/go/internal/db"
)

type fakeStore struct {
	mu    sync.Mutex
	rows  []db.InsertAuditEventParams
	err   error
	added chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{added: make(chan struct{}, 8)}
}

func (s *fakeStore) InsertAuditEvent(_ context.Context, arg db.InsertAuditEventParams) error {
	s.mu.Lock()
	s.rows = append(s.rows, arg)
	s.mu.Unlock()
	s.added <- struct{}{}
	return s.err
}

func TestRecordPersistsDetails(t *testing.T) {
	store := newFakeStore()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	r := NewRecorder(store, clock)

	r.Record(context.Background(), RegistrationSuccess, Details{"registrationCode": "IC2K26-AB12"})

	require.Len(t, store.rows, 1)
	row := store.rows[0]
	assert.Equal(t, "REGISTRATION_SUCCESS", row.Event)
	assert.Equal(t, clock.Now(), row.CreatedAt)
	require.True(t, row.Details.Valid)

	var details map[string]string
	require.NoError(t, json.Unmarshal(row.Details.RawMessage, &details))
	assert.Equal(t, "IC2K26-AB12", details["registrationCode"])
}

func TestRecordSwallowsStoreErrors(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("db down")
	r := NewRecorder(store, clockwork.NewFakeClock())

	assert.NotPanics(t, func() {
		r.Record(context.Background(), EmailFailed, nil)
	})
	require.Len(t, store.rows, 1)
	assert.False(t, store.rows[0].Details.Valid)
}

func TestRecordAsyncSurvivesCancelledContext(t *testing.T) {
	store := newFakeStore()
	r := NewRecorder(store, clockwork.NewFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.RecordAsync(ctx, OutboxFailed, Details{"outboxId": "x"})

	select {
	case <-store.added:
	case <-time.After(2 * time.Second):
		t.Fatal("audit event was not recorded")
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Record(context.Background(), RegistrationStarted, nil)
	})
}

type gatedStore struct {
	*fakeStore
	release chan struct{}
}

func (s *gatedStore) InsertAuditEvent(ctx context.Context, arg db.InsertAuditEventParams) error {
	<-s.release
	return s.fakeStore.InsertAuditEvent(ctx, arg)
}

func TestWaitBlocksUntilAsyncRecordsFinish(t *testing.T) {
	store := &gatedStore{fakeStore: newFakeStore(), release: make(chan struct{})}
	r := NewRecorder(store, clockwork.NewFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 3; i++ {
		r.RecordAsync(ctx, OutboxFailed, Details{"attempt": i})
	}
	cancel()

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned while inserts were still blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after inserts finished")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.rows, 3)
}

func TestWaitWithoutPendingRecordsReturns(t *testing.T) {
	var nilRecorder *Recorder
	assert.NotPanics(t, nilRecorder.Wait)
	NewRecorder(newFakeStore(), clockwork.NewFakeClock()).Wait()
}
