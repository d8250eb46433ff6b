//go:build integration

package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srkrcodingclub/iconcoderz/go/internal/db"
	"github.com/srkrcodingclub/iconcoderz/go/internal/dbtest"
)

func TestIntegration_ClaimIsExclusive(t *testing.T) {
	conn, _ := dbtest.Open(t)
	repo := NewRepository(db.New(conn))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	const total = 40
	for i := 0; i < total; i++ {
		p := confirmationPayload()
		_, err := repo.Create(ctx, AggregateUser, uuid.NewString(), NewSendConfirmation(p), now.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = map[uuid.UUID]int{}
		wg   sync.WaitGroup
	)
	for c := 0; c < 8; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := repo.ClaimBatch(ctx, 5, now.Add(time.Second))
				if !assert.NoError(t, err) || len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, e := range batch {
					seen[e.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "entry %s claimed more than once", id)
	}

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, total, counts[StatusProcessing])
}

func TestIntegration_ClaimOrderAndRetryWindow(t *testing.T) {
	conn, _ := dbtest.Open(t)
	repo := NewRepository(db.New(conn))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	second, err := repo.Create(ctx, AggregateUser, "u2", NewSendConfirmation(confirmationPayload()), now.Add(time.Second))
	require.NoError(t, err)
	first, err := repo.Create(ctx, AggregateUser, "u1", NewSendConfirmation(confirmationPayload()), now)
	require.NoError(t, err)

	batch, err := repo.ClaimBatch(ctx, 5, now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, first.ID, batch[0].ID)
	assert.Equal(t, second.ID, batch[1].ID)
	assert.Equal(t, 1, batch[0].Attempts)

	retryAt := now.Add(2 * time.Minute)
	require.NoError(t, repo.ScheduleRetry(ctx, first.ID, retryAt, "smtp down"))

	batch, err = repo.ClaimBatch(ctx, 5, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, batch, "entry is not due before next_retry_at")

	batch, err = repo.ClaimBatch(ctx, 5, retryAt)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, 2, batch[0].Attempts)
	require.NotNil(t, batch[0].LastError)
	assert.Equal(t, "smtp down", *batch[0].LastError)

	require.NoError(t, repo.MarkDone(ctx, first.ID, retryAt))
	done, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, done.Status)
	assert.Nil(t, done.LastError)

	_, err = repo.Begin(ctx, first.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestIntegration_WorkerCapsAttempts(t *testing.T) {
	conn, _ := dbtest.Open(t)
	repo := NewRepository(db.New(conn))
	ctx := context.Background()

	entry, err := repo.Create(ctx, AggregateUser, "u1", NewSendConfirmation(confirmationPayload()), time.Now().UTC())
	require.NoError(t, err)

	handler := newScriptedHandler()
	handler.always = assert.AnError
	cfg := DefaultConfig()
	cfg.MaxAttempts = 2
	w := NewWorker(repo, handler, cfg)

	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	got, err := repo.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	require.NotNil(t, got.NextRetryAt)

	// Pull the retry into the past so the next pass can claim it.
	require.NoError(t, repo.ScheduleRetry(ctx, entry.ID, time.Now().UTC().Add(-time.Second), "forced"))
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)

	got, err = repo.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.NotNil(t, got.ProcessedAt)
}

func TestIntegration_NotifyTriggerIsIdempotent(t *testing.T) {
	conn, dsn := dbtest.Open(t)
	repo := NewRepository(db.New(conn))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.EnsureNotifyTrigger(ctx, "outbox_insert"))
		}()
	}
	wg.Wait()

	notifier := &countingNotifier{}
	cfg := DefaultListenerConfig()
	cfg.DatabaseURL = dsn
	l, err := NewListener(notifier, cfg)
	require.NoError(t, err)

	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = l.Start(lctx) }()

	_, err = repo.Create(ctx, AggregateUser, "u1", NewSendConfirmation(confirmationPayload()), time.Now().UTC())
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return notifier.n.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
}
