package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/srkrcodingclub/iconcoderz/go/internal/db"
	"github.com/srkrcodingclub/iconcoderz/go/internal/sqlutil"
)

// Store is what the worker and admin app need from persistence.
type Store interface {
	ClaimBatch(ctx context.Context, limit int, now time.Time) ([]Entry, error)
	MarkDone(ctx context.Context, id uuid.UUID, now time.Time) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, nextRetryAt time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id uuid.UUID, now time.Time, lastErr string) error
	Release(ctx context.Context, id uuid.UUID, lastErr string) error
	Begin(ctx context.Context, id uuid.UUID) (Entry, error)
	Get(ctx context.Context, id uuid.UUID) (Entry, error)
	List(ctx context.Context, status *Status) ([]Entry, error)
	Delete(ctx context.Context, id uuid.UUID) error
	CountByStatus(ctx context.Context) (map[Status]int64, error)
	EnsureNotifyTrigger(ctx context.Context, channel string) error
}

type Repository struct {
	queries *db.Queries
}

func NewRepository(queries *db.Queries) *Repository {
	return &Repository{
		queries: queries,
	}
}

// Create appends an entry. Bind the repository to a transaction's queries to
// enqueue atomically with the primary write.
func (r *Repository) Create(ctx context.Context, aggregateType, aggregateID string, msg Message, now time.Time) (Entry, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal %s payload: %w", msg.Type(), err)
	}

	row, err := r.queries.InsertOutbox(ctx, db.InsertOutboxParams{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          string(msg.Type()),
		Payload:       payload,
		CreatedAt:     now,
	})
	if err != nil {
		return Entry{}, fmt.Errorf("failed to insert outbox entry: %w", err)
	}
	return entryFromDB(row), nil
}

// ClaimBatch flips up to limit due PENDING rows to PROCESSING in one statement
// and returns them oldest first.
func (r *Repository) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]Entry, error) {
	rows, err := r.queries.ClaimOutboxBatch(ctx, db.ClaimOutboxBatchParams{
		Limit: int32(limit),
		Now:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox batch: %w", err)
	}

	entries := make([]Entry, len(rows))
	for i, row := range rows {
		entries[i] = entryFromDB(row)
	}
	// UPDATE ... RETURNING does not preserve the CTE order.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

func (r *Repository) MarkDone(ctx context.Context, id uuid.UUID, now time.Time) error {
	err := r.queries.MarkOutboxDone(ctx, db.MarkOutboxDoneParams{
		ID:          id,
		ProcessedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry done: %w", err)
	}
	return nil
}

func (r *Repository) ScheduleRetry(ctx context.Context, id uuid.UUID, nextRetryAt time.Time, lastErr string) error {
	err := r.queries.ScheduleOutboxRetry(ctx, db.ScheduleOutboxRetryParams{
		ID:          id,
		NextRetryAt: nextRetryAt,
		LastError:   lastErr,
	})
	if err != nil {
		return fmt.Errorf("failed to schedule outbox retry: %w", err)
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, now time.Time, lastErr string) error {
	err := r.queries.MarkOutboxFailed(ctx, db.MarkOutboxFailedParams{
		ID:          id,
		ProcessedAt: now,
		LastError:   lastErr,
	})
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry failed: %w", err)
	}
	return nil
}

func (r *Repository) Release(ctx context.Context, id uuid.UUID, lastErr string) error {
	err := r.queries.ReleaseOutbox(ctx, db.ReleaseOutboxParams{
		ID:        id,
		LastError: lastErr,
	})
	if err != nil {
		return fmt.Errorf("failed to release outbox entry: %w", err)
	}
	return nil
}

// Begin moves a non-DONE entry to PROCESSING for a manual replay.
func (r *Repository) Begin(ctx context.Context, id uuid.UUID) (Entry, error) {
	row, err := r.queries.BeginOutboxProcessing(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrAlreadyProcessed
		}
		return Entry{}, fmt.Errorf("failed to begin outbox processing: %w", err)
	}
	return entryFromDB(row), nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	row, err := r.queries.GetOutbox(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("failed to fetch outbox entry: %w", err)
	}
	return entryFromDB(row), nil
}

func (r *Repository) List(ctx context.Context, status *Status) ([]Entry, error) {
	var filter sql.NullString
	if status != nil {
		filter = sql.NullString{String: string(*status), Valid: true}
	}
	rows, err := r.queries.ListOutbox(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox entries: %w", err)
	}

	entries := make([]Entry, len(rows))
	for i, row := range rows {
		entries[i] = entryFromDB(row)
	}
	return entries, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := r.queries.DeleteOutbox(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete outbox entry: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := r.queries.CountOutboxByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count outbox entries: %w", err)
	}
	counts := make(map[Status]int64, len(rows))
	for _, row := range rows {
		counts[Status(row.Status)] = row.Count
	}
	return counts, nil
}

func (r *Repository) EnsureNotifyTrigger(ctx context.Context, channel string) error {
	if err := r.queries.EnsureOutboxNotifyTrigger(ctx, channel); err != nil {
		return fmt.Errorf("failed to ensure notify trigger: %w", err)
	}
	return nil
}

func entryFromDB(row db.Outbox) Entry {
	return Entry{
		ID:            row.ID,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Type:          Type(row.Type),
		Payload:       row.Payload,
		Status:        Status(row.Status),
		Attempts:      int(row.Attempts),
		NextRetryAt:   sqlutil.FromSqlTime(row.NextRetryAt),
		LastError:     sqlutil.FromSqlStringPtr(row.LastError),
		CreatedAt:     row.CreatedAt,
		ProcessedAt:   sqlutil.FromSqlTime(row.ProcessedAt),
	}
}
