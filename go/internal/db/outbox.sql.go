package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const outboxColumns = `id, aggregate_type, aggregate_id, type, payload, status, attempts, next_retry_at, last_error, created_at, processed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOutbox(row rowScanner) (Outbox, error) {
	var i Outbox
	err := row.Scan(
		&i.ID,
		&i.AggregateType,
		&i.AggregateID,
		&i.Type,
		&i.Payload,
		&i.Status,
		&i.Attempts,
		&i.NextRetryAt,
		&i.LastError,
		&i.CreatedAt,
		&i.ProcessedAt,
	)
	return i, err
}

func scanOutboxRows(rows *sql.Rows) ([]Outbox, error) {
	defer rows.Close()
	var items []Outbox
	for rows.Next() {
		i, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertOutbox = `-- name: InsertOutbox :one
INSERT INTO outbox (id, aggregate_type, aggregate_id, type, payload, status, attempts, created_at)
VALUES ($1, $2, $3, $4, $5, 'PENDING', 0, $6)
RETURNING ` + outboxColumns

type InsertOutboxParams struct {
	ID            uuid.UUID       `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (q *Queries) InsertOutbox(ctx context.Context, arg InsertOutboxParams) (Outbox, error) {
	row := q.db.QueryRowContext(ctx, insertOutbox,
		arg.ID,
		arg.AggregateType,
		arg.AggregateID,
		arg.Type,
		arg.Payload,
		arg.CreatedAt,
	)
	return scanOutbox(row)
}

// The CTE locks the due rows with SKIP LOCKED and the UPDATE flips them in the
// same statement, so two claimants can never return the same row.
const claimOutboxBatch = `-- name: ClaimOutboxBatch :many
WITH due AS (
    SELECT id FROM outbox
    WHERE status = 'PENDING'
      AND (next_retry_at IS NULL OR next_retry_at <= $2)
    ORDER BY created_at ASC
    LIMIT $1
    FOR UPDATE SKIP LOCKED
)
UPDATE outbox o
SET status = 'PROCESSING', attempts = o.attempts + 1
FROM due
WHERE o.id = due.id
RETURNING o.id, o.aggregate_type, o.aggregate_id, o.type, o.payload, o.status, o.attempts, o.next_retry_at, o.last_error, o.created_at, o.processed_at`

type ClaimOutboxBatchParams struct {
	Limit int32     `json:"limit"`
	Now   time.Time `json:"now"`
}

func (q *Queries) ClaimOutboxBatch(ctx context.Context, arg ClaimOutboxBatchParams) ([]Outbox, error) {
	rows, err := q.db.QueryContext(ctx, claimOutboxBatch, arg.Limit, arg.Now)
	if err != nil {
		return nil, err
	}
	return scanOutboxRows(rows)
}

const markOutboxDone = `-- name: MarkOutboxDone :exec
UPDATE outbox
SET status = 'DONE', processed_at = $2, last_error = NULL
WHERE id = $1`

type MarkOutboxDoneParams struct {
	ID          uuid.UUID `json:"id"`
	ProcessedAt time.Time `json:"processed_at"`
}

func (q *Queries) MarkOutboxDone(ctx context.Context, arg MarkOutboxDoneParams) error {
	_, err := q.db.ExecContext(ctx, markOutboxDone, arg.ID, arg.ProcessedAt)
	return err
}

const scheduleOutboxRetry = `-- name: ScheduleOutboxRetry :exec
UPDATE outbox
SET status = 'PENDING', next_retry_at = $2, last_error = $3
WHERE id = $1`

type ScheduleOutboxRetryParams struct {
	ID          uuid.UUID `json:"id"`
	NextRetryAt time.Time `json:"next_retry_at"`
	LastError   string    `json:"last_error"`
}

func (q *Queries) ScheduleOutboxRetry(ctx context.Context, arg ScheduleOutboxRetryParams) error {
	_, err := q.db.ExecContext(ctx, scheduleOutboxRetry, arg.ID, arg.NextRetryAt, arg.LastError)
	return err
}

const markOutboxFailed = `-- name: MarkOutboxFailed :exec
UPDATE outbox
SET status = 'FAILED', processed_at = $2, last_error = $3
WHERE id = $1`

type MarkOutboxFailedParams struct {
	ID          uuid.UUID `json:"id"`
	ProcessedAt time.Time `json:"processed_at"`
	LastError   string    `json:"last_error"`
}

func (q *Queries) MarkOutboxFailed(ctx context.Context, arg MarkOutboxFailedParams) error {
	_, err := q.db.ExecContext(ctx, markOutboxFailed, arg.ID, arg.ProcessedAt, arg.LastError)
	return err
}

const releaseOutbox = `-- name: ReleaseOutbox :exec
UPDATE outbox
SET status = 'PENDING', last_error = $2
WHERE id = $1`

type ReleaseOutboxParams struct {
	ID        uuid.UUID `json:"id"`
	LastError string    `json:"last_error"`
}

func (q *Queries) ReleaseOutbox(ctx context.Context, arg ReleaseOutboxParams) error {
	_, err := q.db.ExecContext(ctx, releaseOutbox, arg.ID, arg.LastError)
	return err
}

const beginOutboxProcessing = `-- name: BeginOutboxProcessing :one
UPDATE outbox
SET status = 'PROCESSING', attempts = attempts + 1
WHERE id = $1 AND status <> 'DONE'
RETURNING ` + outboxColumns

func (q *Queries) BeginOutboxProcessing(ctx context.Context, id uuid.UUID) (Outbox, error) {
	row := q.db.QueryRowContext(ctx, beginOutboxProcessing, id)
	return scanOutbox(row)
}

const getOutbox = `-- name: GetOutbox :one
SELECT ` + outboxColumns + ` FROM outbox
WHERE id = $1`

func (q *Queries) GetOutbox(ctx context.Context, id uuid.UUID) (Outbox, error) {
	row := q.db.QueryRowContext(ctx, getOutbox, id)
	return scanOutbox(row)
}

const listOutbox = `-- name: ListOutbox :many
SELECT ` + outboxColumns + ` FROM outbox
WHERE ($1::text IS NULL OR status = $1::text)
ORDER BY created_at DESC`

func (q *Queries) ListOutbox(ctx context.Context, status sql.NullString) ([]Outbox, error) {
	rows, err := q.db.QueryContext(ctx, listOutbox, status)
	if err != nil {
		return nil, err
	}
	return scanOutboxRows(rows)
}

const deleteOutbox = `-- name: DeleteOutbox :execrows
DELETE FROM outbox
WHERE id = $1`

func (q *Queries) DeleteOutbox(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteOutbox, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countOutboxByStatus = `-- name: CountOutboxByStatus :many
SELECT status, COUNT(*) AS count FROM outbox
GROUP BY status`

type CountOutboxByStatusRow struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

func (q *Queries) CountOutboxByStatus(ctx context.Context) ([]CountOutboxByStatusRow, error) {
	rows, err := q.db.QueryContext(ctx, countOutboxByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CountOutboxByStatusRow
	for rows.Next() {
		var i CountOutboxByStatusRow
		if err := rows.Scan(&i.Status, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// The advisory lock serialises concurrent installers; CREATE FUNCTION racing
// against itself otherwise fails with "tuple concurrently updated".
const ensureOutboxNotifyTrigger = `DO $do$
BEGIN
    PERFORM pg_advisory_xact_lock(hashtext('outbox_notify_trigger'));

    IF NOT EXISTS (SELECT 1 FROM pg_proc WHERE proname = 'outbox_notify') THEN
        CREATE FUNCTION outbox_notify() RETURNS trigger LANGUAGE plpgsql AS $fn$
        BEGIN
            PERFORM pg_notify(%s, NEW.id::text);
            RETURN NEW;
        END;
        $fn$;
    END IF;

    IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'outbox_notify_trigger') THEN
        CREATE TRIGGER outbox_notify_trigger
        AFTER INSERT ON outbox
        FOR EACH ROW EXECUTE FUNCTION outbox_notify();
    END IF;
END
$do$;`

// EnsureOutboxNotifyTrigger installs the NOTIFY trigger on the outbox table if
// it is missing. Safe to call from several processes at once.
func (q *Queries) EnsureOutboxNotifyTrigger(ctx context.Context, channel string) error {
	_, err := q.db.ExecContext(ctx, fmt.Sprintf(ensureOutboxNotifyTrigger, pq.QuoteLiteral(channel)))
	return err
}
