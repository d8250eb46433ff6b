package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const createAttendanceLog = `-- name: CreateAttendanceLog :exec
INSERT INTO attendance_logs (id, registration_id, admin_id, ip_address, device_info, scanned_at)
VALUES ($1, $2, $3, $4, $5, $6)`

type CreateAttendanceLogParams struct {
	ID             uuid.UUID             `json:"id"`
	RegistrationID uuid.UUID             `json:"registration_id"`
	AdminID        string                `json:"admin_id"`
	IpAddress      sql.NullString        `json:"ip_address"`
	DeviceInfo     pqtype.NullRawMessage `json:"device_info"`
	ScannedAt      time.Time             `json:"scanned_at"`
}

func (q *Queries) CreateAttendanceLog(ctx context.Context, arg CreateAttendanceLogParams) error {
	_, err := q.db.ExecContext(ctx, createAttendanceLog,
		arg.ID,
		arg.RegistrationID,
		arg.AdminID,
		arg.IpAddress,
		arg.DeviceInfo,
		arg.ScannedAt,
	)
	return err
}

const listRecentScans = `-- name: ListRecentScans :many
SELECT l.id, l.registration_id, l.admin_id, l.ip_address, l.device_info, l.scanned_at,
       r.full_name, r.registration_code, r.branch, r.year_of_study
FROM attendance_logs l
JOIN registrations r ON r.id = l.registration_id
ORDER BY l.scanned_at DESC
LIMIT $1`

type ListRecentScansRow struct {
	ID               uuid.UUID             `json:"id"`
	RegistrationID   uuid.UUID             `json:"registration_id"`
	AdminID          string                `json:"admin_id"`
	IpAddress        sql.NullString        `json:"ip_address"`
	DeviceInfo       pqtype.NullRawMessage `json:"device_info"`
	ScannedAt        time.Time             `json:"scanned_at"`
	FullName         string                `json:"full_name"`
	RegistrationCode string                `json:"registration_code"`
	Branch           string                `json:"branch"`
	YearOfStudy      string                `json:"year_of_study"`
}

func (q *Queries) ListRecentScans(ctx context.Context, limit int32) ([]ListRecentScansRow, error) {
	rows, err := q.db.QueryContext(ctx, listRecentScans, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListRecentScansRow
	for rows.Next() {
		var i ListRecentScansRow
		if err := rows.Scan(
			&i.ID,
			&i.RegistrationID,
			&i.AdminID,
			&i.IpAddress,
			&i.DeviceInfo,
			&i.ScannedAt,
			&i.FullName,
			&i.RegistrationCode,
			&i.Branch,
			&i.YearOfStudy,
		); err != nil {
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

const insertAuditEvent = `-- name: InsertAuditEvent :exec
INSERT INTO audit_events (id, event, details, created_at)
VALUES ($1, $2, $3, $4)`

type InsertAuditEventParams struct {
	ID        uuid.UUID             `json:"id"`
	Event     string                `json:"event"`
	Details   pqtype.NullRawMessage `json:"details"`
	CreatedAt time.Time             `json:"created_at"`
}

func (q *Queries) InsertAuditEvent(ctx context.Context, arg InsertAuditEventParams) error {
	_, err := q.db.ExecContext(ctx, insertAuditEvent, arg.ID, arg.Event, arg.Details, arg.CreatedAt)
	return err
}
