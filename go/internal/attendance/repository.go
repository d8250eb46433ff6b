package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/srkrcodingclub/iconcoderz/go/internal/db"
	"github.com/srkrcodingclub/iconcoderz/go/internal/models"
	"github.com/srkrcodingclub/iconcoderz/go/internal/sqlutil"
)

var errNoRegistration = errors.New("registration not found")

type Repository struct {
	conn    *sql.DB
	queries *db.Queries
}

func NewRepository(conn *sql.DB) *Repository {
	return &Repository{
		conn:    conn,
		queries: db.New(conn),
	}
}

func (r *Repository) FindByCodeAndID(ctx context.Context, code string, id uuid.UUID) (*models.Registration, error) {
	row, err := r.queries.GetRegistrationByCodeAndID(ctx, db.GetRegistrationByCodeAndIDParams{
		RegistrationCode: code,
		ID:               id,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNoRegistration
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find registration: %w", err)
	}
	return models.RegistrationFromDB(row), nil
}

// FindForCheckIn matches any of the given keys, oldest registration first.
func (r *Repository) FindForCheckIn(ctx context.Context, in ManualInput) (*models.Registration, error) {
	row, err := r.queries.FindRegistrationForCheckIn(ctx, db.FindRegistrationForCheckInParams{
		RegistrationCode: sqlutil.ToSqlStringNonEmpty(in.RegistrationCode),
		Email:            sqlutil.ToSqlStringNonEmpty(in.Email),
		Phone:            sqlutil.ToSqlStringNonEmpty(in.Phone),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNoRegistration
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find registration: %w", err)
	}
	return models.RegistrationFromDB(row), nil
}

// CheckIn marks the registration attended and logs the scan in one
// transaction. The update is conditional on attended = false, so of two
// concurrent scans exactly one succeeds.
func (r *Repository) CheckIn(ctx context.Context, c CheckIn) (CheckInOutcome, error) {
	var updated db.Registration
	lost := false

	err := sqlutil.Run(ctx, r.conn, r.queries.WithTx, func(q *db.Queries) error {
		row, err := q.MarkAttended(ctx, db.MarkAttendedParams{
			ID:         c.RegistrationID,
			AttendedAt: c.At,
			AttendedBy: c.AdminID,
		})
		if errors.Is(err, sql.ErrNoRows) {
			lost = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to mark attended: %w", err)
		}
		updated = row

		return q.CreateAttendanceLog(ctx, db.CreateAttendanceLogParams{
			ID:             uuid.New(),
			RegistrationID: c.RegistrationID,
			AdminID:        c.AdminID,
			IpAddress:      sqlutil.ToSqlString(c.IPAddress),
			DeviceInfo:     deviceInfo(c.DeviceInfo),
			ScannedAt:      c.At,
		})
	})
	if err != nil {
		return CheckInOutcome{}, err
	}

	if lost {
		row, err := r.queries.GetRegistration(ctx, c.RegistrationID)
		if errors.Is(err, sql.ErrNoRows) {
			return CheckInOutcome{}, errNoRegistration
		}
		if err != nil {
			return CheckInOutcome{}, fmt.Errorf("failed to reload registration: %w", err)
		}
		return CheckInOutcome{Registration: models.RegistrationFromDB(row), AlreadyAttended: true}, nil
	}
	return CheckInOutcome{Registration: models.RegistrationFromDB(updated)}, nil
}

func (r *Repository) Counts(ctx context.Context) (Stats, error) {
	row, err := r.queries.AttendanceCounts(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count registrations: %w", err)
	}
	return Stats{Total: row.Total, Verified: row.Verified, Attended: row.Attended}, nil
}

func (r *Repository) RecentScans(ctx context.Context, limit int) ([]models.AttendanceScan, error) {
	rows, err := r.queries.ListRecentScans(ctx, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list recent scans: %w", err)
	}
	scans := make([]models.AttendanceScan, 0, len(rows))
	for _, row := range rows {
		scans = append(scans, models.AttendanceScanFromDB(row))
	}
	return scans, nil
}

func (r *Repository) List(ctx context.Context, q ListQuery) ([]*models.Registration, int64, error) {
	attended := sqlutil.ToSqlBool(q.attendedFilter())
	search := sqlutil.ToSqlStringNonEmpty(q.Search)

	rows, err := r.queries.ListAttendees(ctx, db.ListAttendeesParams{
		Attended: attended,
		Search:   search,
		SortBy:   q.SortBy,
		SortDesc: q.SortOrder == "desc",
		Limit:    int32(q.Limit),
		Offset:   int32((q.Page - 1) * q.Limit),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list attendees: %w", err)
	}
	total, err := r.queries.CountAttendees(ctx, db.CountAttendeesParams{Attended: attended, Search: search})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count attendees: %w", err)
	}

	regs := make([]*models.Registration, 0, len(rows))
	for _, row := range rows {
		regs = append(regs, models.RegistrationFromDB(row))
	}
	return regs, total, nil
}

// deviceInfo stores JSON as-is and anything else as a JSON string.
func deviceInfo(s *string) pqtype.NullRawMessage {
	if s == nil || *s == "" {
		return pqtype.NullRawMessage{}
	}
	if json.Valid([]byte(*s)) {
		return pqtype.NullRawMessage{RawMessage: json.RawMessage(*s), Valid: true}
	}
	data, _ := json.Marshal(*s)
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}
}
