package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/srkrcodingclub/iconcoderz/go/internal/db"
	"github.com/srkrcodingclub/iconcoderz/go/internal/models"
	"github.com/srkrcodingclub/iconcoderz/go/internal/outbox"
	"github.com/srkrcodingclub/iconcoderz/go/internal/sqlutil"
)

// NewRegistration is a validated form plus the identifiers assigned to it.
type NewRegistration struct {
	ID               uuid.UUID
	RegistrationCode string
	Input            UserInput
	CreatedAt        time.Time
}

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

// CheckConflicts returns the first uniqueness conflict in priority order:
// email, registration number, phone, transaction id.
func (r *Repository) CheckConflicts(ctx context.Context, in UserInput) error {
	row, err := r.queries.FindRegistrationConflicts(ctx, db.FindRegistrationConflictsParams{
		Email:              in.Email,
		RegistrationNumber: in.RegistrationNumber,
		Phone:              in.Phone,
		TransactionID:      in.TransactionID,
	})
	if err != nil {
		return fmt.Errorf("failed to check registration conflicts: %w", err)
	}

	switch {
	case row.EmailTaken:
		return ErrEmailRegistered
	case row.RegistrationNumberTaken:
		return ErrRegistrationNumberRegistered
	case row.PhoneTaken:
		return ErrPhoneRegistered
	case row.TransactionIDTaken:
		return ErrTransactionIDUsed
	}
	return nil
}

// CreateWithConfirmation inserts the registration and its send_confirmation
// outbox entry in one transaction. Either both rows commit or neither does.
func (r *Repository) CreateWithConfirmation(ctx context.Context, reg NewRegistration) (*models.Registration, error) {
	var created *models.Registration

	err := sqlutil.Run(ctx, r.conn, r.queries.WithTx, func(q *db.Queries) error {
		row, err := q.CreateRegistration(ctx, createParams(reg))
		if err != nil {
			return conflictFromDB(err)
		}
		created = models.RegistrationFromDB(row)

		msg := outbox.NewSendConfirmation(ConfirmationPayload(created))
		if _, err := outbox.NewRepository(q).Create(ctx, outbox.AggregateUser, created.ID.String(), msg, reg.CreatedAt); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	row, err := r.queries.GetRegistration(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return models.RegistrationFromDB(row), nil
}

func (r *Repository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus, now time.Time) (*models.Registration, error) {
	row, err := r.queries.UpdatePaymentStatus(ctx, db.UpdatePaymentStatusParams{
		ID:            id,
		PaymentStatus: string(status),
		UpdatedAt:     now,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}
	return models.RegistrationFromDB(row), nil
}

// List returns registrations matching f, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]*models.Registration, error) {
	rows, err := r.queries.ListRegistrations(ctx, db.ListRegistrationsParams{
		PaymentStatus: sqlutil.ToSqlStringNonEmpty(f.PaymentStatus),
		Branch:        sqlutil.ToSqlStringNonEmpty(f.Branch),
		YearOfStudy:   sqlutil.ToSqlStringNonEmpty(f.YearOfStudy),
		Search:        sqlutil.ToSqlStringNonEmpty(f.Search),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	regs := make([]*models.Registration, 0, len(rows))
	for _, row := range rows {
		regs = append(regs, models.RegistrationFromDB(row))
	}
	return regs, nil
}

func createParams(reg NewRegistration) db.CreateRegistrationParams {
	in := reg.Input
	return db.CreateRegistrationParams{
		ID:                    reg.ID,
		RegistrationCode:      reg.RegistrationCode,
		FullName:              in.FullName,
		RegistrationNumber:    in.RegistrationNumber,
		Email:                 in.Email,
		Phone:                 in.Phone,
		CollegeName:           in.CollegeName,
		YearOfStudy:           in.YearOfStudy,
		Branch:                in.Branch,
		Gender:                in.Gender,
		IsCodingClubAffiliate: in.IsCodingClubAffiliate,
		AffiliateID:           sqlutil.ToSqlString(in.AffiliateID),
		CodechefHandle:        sqlutil.ToSqlString(in.CodechefHandle),
		LeetcodeHandle:        sqlutil.ToSqlString(in.LeetcodeHandle),
		CodeforcesHandle:      sqlutil.ToSqlString(in.CodeforcesHandle),
		TransactionID:         in.TransactionID,
		ScreenshotUrl:         in.ScreenshotURL,
		CreatedAt:             reg.CreatedAt,
	}
}

// ConfirmationPayload snapshots what the confirmation email needs so the
// worker never re-reads the registration.
func ConfirmationPayload(r *models.Registration) outbox.ConfirmationPayload {
	return outbox.ConfirmationPayload{
		UserID:             r.ID.String(),
		Email:              r.Email,
		FullName:           r.FullName,
		RegistrationCode:   r.RegistrationCode,
		Phone:              r.Phone,
		RegistrationNumber: r.RegistrationNumber,
		Branch:             r.Branch,
		YearOfStudy:        r.YearOfStudy,
		CodechefHandle:     r.CodechefHandle,
		LeetcodeHandle:     r.LeetcodeHandle,
		CodeforcesHandle:   r.CodeforcesHandle,
	}
}
