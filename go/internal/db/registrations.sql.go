package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const registrationColumns = `id, registration_code, full_name, registration_number, email, phone, college_name, year_of_study, branch, gender, is_coding_club_affiliate, affiliate_id, codechef_handle, leetcode_handle, codeforces_handle, transaction_id, screenshot_url, payment_status, attended, attended_at, attended_by, check_in_count, created_at, updated_at`

func scanRegistration(row rowScanner) (Registration, error) {
	var i Registration
	err := row.Scan(
		&i.ID,
		&i.RegistrationCode,
		&i.FullName,
		&i.RegistrationNumber,
		&i.Email,
		&i.Phone,
		&i.CollegeName,
		&i.YearOfStudy,
		&i.Branch,
		&i.Gender,
		&i.IsCodingClubAffiliate,
		&i.AffiliateID,
		&i.CodechefHandle,
		&i.LeetcodeHandle,
		&i.CodeforcesHandle,
		&i.TransactionID,
		&i.ScreenshotUrl,
		&i.PaymentStatus,
		&i.Attended,
		&i.AttendedAt,
		&i.AttendedBy,
		&i.CheckInCount,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createRegistration = `-- name: CreateRegistration :one
INSERT INTO registrations (
    id, registration_code, full_name, registration_number, email, phone,
    college_name, year_of_study, branch, gender, is_coding_club_affiliate,
    affiliate_id, codechef_handle, leetcode_handle, codeforces_handle,
    transaction_id, screenshot_url, payment_status, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 'PENDING', $18, $18
)
RETURNING ` + registrationColumns

type CreateRegistrationParams struct {
	ID                    uuid.UUID      `json:"id"`
	RegistrationCode      string         `json:"registration_code"`
	FullName              string         `json:"full_name"`
	RegistrationNumber    string         `json:"registration_number"`
	Email                 string         `json:"email"`
	Phone                 string         `json:"phone"`
	CollegeName           string         `json:"college_name"`
	YearOfStudy           string         `json:"year_of_study"`
	Branch                string         `json:"branch"`
	Gender                string         `json:"gender"`
	IsCodingClubAffiliate bool           `json:"is_coding_club_affiliate"`
	AffiliateID           sql.NullString `json:"affiliate_id"`
	CodechefHandle        sql.NullString `json:"codechef_handle"`
	LeetcodeHandle        sql.NullString `json:"leetcode_handle"`
	CodeforcesHandle      sql.NullString `json:"codeforces_handle"`
	TransactionID         string         `json:"transaction_id"`
	ScreenshotUrl         string         `json:"screenshot_url"`
	CreatedAt             time.Time      `json:"created_at"`
}

func (q *Queries) CreateRegistration(ctx context.Context, arg CreateRegistrationParams) (Registration, error) {
	row := q.db.QueryRowContext(ctx, createRegistration,
		arg.ID,
		arg.RegistrationCode,
		arg.FullName,
		arg.RegistrationNumber,
		arg.Email,
		arg.Phone,
		arg.CollegeName,
		arg.YearOfStudy,
		arg.Branch,
		arg.Gender,
		arg.IsCodingClubAffiliate,
		arg.AffiliateID,
		arg.CodechefHandle,
		arg.LeetcodeHandle,
		arg.CodeforcesHandle,
		arg.TransactionID,
		arg.ScreenshotUrl,
		arg.CreatedAt,
	)
	return scanRegistration(row)
}

const findRegistrationConflicts = `-- name: FindRegistrationConflicts :one
SELECT
    COALESCE(bool_or(email = $1), FALSE)               AS email_taken,
    COALESCE(bool_or(registration_number = $2), FALSE) AS registration_number_taken,
    COALESCE(bool_or(phone = $3), FALSE)               AS phone_taken,
    COALESCE(bool_or(transaction_id = $4), FALSE)      AS transaction_id_taken
FROM registrations
WHERE email = $1 OR registration_number = $2 OR phone = $3 OR transaction_id = $4`

type FindRegistrationConflictsParams struct {
	Email              string `json:"email"`
	RegistrationNumber string `json:"registration_number"`
	Phone              string `json:"phone"`
	TransactionID      string `json:"transaction_id"`
}

type FindRegistrationConflictsRow struct {
	EmailTaken              bool `json:"email_taken"`
	RegistrationNumberTaken bool `json:"registration_number_taken"`
	PhoneTaken              bool `json:"phone_taken"`
	TransactionIDTaken      bool `json:"transaction_id_taken"`
}

func (q *Queries) FindRegistrationConflicts(ctx context.Context, arg FindRegistrationConflictsParams) (FindRegistrationConflictsRow, error) {
	row := q.db.QueryRowContext(ctx, findRegistrationConflicts,
		arg.Email,
		arg.RegistrationNumber,
		arg.Phone,
		arg.TransactionID,
	)
	var i FindRegistrationConflictsRow
	err := row.Scan(
		&i.EmailTaken,
		&i.RegistrationNumberTaken,
		&i.PhoneTaken,
		&i.TransactionIDTaken,
	)
	return i, err
}

const getRegistration = `-- name: GetRegistration :one
SELECT ` + registrationColumns + ` FROM registrations
WHERE id = $1`

func (q *Queries) GetRegistration(ctx context.Context, id uuid.UUID) (Registration, error) {
	row := q.db.QueryRowContext(ctx, getRegistration, id)
	return scanRegistration(row)
}

const getRegistrationByCodeAndID = `-- name: GetRegistrationByCodeAndID :one
SELECT ` + registrationColumns + ` FROM registrations
WHERE registration_code = $1 AND id = $2`

type GetRegistrationByCodeAndIDParams struct {
	RegistrationCode string    `json:"registration_code"`
	ID               uuid.UUID `json:"id"`
}

func (q *Queries) GetRegistrationByCodeAndID(ctx context.Context, arg GetRegistrationByCodeAndIDParams) (Registration, error) {
	row := q.db.QueryRowContext(ctx, getRegistrationByCodeAndID, arg.RegistrationCode, arg.ID)
	return scanRegistration(row)
}

const findRegistrationForCheckIn = `-- name: FindRegistrationForCheckIn :one
SELECT ` + registrationColumns + ` FROM registrations
WHERE ($1::text IS NOT NULL AND registration_code = $1::text)
   OR ($2::text IS NOT NULL AND email = $2::text)
   OR ($3::text IS NOT NULL AND phone = $3::text)
ORDER BY created_at ASC
LIMIT 1`

type FindRegistrationForCheckInParams struct {
	RegistrationCode sql.NullString `json:"registration_code"`
	Email            sql.NullString `json:"email"`
	Phone            sql.NullString `json:"phone"`
}

func (q *Queries) FindRegistrationForCheckIn(ctx context.Context, arg FindRegistrationForCheckInParams) (Registration, error) {
	row := q.db.QueryRowContext(ctx, findRegistrationForCheckIn, arg.RegistrationCode, arg.Email, arg.Phone)
	return scanRegistration(row)
}

const updatePaymentStatus = `-- name: UpdatePaymentStatus :one
UPDATE registrations
SET payment_status = $2, updated_at = $3
WHERE id = $1
RETURNING ` + registrationColumns

type UpdatePaymentStatusParams struct {
	ID            uuid.UUID `json:"id"`
	PaymentStatus string    `json:"payment_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (q *Queries) UpdatePaymentStatus(ctx context.Context, arg UpdatePaymentStatusParams) (Registration, error) {
	row := q.db.QueryRowContext(ctx, updatePaymentStatus, arg.ID, arg.PaymentStatus, arg.UpdatedAt)
	return scanRegistration(row)
}

// Only flips rows that have not attended yet; sql.ErrNoRows means another
// scanner got there first.
const markAttended = `-- name: MarkAttended :one
UPDATE registrations
SET attended = TRUE, attended_at = $2, attended_by = $3, check_in_count = check_in_count + 1, updated_at = $2
WHERE id = $1 AND attended = FALSE
RETURNING ` + registrationColumns

type MarkAttendedParams struct {
	ID         uuid.UUID `json:"id"`
	AttendedAt time.Time `json:"attended_at"`
	AttendedBy string    `json:"attended_by"`
}

func (q *Queries) MarkAttended(ctx context.Context, arg MarkAttendedParams) (Registration, error) {
	row := q.db.QueryRowContext(ctx, markAttended, arg.ID, arg.AttendedAt, arg.AttendedBy)
	return scanRegistration(row)
}

const attendanceCounts = `-- name: AttendanceCounts :one
SELECT
    COUNT(*)                                          AS total,
    COUNT(*) FILTER (WHERE payment_status = 'VERIFIED') AS verified,
    COUNT(*) FILTER (WHERE attended)                    AS attended
FROM registrations`

type AttendanceCountsRow struct {
	Total    int64 `json:"total"`
	Verified int64 `json:"verified"`
	Attended int64 `json:"attended"`
}

func (q *Queries) AttendanceCounts(ctx context.Context) (AttendanceCountsRow, error) {
	row := q.db.QueryRowContext(ctx, attendanceCounts)
	var i AttendanceCountsRow
	err := row.Scan(&i.Total, &i.Verified, &i.Attended)
	return i, err
}

func scanRegistrationRows(rows *sql.Rows) ([]Registration, error) {
	defer rows.Close()
	var items []Registration
	for rows.Next() {
		i, err := scanRegistration(rows)
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

// Search matches a case-insensitive substring of name, email or code, or a
// substring of the phone number.
const registrationSearch = `($%[1]d::text IS NULL
        OR full_name ILIKE '%%' || $%[1]d::text || '%%'
        OR email ILIKE '%%' || $%[1]d::text || '%%'
        OR registration_code ILIKE '%%' || $%[1]d::text || '%%'
        OR phone LIKE '%%' || $%[1]d::text || '%%')`

var listRegistrations = `-- name: ListRegistrations :many
SELECT ` + registrationColumns + ` FROM registrations
WHERE ($1::text IS NULL OR payment_status = $1::text)
  AND ($2::text IS NULL OR branch = $2::text)
  AND ($3::text IS NULL OR year_of_study = $3::text)
  AND ` + fmt.Sprintf(registrationSearch, 4) + `
ORDER BY created_at DESC, id`

type ListRegistrationsParams struct {
	PaymentStatus sql.NullString `json:"payment_status"`
	Branch        sql.NullString `json:"branch"`
	YearOfStudy   sql.NullString `json:"year_of_study"`
	Search        sql.NullString `json:"search"`
}

func (q *Queries) ListRegistrations(ctx context.Context, arg ListRegistrationsParams) ([]Registration, error) {
	rows, err := q.db.QueryContext(ctx, listRegistrations,
		arg.PaymentStatus,
		arg.Branch,
		arg.YearOfStudy,
		arg.Search,
	)
	if err != nil {
		return nil, err
	}
	return scanRegistrationRows(rows)
}

// Attendees are registrations whose payment was verified.
const attendeeFilter = `payment_status = 'VERIFIED'
  AND ($1::boolean IS NULL OR attended = $1::boolean)
  AND `

var listAttendees = `-- name: ListAttendees :many
SELECT ` + registrationColumns + ` FROM registrations
WHERE ` + attendeeFilter + fmt.Sprintf(registrationSearch, 2) + `
ORDER BY
    CASE WHEN $3::text = 'fullName' AND NOT $4::boolean THEN full_name END ASC,
    CASE WHEN $3::text = 'fullName' AND $4::boolean THEN full_name END DESC,
    CASE WHEN $3::text = 'attendedAt' AND NOT $4::boolean THEN attended_at END ASC,
    CASE WHEN $3::text = 'attendedAt' AND $4::boolean THEN attended_at END DESC,
    CASE WHEN $3::text = 'createdAt' AND NOT $4::boolean THEN created_at END ASC,
    created_at DESC,
    id
LIMIT $5 OFFSET $6`

type ListAttendeesParams struct {
	Attended sql.NullBool   `json:"attended"`
	Search   sql.NullString `json:"search"`
	SortBy   string         `json:"sort_by"`
	SortDesc bool           `json:"sort_desc"`
	Limit    int32          `json:"limit"`
	Offset   int32          `json:"offset"`
}

func (q *Queries) ListAttendees(ctx context.Context, arg ListAttendeesParams) ([]Registration, error) {
	rows, err := q.db.QueryContext(ctx, listAttendees,
		arg.Attended,
		arg.Search,
		arg.SortBy,
		arg.SortDesc,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	return scanRegistrationRows(rows)
}

var countAttendees = `-- name: CountAttendees :one
SELECT COUNT(*) FROM registrations
WHERE ` + attendeeFilter + fmt.Sprintf(registrationSearch, 2)

type CountAttendeesParams struct {
	Attended sql.NullBool   `json:"attended"`
	Search   sql.NullString `json:"search"`
}

func (q *Queries) CountAttendees(ctx context.Context, arg CountAttendeesParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countAttendees, arg.Attended, arg.Search)
	var count int64
	err := row.Scan(&count)
	return count, err
}
