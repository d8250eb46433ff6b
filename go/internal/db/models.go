package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type Outbox struct {
	ID            uuid.UUID       `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	Attempts      int32           `json:"attempts"`
	NextRetryAt   sql.NullTime    `json:"next_retry_at"`
	LastError     sql.NullString  `json:"last_error"`
	CreatedAt     time.Time       `json:"created_at"`
	ProcessedAt   sql.NullTime    `json:"processed_at"`
}

type Registration struct {
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
	PaymentStatus         string         `json:"payment_status"`
	Attended              bool           `json:"attended"`
	AttendedAt            sql.NullTime   `json:"attended_at"`
	AttendedBy            sql.NullString `json:"attended_by"`
	CheckInCount          int32          `json:"check_in_count"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

type AttendanceLog struct {
	ID             uuid.UUID             `json:"id"`
	RegistrationID uuid.UUID             `json:"registration_id"`
	AdminID        string                `json:"admin_id"`
	IpAddress      sql.NullString        `json:"ip_address"`
	DeviceInfo     pqtype.NullRawMessage `json:"device_info"`
	ScannedAt      time.Time             `json:"scanned_at"`
}

type AuditEvent struct {
	ID        uuid.UUID             `json:"id"`
	Event     string                `json:"event"`
	Details   pqtype.NullRawMessage `json:"details"`
	CreatedAt time.Time             `json:"created_at"`
}
