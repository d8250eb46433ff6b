package attendance

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/srkrcodingclub/iconcoderz/go/internal/models"
)

var (
	ErrWrongEvent           = errors.New("This QR code is not for this event")
	ErrRegistrationNotFound = errors.New("Registration not found. Invalid QR code.")
	ErrUserNotFound         = errors.New("User not found")
	ErrPaymentNotVerified   = errors.New("Payment not verified")
	ErrMissingLookup        = errors.New("At least one of registrationCode, email, or phone is required")
)

const (
	MethodQR     = "qr"
	MethodManual = "manual"
)

type ScanInput struct {
	QRData     string  `json:"qrData" validate:"required"`
	IPAddress  *string `json:"ipAddress,omitempty"`
	DeviceInfo *string `json:"deviceInfo,omitempty"`
}

type ManualInput struct {
	RegistrationCode string `json:"registrationCode,omitempty"`
	Email            string `json:"email,omitempty" validate:"omitempty,email"`
	Phone            string `json:"phone,omitempty"`
}

func (in ManualInput) empty() bool {
	return in.RegistrationCode == "" && in.Email == "" && in.Phone == ""
}

// CheckIn is a single attendance write.
type CheckIn struct {
	RegistrationID uuid.UUID
	AdminID        string
	IPAddress      *string
	DeviceInfo     *string
	At             time.Time
}

// CheckInOutcome carries the registration as it stands after the write. When
// AlreadyAttended is set nothing was changed.
type CheckInOutcome struct {
	Registration    *models.Registration
	AlreadyAttended bool
}

type Attendee struct {
	ID               uuid.UUID  `json:"id"`
	FullName         string     `json:"fullName"`
	RegistrationCode string     `json:"registrationCode"`
	Email            string     `json:"email"`
	Phone            string     `json:"phone,omitempty"`
	Branch           string     `json:"branch,omitempty"`
	YearOfStudy      string     `json:"yearOfStudy,omitempty"`
	AttendedAt       *time.Time `json:"attendedAt,omitempty"`
}

type Result struct {
	Success         bool     `json:"success"`
	AlreadyAttended bool     `json:"alreadyAttended"`
	Message         string   `json:"message"`
	User            Attendee `json:"user"`
}

type Stats struct {
	Total          int64 `json:"total"`
	Verified       int64 `json:"verified"`
	Attended       int64 `json:"attended"`
	Pending        int64 `json:"pending"`
	AttendanceRate int   `json:"attendanceRate"`
}

// ListQuery pages through verified registrations. Attended is "true",
// "false" or "all"; SortBy is createdAt, attendedAt or fullName.
type ListQuery struct {
	Page      int    `json:"page" validate:"gte=1"`
	Limit     int    `json:"limit" validate:"gte=1,lte=100"`
	Search    string `json:"search,omitempty" validate:"max=100"`
	Attended  string `json:"attended" validate:"oneof=true false all"`
	SortBy    string `json:"sortBy" validate:"oneof=createdAt attendedAt fullName"`
	SortOrder string `json:"sortOrder" validate:"oneof=asc desc"`
}

func (q ListQuery) withDefaults() ListQuery {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = defaultListLimit
	}
	if q.Attended == "" {
		q.Attended = "all"
	}
	if q.SortBy == "" {
		q.SortBy = "createdAt"
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
	return q
}

// attendedFilter is nil for "all".
func (q ListQuery) attendedFilter() *bool {
	if q.Attended == "all" {
		return nil
	}
	v := q.Attended == "true"
	return &v
}

type ListEntry struct {
	Attendee
	Attended  bool      `json:"attended"`
	CreatedAt time.Time `json:"createdAt"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

type ListPage struct {
	Data       []ListEntry `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

func attendeeFrom(r *models.Registration) Attendee {
	return Attendee{
		ID:               r.ID,
		FullName:         r.FullName,
		RegistrationCode: r.RegistrationCode,
		Email:            r.Email,
		Phone:            r.Phone,
		Branch:           r.Branch,
		YearOfStudy:      r.YearOfStudy,
		AttendedAt:       r.AttendedAt,
	}
}
