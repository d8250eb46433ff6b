package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the admin verification state of a registration fee.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentVerified PaymentStatus = "VERIFIED"
	PaymentRejected PaymentStatus = "REJECTED"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentVerified, PaymentRejected:
		return true
	default:
		return false
	}
}

// Registration represents a participant registered for the event
type Registration struct {
	ID                    uuid.UUID     `json:"id"`
	RegistrationCode      string        `json:"registration_code"`
	FullName              string        `json:"full_name"`
	RegistrationNumber    string        `json:"registration_number"`
	Email                 string        `json:"email"`
	Phone                 string        `json:"phone"`
	CollegeName           string        `json:"college_name"`
	YearOfStudy           string        `json:"year_of_study"`
	Branch                string        `json:"branch"`
	Gender                string        `json:"gender"`
	IsCodingClubAffiliate bool          `json:"is_coding_club_affiliate"`
	AffiliateID           *string       `json:"affiliate_id,omitempty"`
	CodechefHandle        *string       `json:"codechef_handle,omitempty"`
	LeetcodeHandle        *string       `json:"leetcode_handle,omitempty"`
	CodeforcesHandle      *string       `json:"codeforces_handle,omitempty"`
	TransactionID         string        `json:"transaction_id"`
	ScreenshotURL         string        `json:"screenshot_url"`
	PaymentStatus         PaymentStatus `json:"payment_status"`
	Attended              bool          `json:"attended"`
	AttendedAt            *time.Time    `json:"attended_at,omitempty"`
	AttendedBy            *string       `json:"attended_by,omitempty"`
	CheckInCount          int           `json:"check_in_count"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}
