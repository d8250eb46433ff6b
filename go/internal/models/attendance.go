package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceScan is a single check-in recorded by on-site staff
type AttendanceScan struct {
	ID               uuid.UUID `json:"id"`
	RegistrationID   uuid.UUID `json:"registration_id"`
	AdminID          string    `json:"admin_id"`
	IPAddress        *string   `json:"ip_address,omitempty"`
	ScannedAt        time.Time `json:"scanned_at"`
	FullName         string    `json:"full_name"`
	RegistrationCode string    `json:"registration_code"`
	Branch           string    `json:"branch"`
	YearOfStudy      string    `json:"year_of_study"`
}
