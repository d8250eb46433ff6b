package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusDone       Status = "DONE"
	StatusFailed     Status = "FAILED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Type discriminates which side effect an entry requests.
type Type string

const (
	TypeSendConfirmation Type = "send_confirmation"
)

const AggregateUser = "user"

var (
	ErrNotFound         = errors.New("Outbox entry not found")
	ErrAlreadyProcessed = errors.New("Already processed")
	ErrInvalidID        = errors.New("Invalid outbox id")
	ErrUnknownType      = errors.New("Unknown outbox type")
	ErrMalformedPayload = errors.New("malformed outbox payload")
)

// Entry is a single outbox row.
type Entry struct {
	ID            uuid.UUID       `json:"id"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	Type          Type            `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	NextRetryAt   *time.Time      `json:"nextRetryAt,omitempty"`
	LastError     *string         `json:"lastError,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	ProcessedAt   *time.Time      `json:"processedAt,omitempty"`
}

// ConfirmationPayload is the registration snapshot captured at enqueue time.
type ConfirmationPayload struct {
	Action             string  `json:"action"`
	UserID             string  `json:"userId"`
	Email              string  `json:"email"`
	FullName           string  `json:"fullName"`
	RegistrationCode   string  `json:"registrationCode"`
	Phone              string  `json:"phone,omitempty"`
	RegistrationNumber string  `json:"registrationNumber,omitempty"`
	Branch             string  `json:"branch,omitempty"`
	YearOfStudy        string  `json:"yearOfStudy,omitempty"`
	CodechefHandle     *string `json:"codechefHandle,omitempty"`
	LeetcodeHandle     *string `json:"leetcodeHandle,omitempty"`
	CodeforcesHandle   *string `json:"codeforcesHandle,omitempty"`
}

// Message is the decoded form of an entry. Exactly one concrete type exists
// per Type constant.
type Message interface {
	Type() Type
}

type SendConfirmation struct {
	ConfirmationPayload
}

func (SendConfirmation) Type() Type { return TypeSendConfirmation }

// NewSendConfirmation builds the message enqueued alongside a registration.
func NewSendConfirmation(p ConfirmationPayload) SendConfirmation {
	p.Action = string(TypeSendConfirmation)
	return SendConfirmation{ConfirmationPayload: p}
}

// Decode turns a raw entry into its typed message. Both returned errors are
// terminal: retrying the same bytes cannot succeed.
func Decode(t Type, payload json.RawMessage) (Message, error) {
	switch t {
	case TypeSendConfirmation:
		var p ConfirmationPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if p.Email == "" || p.RegistrationCode == "" {
			return nil, fmt.Errorf("%w: email and registrationCode are required", ErrMalformedPayload)
		}
		return SendConfirmation{ConfirmationPayload: p}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
}

// IsTerminal reports whether a processing error should skip the retry path.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrUnknownType) || errors.Is(err, ErrMalformedPayload)
}

// ReplayResult is the outcome of an admin bulk operation.
type ReplayResult struct {
	Success []uuid.UUID  `json:"success"`
	Failed  []FailedItem `json:"failed"`
}

type DeleteResult struct {
	Deleted []uuid.UUID  `json:"deleted"`
	Failed  []FailedItem `json:"failed"`
}

type FailedItem struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}
