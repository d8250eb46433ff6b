package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeConfirmationSent Type = "confirmation_sent"
	TypeCheckedIn        Type = "checked_in"
)

// Event is the envelope every domain event travels in.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        Type            `json:"type"`
	AggregateID string          `json:"aggregateId"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Payload     json.RawMessage `json:"payload"`
}

// New builds an envelope. The id doubles as the broker dedupe key, so callers
// that may publish the same fact twice should pass a stable id.
func New(id uuid.UUID, t Type, aggregateID string, occurredAt time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		ID:          id,
		Type:        t,
		AggregateID: aggregateID,
		OccurredAt:  occurredAt.UTC(),
		Payload:     data,
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type NoOp struct{}

func (NoOp) Publish(context.Context, Event) error { return nil }

// ConfirmationSent is published once a confirmation email has gone out.
type ConfirmationSent struct {
	OutboxID         string `json:"outboxId"`
	UserID           string `json:"userId"`
	RegistrationCode string `json:"registrationCode"`
	Email            string `json:"email"`
}

// CheckedIn is published when a participant is marked attended.
type CheckedIn struct {
	RegistrationID   string    `json:"registrationId"`
	RegistrationCode string    `json:"registrationCode"`
	FullName         string    `json:"fullName"`
	Branch           string    `json:"branch"`
	YearOfStudy      string    `json:"yearOfStudy"`
	AdminID          string    `json:"adminId"`
	Method           string    `json:"method"`
	CheckedInAt      time.Time `json:"checkedInAt"`
}
