package registration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/srkrcodingclub/iconcoderz/go/internal/audit"
	"github.com/srkrcodingclub/iconcoderz/go/internal/models"
	"github.com/srkrcodingclub/iconcoderz/go/internal/validation"
)

// RegistrationRepository defines what the app layer needs from persistence.
type RegistrationRepository interface {
	CheckConflicts(ctx context.Context, in UserInput) error
	CreateWithConfirmation(ctx context.Context, reg NewRegistration) (*models.Registration, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus, now time.Time) (*models.Registration, error)
	List(ctx context.Context, f Filter) ([]*models.Registration, error)
}

type Auditor interface {
	Record(ctx context.Context, event audit.Event, details audit.Details)
	RecordAsync(ctx context.Context, event audit.Event, details audit.Details)
}

// Invalidator drops cached aggregates derived from registrations.
type Invalidator interface {
	InvalidatePattern(pattern string) (int, error)
}

const attendanceCachePattern = "^attendance:"

type App struct {
	repo     RegistrationRepository
	audit    Auditor
	cache    Invalidator
	clock    clockwork.Clock
	eventTag string
}

func NewApp(repo RegistrationRepository, auditor Auditor, cache Invalidator, clock clockwork.Clock, eventTag string) *App {
	return &App{
		repo:     repo,
		audit:    auditor,
		cache:    cache,
		clock:    clock,
		eventTag: eventTag,
	}
}

// Register stores the participant and enqueues the confirmation email in the
// same transaction. It returns before the email is sent.
func (a *App) Register(ctx context.Context, in UserInput) (*models.Registration, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	a.audit.Record(ctx, audit.RegistrationStarted, audit.Details{
		"email":              in.Email,
		"registrationNumber": in.RegistrationNumber,
		"phone":              in.Phone,
	})

	reg, err := a.register(ctx, in)
	if err != nil {
		log.Error().Err(err).Str("email", in.Email).Msg("registration failed")
		a.audit.Record(ctx, audit.RegistrationFailed, audit.Details{
			"error": err.Error(),
			"input": map[string]any{
				"email":              in.Email,
				"registrationNumber": in.RegistrationNumber,
				"phone":              in.Phone,
			},
		})
		return nil, err
	}

	log.Info().Str("registration_code", reg.RegistrationCode).Msg("registered participant")
	a.audit.RecordAsync(ctx, audit.RegistrationSuccess, audit.Details{
		"registrationCode": reg.RegistrationCode,
		"email":            reg.Email,
	})
	return reg, nil
}

func (a *App) register(ctx context.Context, in UserInput) (*models.Registration, error) {
	if err := a.repo.CheckConflicts(ctx, in); err != nil {
		return nil, err
	}

	reg, err := a.repo.CreateWithConfirmation(ctx, NewRegistration{
		ID:               uuid.New(),
		RegistrationCode: NewCode(a.eventTag),
		Input:            in,
		CreatedAt:        a.clock.Now().UTC(),
	})
	if err != nil {
		if IsConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}
	return reg, nil
}

// NewCode returns the event tag followed by the first group of a random UUID,
// e.g. IC2K26-1A2B3C4D.
func NewCode(eventTag string) string {
	suffix, _, _ := strings.Cut(uuid.NewString(), "-")
	return eventTag + "-" + strings.ToUpper(suffix)
}

// UpdatePaymentStatus records the admin's payment verification decision.
func (a *App) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus) (*models.Registration, error) {
	if !status.IsValid() {
		return nil, ErrInvalidPaymentStatus
	}

	reg, err := a.repo.UpdatePaymentStatus(ctx, id, status, a.clock.Now().UTC())
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if _, err := a.cache.InvalidatePattern(attendanceCachePattern); err != nil {
			log.Error().Err(err).Msg("failed to invalidate attendance cache")
		}
	}

	log.Info().
		Str("registration_code", reg.RegistrationCode).
		Str("payment_status", string(status)).
		Msg("payment status updated")
	return reg, nil
}

func (a *App) Get(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	return a.repo.Get(ctx, id)
}

// List returns the registrations matching f for the admin dashboard.
func (a *App) List(ctx context.Context, f Filter) ([]*models.Registration, error) {
	f.Search = strings.TrimSpace(f.Search)
	if err := validation.Struct(f); err != nil {
		return nil, err
	}
	return a.repo.List(ctx, f)
}
