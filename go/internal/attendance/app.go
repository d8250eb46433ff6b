package attendance

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/srkrcodingclub/iconcoderz/go/internal/cache"
	"github.com/srkrcodingclub/iconcoderz/go/internal/events"
	"github.com/srkrcodingclub/iconcoderz/go/internal/models"
	"github.com/srkrcodingclub/iconcoderz/go/internal/qr"
	"github.com/srkrcodingclub/iconcoderz/go/internal/validation"
)

const (
	statsKey          = "attendance:stats"
	cachePattern      = "^attendance:"
	defaultRecentScan = 10
	maxRecentScan     = 100
	defaultListLimit  = 20
)

type AttendanceRepository interface {
	FindByCodeAndID(ctx context.Context, code string, id uuid.UUID) (*models.Registration, error)
	FindForCheckIn(ctx context.Context, in ManualInput) (*models.Registration, error)
	CheckIn(ctx context.Context, c CheckIn) (CheckInOutcome, error)
	Counts(ctx context.Context) (Stats, error)
	RecentScans(ctx context.Context, limit int) ([]models.AttendanceScan, error)
	List(ctx context.Context, q ListQuery) ([]*models.Registration, int64, error)
}

type QRVerifier interface {
	Parse(raw string) (qr.Payload, error)
	EventID() string
}

// Mailer queues the "you're checked in" email. It must not block.
type Mailer interface {
	SendAttendance(ctx context.Context, to, fullName string)
}

type App struct {
	repo      AttendanceRepository
	qr        QRVerifier
	cache     *cache.TTL
	statsTTL  time.Duration
	publisher events.Publisher
	mailer    Mailer
	clock     clockwork.Clock
}

func NewApp(repo AttendanceRepository, verifier QRVerifier, c *cache.TTL, statsTTL time.Duration, publisher events.Publisher, mailer Mailer, clock clockwork.Clock) *App {
	if publisher == nil {
		publisher = events.NoOp{}
	}
	return &App{
		repo:      repo,
		qr:        verifier,
		cache:     c,
		statsTTL:  statsTTL,
		publisher: publisher,
		mailer:    mailer,
		clock:     clock,
	}
}

// ScanQR checks a participant in from the contents of their QR code.
func (a *App) ScanQR(ctx context.Context, in ScanInput, adminID string) (Result, error) {
	if err := validation.Struct(in); err != nil {
		return Result{}, err
	}

	payload, err := a.qr.Parse(in.QRData)
	if err != nil {
		return Result{}, err
	}
	if payload.EventID != a.qr.EventID() {
		return Result{}, ErrWrongEvent
	}

	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return Result{}, ErrRegistrationNotFound
	}
	reg, err := a.repo.FindByCodeAndID(ctx, payload.RegistrationCode, userID)
	if errors.Is(err, errNoRegistration) {
		return Result{}, ErrRegistrationNotFound
	}
	if err != nil {
		return Result{}, err
	}

	return a.checkIn(ctx, reg, CheckIn{
		RegistrationID: reg.ID,
		AdminID:        adminID,
		IPAddress:      in.IPAddress,
		DeviceInfo:     in.DeviceInfo,
	}, MethodQR)
}

// ManualCheckIn looks a participant up by code, email or phone.
func (a *App) ManualCheckIn(ctx context.Context, in ManualInput, adminID string) (Result, error) {
	if in.empty() {
		return Result{}, &validation.Error{Field: "registrationCode", Message: ErrMissingLookup.Error()}
	}
	if err := validation.Struct(in); err != nil {
		return Result{}, err
	}

	reg, err := a.repo.FindForCheckIn(ctx, in)
	if errors.Is(err, errNoRegistration) {
		return Result{}, ErrUserNotFound
	}
	if err != nil {
		return Result{}, err
	}

	return a.checkIn(ctx, reg, CheckIn{
		RegistrationID: reg.ID,
		AdminID:        adminID,
	}, MethodManual)
}

func (a *App) checkIn(ctx context.Context, reg *models.Registration, c CheckIn, method string) (Result, error) {
	if reg.PaymentStatus != models.PaymentVerified {
		return Result{}, ErrPaymentNotVerified
	}
	if reg.Attended {
		return alreadyAttended(reg), nil
	}

	c.At = a.clock.Now().UTC()
	outcome, err := a.repo.CheckIn(ctx, c)
	if err != nil {
		return Result{}, err
	}
	if outcome.AlreadyAttended {
		return alreadyAttended(outcome.Registration), nil
	}

	updated := outcome.Registration
	log.Info().
		Str("registration_code", updated.RegistrationCode).
		Str("admin_id", c.AdminID).
		Str("method", method).
		Msg("participant checked in")

	a.afterCheckIn(ctx, updated, c, method)

	message := "Check-in successful"
	if method == MethodManual {
		message = "Manual check-in successful"
	}
	return Result{Success: true, Message: message, User: attendeeFrom(updated)}, nil
}

// afterCheckIn runs the side effects of a successful check-in. None of them
// can fail the check-in itself.
func (a *App) afterCheckIn(ctx context.Context, reg *models.Registration, c CheckIn, method string) {
	if a.cache != nil {
		if _, err := a.cache.InvalidatePattern(cachePattern); err != nil {
			log.Error().Err(err).Msg("failed to invalidate attendance cache")
		}
	}

	event, err := events.New(uuid.New(), events.TypeCheckedIn, reg.ID.String(), c.At, events.CheckedIn{
		RegistrationID:   reg.ID.String(),
		RegistrationCode: reg.RegistrationCode,
		FullName:         reg.FullName,
		Branch:           reg.Branch,
		YearOfStudy:      reg.YearOfStudy,
		AdminID:          c.AdminID,
		Method:           method,
		CheckedInAt:      c.At,
	})
	if err == nil {
		err = a.publisher.Publish(context.WithoutCancel(ctx), event)
	}
	if err != nil {
		log.Error().Err(err).Str("registration_code", reg.RegistrationCode).Msg("failed to publish checked_in event")
	}

	if a.mailer != nil {
		a.mailer.SendAttendance(ctx, reg.Email, reg.FullName)
	}
}

func alreadyAttended(reg *models.Registration) Result {
	return Result{
		Success:         false,
		AlreadyAttended: true,
		Message:         "Already checked in",
		User: Attendee{
			ID:               reg.ID,
			FullName:         reg.FullName,
			RegistrationCode: reg.RegistrationCode,
			Email:            reg.Email,
			AttendedAt:       reg.AttendedAt,
		},
	}
}

// Stats is cached for statsTTL and invalidated by every check-in and payment
// status change.
func (a *App) Stats(ctx context.Context) (Stats, error) {
	compute := func(ctx context.Context) (Stats, error) {
		s, err := a.repo.Counts(ctx)
		if err != nil {
			return Stats{}, err
		}
		s.Pending = s.Verified - s.Attended
		if s.Verified > 0 {
			s.AttendanceRate = int(math.Round(float64(s.Attended) / float64(s.Verified) * 100))
		}
		return s, nil
	}
	if a.cache == nil {
		return compute(ctx)
	}
	return cache.GetOrCompute(ctx, a.cache, statsKey, a.statsTTL, compute)
}

// RecentScans returns the latest check-ins, newest first.
func (a *App) RecentScans(ctx context.Context, limit int) ([]models.AttendanceScan, error) {
	if limit <= 0 {
		limit = defaultRecentScan
	}
	if limit > maxRecentScan {
		limit = maxRecentScan
	}
	return a.repo.RecentScans(ctx, limit)
}

// List pages through verified registrations for the check-in desk.
func (a *App) List(ctx context.Context, q ListQuery) (ListPage, error) {
	q = q.withDefaults()
	q.Search = strings.TrimSpace(q.Search)
	if err := validation.Struct(q); err != nil {
		return ListPage{}, err
	}

	regs, total, err := a.repo.List(ctx, q)
	if err != nil {
		return ListPage{}, err
	}

	entries := make([]ListEntry, 0, len(regs))
	for _, r := range regs {
		entries = append(entries, ListEntry{Attendee: attendeeFrom(r), Attended: r.Attended, CreatedAt: r.CreatedAt})
	}
	return ListPage{
		Data: entries,
		Pagination: Pagination{
			Page:       q.Page,
			Limit:      q.Limit,
			Total:      total,
			TotalPages: (total + int64(q.Limit) - 1) / int64(q.Limit),
		},
	}, nil
}
