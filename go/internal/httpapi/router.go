package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/srkrcodingclub/iconcoderz/go/internal/attendance"
	"github.com/srkrcodingclub/iconcoderz/go/internal/models"
	"github.com/srkrcodingclub/iconcoderz/go/internal/outbox"
	"github.com/srkrcodingclub/iconcoderz/go/internal/registration"
)

type RegistrationService interface {
	Register(ctx context.Context, in registration.UserInput) (*models.Registration, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus) (*models.Registration, error)
	List(ctx context.Context, f registration.Filter) ([]*models.Registration, error)
}

type OutboxService interface {
	ListOutbox(ctx context.Context, status string) ([]outbox.Entry, error)
	Counts(ctx context.Context) (map[outbox.Status]int64, error)
	SendOutboxEmails(ctx context.Context, ids []string) outbox.ReplayResult
	DeleteOutbox(ctx context.Context, ids []string) outbox.DeleteResult
}

type AttendanceService interface {
	ScanQR(ctx context.Context, in attendance.ScanInput, adminID string) (attendance.Result, error)
	ManualCheckIn(ctx context.Context, in attendance.ManualInput, adminID string) (attendance.Result, error)
	Stats(ctx context.Context) (attendance.Stats, error)
	RecentScans(ctx context.Context, limit int) ([]models.AttendanceScan, error)
	List(ctx context.Context, q attendance.ListQuery) (attendance.ListPage, error)
}

type LiveFeed interface {
	Serve(w http.ResponseWriter, r *http.Request, adminID string) error
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Services struct {
	Registration RegistrationService
	Outbox       OutboxService
	Attendance   AttendanceService
	Feed         LiveFeed
	DB           Pinger
}

type Handler struct {
	svc        Services
	auth       *Authenticator
	production bool
}

func NewHandler(svc Services, auth *Authenticator, production bool) *Handler {
	return &Handler{svc: svc, auth: auth, production: production}
}

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Post("/registration", h.register)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.auth.requireAdmin)
			r.Get("/users", h.listRegistrations)
			r.Get("/users/{id}", h.getRegistration)
			r.Patch("/users/{id}/payment-status", h.updatePaymentStatus)

			r.Get("/outbox", h.listOutbox)
			r.Get("/outbox/counts", h.outboxCounts)
			r.Post("/outbox/send", h.sendOutboxEmails)
			r.Delete("/outbox", h.deleteOutbox)
		})

		r.Route("/attendance", func(r chi.Router) {
			r.Use(h.auth.requireAdmin)
			r.Post("/scan", h.scanQR)
			r.Post("/manual", h.manualCheckIn)
			r.Get("/stats", h.attendanceStats)
			r.Get("/recent", h.recentScans)
			r.Get("/list", h.attendanceList)
			r.Get("/live", h.liveFeed)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found", nil)
	})
	return r
}
