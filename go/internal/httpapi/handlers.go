package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/srkrcodingclub/iconcoderz/go/internal/attendance"
	"github.com/srkrcodingclub/iconcoderz/go/internal/models"
	"github.com/srkrcodingclub/iconcoderz/go/internal/registration"
)

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := map[string]any{"database": "up", "timestamp": time.Now().UTC()}
	if h.svc.DB != nil {
		if err := h.svc.DB.PingContext(ctx); err != nil {
			status["database"] = "down"
			writeError(w, http.StatusServiceUnavailable, "Service unavailable", status)
			return
		}
	}
	writeSuccess(w, http.StatusOK, "Server is healthy", status)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in registration.UserInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Validation Error", "invalid json body")
		return
	}

	reg, err := h.svc.Registration.Register(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Registration successful", map[string]any{
		"id":               reg.ID,
		"registrationCode": reg.RegistrationCode,
		"paymentStatus":    reg.PaymentStatus,
	})
}

func (h *Handler) getRegistration(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	reg, err := h.svc.Registration.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User fetched successfully", reg)
}

func (h *Handler) listRegistrations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	regs, err := h.svc.Registration.List(r.Context(), registration.Filter{
		PaymentStatus: q.Get("paymentStatus"),
		Branch:        q.Get("branch"),
		YearOfStudy:   q.Get("yearOfStudy"),
		Search:        q.Get("search"),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Users retrieved successfully", regs)
}

type paymentStatusRequest struct {
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
}

func (h *Handler) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	var req paymentStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation Error", "invalid json body")
		return
	}

	reg, err := h.svc.Registration.UpdatePaymentStatus(r.Context(), id, req.PaymentStatus)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Payment status updated successfully", reg)
}

func (h *Handler) listOutbox(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Outbox.ListOutbox(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Outbox entries retrieved successfully", entries)
}

func (h *Handler) outboxCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.Outbox.Counts(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Outbox counts retrieved successfully", counts)
}

type outboxIDsRequest struct {
	OutboxIDs []string `json:"outboxIds"`
}

func decodeOutboxIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req outboxIDsRequest
	if err := decodeJSON(w, r, &req); err != nil || len(req.OutboxIDs) == 0 {
		writeError(w, http.StatusBadRequest, "outboxIds array is required", nil)
		return nil, false
	}
	return req.OutboxIDs, true
}

func (h *Handler) sendOutboxEmails(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeOutboxIDs(w, r)
	if !ok {
		return
	}
	result := h.svc.Outbox.SendOutboxEmails(r.Context(), ids)
	writeSuccess(w, http.StatusOK, "Outbox emails processed", result)
}

func (h *Handler) deleteOutbox(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeOutboxIDs(w, r)
	if !ok {
		return
	}
	result := h.svc.Outbox.DeleteOutbox(r.Context(), ids)
	writeSuccess(w, http.StatusOK, "Outbox entries deleted", result)
}

func (h *Handler) scanQR(w http.ResponseWriter, r *http.Request) {
	admin, _ := adminFromContext(r.Context())

	var in attendance.ScanInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Validation Error", "invalid json body")
		return
	}
	if in.IPAddress == nil && r.RemoteAddr != "" {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		in.IPAddress = &ip
	}
	if in.DeviceInfo == nil {
		if ua := r.UserAgent(); ua != "" {
			in.DeviceInfo = &ua
		}
	}

	result, err := h.svc.Attendance.ScanQR(r.Context(), in, admin.ID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, result.Message, result)
}

func (h *Handler) manualCheckIn(w http.ResponseWriter, r *http.Request) {
	admin, _ := adminFromContext(r.Context())

	var in attendance.ManualInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Validation Error", "invalid json body")
		return
	}

	result, err := h.svc.Attendance.ManualCheckIn(r.Context(), in, admin.ID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, result.Message, result)
}

func (h *Handler) attendanceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Attendance.Stats(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Stats fetched successfully", stats)
}

func (h *Handler) recentScans(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	scans, err := h.svc.Attendance.RecentScans(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Recent scans fetched successfully", scans)
}

// attendanceList treats a missing or unparsable page or limit as the default.
func (h *Handler) attendanceList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := h.svc.Attendance.List(r.Context(), attendance.ListQuery{
		Page:      page,
		Limit:     limit,
		Search:    q.Get("search"),
		Attended:  q.Get("attended"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Attendance list fetched successfully", result)
}

func (h *Handler) liveFeed(w http.ResponseWriter, r *http.Request) {
	admin, _ := adminFromContext(r.Context())
	if h.svc.Feed == nil {
		writeError(w, http.StatusServiceUnavailable, "Live feed disabled", nil)
		return
	}
	if err := h.svc.Feed.Serve(w, r, admin.ID); err != nil {
		// The upgrader has already written the failure response.
		log.Warn().Err(err).Str("admin_id", admin.ID).Msg("live feed upgrade failed")
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id", nil)
		return uuid.Nil, false
	}
	return id, true
}
