package httpapi

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/srkrcodingclub/iconcoderz/go/internal/attendance"
	"github.com/srkrcodingclub/iconcoderz/go/internal/qr"
	"github.com/srkrcodingclub/iconcoderz/go/internal/registration"
	"github.com/srkrcodingclub/iconcoderz/go/internal/validation"
)

var notFoundErrors = []error{
	registration.ErrNotFound,
	attendance.ErrUserNotFound,
}

var badRequestErrors = []error{
	registration.ErrInvalidPaymentStatus,
	qr.ErrInvalidFormat,
	qr.ErrVerification,
	attendance.ErrWrongEvent,
	attendance.ErrRegistrationNotFound,
	attendance.ErrPaymentNotVerified,
}

// writeDomainError maps service errors onto status codes. Unknown errors are
// 500 and their text is hidden in production.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *validation.Error
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, "Validation Error", vErr.Error())
		return
	case errors.Is(err, validation.ErrInvalid):
		writeError(w, http.StatusBadRequest, "Validation Error", err.Error())
		return
	case registration.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
		return
	}
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			writeError(w, http.StatusNotFound, target.Error(), nil)
			return
		}
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			writeError(w, http.StatusBadRequest, target.Error(), nil)
			return
		}
	}

	log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	message := err.Error()
	if h.production {
		message = "Internal Server Error"
	}
	writeError(w, http.StatusInternalServerError, message, nil)
}
