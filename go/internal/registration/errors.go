package registration

import (
	"errors"

	"github.com/srkrcodingclub/iconcoderz/go/internal/sqlutil"
)

var (
	ErrEmailRegistered              = errors.New("Email already registered")
	ErrRegistrationNumberRegistered = errors.New("Registration number already registered")
	ErrPhoneRegistered              = errors.New("Phone number already registered")
	ErrTransactionIDUsed            = errors.New("Transaction ID already used")
	ErrUniqueViolation              = errors.New("Unique constraint violation")

	ErrNotFound             = errors.New("Registration not found")
	ErrInvalidPaymentStatus = errors.New("Invalid payment status")
)

var conflicts = []error{
	ErrEmailRegistered,
	ErrRegistrationNumberRegistered,
	ErrPhoneRegistered,
	ErrTransactionIDUsed,
	ErrUniqueViolation,
}

// IsConflict reports whether err is one of the uniqueness conflicts.
func IsConflict(err error) bool {
	for _, c := range conflicts {
		if errors.Is(err, c) {
			return true
		}
	}
	return false
}

var constraintErrors = map[string]error{
	"registrations_email_key":               ErrEmailRegistered,
	"registrations_registration_number_key": ErrRegistrationNumberRegistered,
	"registrations_phone_key":               ErrPhoneRegistered,
	"registrations_transaction_id_key":      ErrTransactionIDUsed,
}

// conflictFromDB maps a unique violation raised at commit time onto the same
// errors the pre-check returns. Other errors pass through unchanged.
func conflictFromDB(err error) error {
	constraint, ok := sqlutil.UniqueViolation(err)
	if !ok {
		return err
	}
	if mapped, ok := constraintErrors[constraint]; ok {
		return mapped
	}
	return ErrUniqueViolation
}
