package registration

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestConflictFromDB(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{"registrations_email_key", ErrEmailRegistered},
		{"registrations_registration_number_key", ErrRegistrationNumberRegistered},
		{"registrations_phone_key", ErrPhoneRegistered},
		{"registrations_transaction_id_key", ErrTransactionIDUsed},
		{"registrations_registration_code_key", ErrUniqueViolation},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: tt.constraint})
			assert.Equal(t, tt.want, conflictFromDB(err))
		})
	}

	other := &pq.Error{Code: "23503", Constraint: "registrations_email_key"}
	assert.Equal(t, error(other), conflictFromDB(other))

	plain := errors.New("boom")
	assert.Equal(t, plain, conflictFromDB(plain))
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(fmt.Errorf("wrapped: %w", ErrTransactionIDUsed)))
	assert.True(t, IsConflict(ErrUniqueViolation))
	assert.False(t, IsConflict(ErrNotFound))
	assert.False(t, IsConflict(nil))
}
