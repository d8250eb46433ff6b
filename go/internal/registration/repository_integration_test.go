//go:build integration

package registration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srkrcodingclub/iconcoderz/go/internal/db"
	"github.com/srkrcodingclub/iconcoderz/go/internal/dbtest"
	"github.com/srkrcodingclub/iconcoderz/go/internal/outbox"
)

func newReg(in UserInput) NewRegistration {
	return NewRegistration{
		ID:               uuid.New(),
		RegistrationCode: "IC2K26-" + uuid.NewString()[:8],
		Input:            in,
		CreatedAt:        time.Now().UTC(),
	}
}

func TestIntegration_CreateWithConfirmationWritesBothRows(t *testing.T) {
	conn, _ := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	created, err := repo.CreateWithConfirmation(ctx, newReg(validInput()))
	require.NoError(t, err)

	entries, err := outbox.NewRepository(db.New(conn)).List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, created.ID.String(), entries[0].AggregateID)
	assert.Equal(t, outbox.TypeSendConfirmation, entries[0].Type)

	msg, err := outbox.Decode(entries[0].Type, entries[0].Payload)
	require.NoError(t, err)
	p := msg.(outbox.SendConfirmation)
	assert.Equal(t, created.RegistrationCode, p.RegistrationCode)
	assert.Equal(t, "jane@test.com", p.Email)
	assert.Equal(t, "send_confirmation", p.Action)
}

func TestIntegration_EnqueueIsAtomic(t *testing.T) {
	conn, _ := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	_, err := conn.ExecContext(ctx, `
CREATE FUNCTION reject_outbox() RETURNS trigger LANGUAGE plpgsql AS $$
BEGIN
    RAISE EXCEPTION 'outbox insert rejected';
END;
$$;
CREATE TRIGGER reject_outbox BEFORE INSERT ON outbox FOR EACH ROW EXECUTE FUNCTION reject_outbox();`)
	require.NoError(t, err)

	reg := newReg(validInput())
	_, err = repo.CreateWithConfirmation(ctx, reg)
	require.ErrorContains(t, err, "outbox insert rejected")

	_, err = repo.Get(ctx, reg.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n))
	assert.Zero(t, n)
}

func TestIntegration_ConflictsMapToReasons(t *testing.T) {
	conn, _ := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	_, err := repo.CreateWithConfirmation(ctx, newReg(validInput()))
	require.NoError(t, err)

	dup := validInput()
	dup.Email = "other@test.com"
	dup.RegistrationNumber = "1111111111"
	dup.TransactionID = "txn_other_0001"
	assert.Equal(t, ErrPhoneRegistered, repo.CheckConflicts(ctx, dup))

	// Skipping the pre-check still surfaces the same reason at commit time.
	_, err = repo.CreateWithConfirmation(ctx, newReg(dup))
	assert.Equal(t, ErrPhoneRegistered, err)

	assert.Equal(t, ErrEmailRegistered, repo.CheckConflicts(ctx, validInput()))

	fresh := validInput()
	fresh.Email = "fresh@test.com"
	fresh.RegistrationNumber = "2222222222"
	fresh.Phone = "1231231234"
	fresh.TransactionID = "txn_fresh_0001"
	assert.NoError(t, repo.CheckConflicts(ctx, fresh))
}

func TestIntegration_ListFiltersRegistrations(t *testing.T) {
	conn, _ := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	jane, err := repo.CreateWithConfirmation(ctx, newReg(validInput()))
	require.NoError(t, err)

	other := validInput()
	other.FullName = "Ravi Kumar"
	other.Email = "ravi@test.com"
	other.RegistrationNumber = "1111111111"
	other.Phone = "1231231234"
	other.TransactionID = "txn_other_0001"
	other.Branch = "CSE"
	other.YearOfStudy = "FIRST_YEAR"
	ravi, err := repo.CreateWithConfirmation(ctx, newReg(other))
	require.NoError(t, err)

	_, err = repo.UpdatePaymentStatus(ctx, ravi.ID, "VERIFIED", time.Now().UTC())
	require.NoError(t, err)

	regs, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, regs, 2)

	regs, err = repo.List(ctx, Filter{PaymentStatus: "VERIFIED"})
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, ravi.ID, regs[0].ID)

	regs, err = repo.List(ctx, Filter{Branch: "IT", YearOfStudy: "THIRD_YEAR"})
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, jane.ID, regs[0].ID)

	regs, err = repo.List(ctx, Filter{Search: "KUMAR"})
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, ravi.ID, regs[0].ID)

	regs, err = repo.List(ctx, Filter{Search: "987654"})
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, jane.ID, regs[0].ID)

	regs, err = repo.List(ctx, Filter{PaymentStatus: "REJECTED"})
	require.NoError(t, err)
	assert.Empty(t, regs)
}
