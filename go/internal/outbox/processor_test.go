package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srkrcodingclub/iconcoderz/go/internal/mailer"
)

type fakeQR struct {
	err   error
	calls int
}

func (q *fakeQR) Generate(code, userID string) (string, error) {
	q.calls++
	if q.err != nil {
		return "", q.err
	}
	return "data:image/png;base64,AAAA", nil
}

type fakeSender struct {
	sent        []mailer.Confirmation
	err         error
	hadDeadline bool
}

func (s *fakeSender) SendConfirmationNow(ctx context.Context, c mailer.Confirmation) (mailer.Delivery, error) {
	_, s.hadDeadline = ctx.Deadline()
	if s.err != nil {
		return mailer.Delivery{}, s.err
	}
	s.sent = append(s.sent, c)
	return mailer.Delivery{MessageID: "<1@test>"}, nil
}

func entryFor(t *testing.T, p ConfirmationPayload) Entry {
	t.Helper()
	data, err := json.Marshal(NewSendConfirmation(p))
	require.NoError(t, err)
	return Entry{Type: TypeSendConfirmation, Payload: data}
}

func TestProcessorSendsConfirmation(t *testing.T) {
	qr := &fakeQR{}
	sender := &fakeSender{}
	p := NewProcessor(qr, sender, time.Second)

	handle := "lc"
	payload := confirmationPayload()
	payload.Branch = "CSE"
	payload.LeetcodeHandle = &handle

	require.NoError(t, p.Process(context.Background(), entryFor(t, payload)))

	require.Len(t, sender.sent, 1)
	c := sender.sent[0]
	assert.Equal(t, "a@b.com", c.To)
	assert.Equal(t, "IC2K26-AB12", c.RegistrationCode)
	assert.Equal(t, "data:image/png;base64,AAAA", c.QRDataURL)
	assert.Equal(t, "CSE", c.Branch)
	assert.Equal(t, &handle, c.LeetcodeHandle)
	assert.True(t, sender.hadDeadline)
}

func TestProcessorWrapsCollaboratorErrors(t *testing.T) {
	p := NewProcessor(&fakeQR{err: errors.New("encode")}, &fakeSender{}, time.Second)
	err := p.Process(context.Background(), entryFor(t, confirmationPayload()))
	assert.ErrorContains(t, err, "QR generation failed")
	assert.False(t, IsTerminal(err))

	p = NewProcessor(&fakeQR{}, &fakeSender{err: mailer.ErrNotConfigured}, time.Second)
	err = p.Process(context.Background(), entryFor(t, confirmationPayload()))
	assert.ErrorIs(t, err, mailer.ErrNotConfigured)
	assert.ErrorContains(t, err, "Email send failed")
}

func TestProcessorRejectsUnknownType(t *testing.T) {
	qr := &fakeQR{}
	p := NewProcessor(qr, &fakeSender{}, 0)
	err := p.Process(context.Background(), Entry{Type: "send_sms", Payload: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Zero(t, qr.calls)
}
