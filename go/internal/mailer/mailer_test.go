package mailer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/srkrcodingclub/iconcoderz/go/internal/qr"
)

type fakeTransport struct {
	sent []*mail.Msg
	err  error
}

func (t *fakeTransport) Send(_ context.Context, msg *mail.Msg) error {
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, msg)
	return nil
}

func testConfig() Config {
	return Config{Host: "smtp.example.com", Port: 587, User: "noreply@example.com", Password: "x"}
}

func TestSendConfirmationNow(t *testing.T) {
	transport := &fakeTransport{}
	m := New(testConfig(), transport)

	dataURL, err := qr.NewGenerator(qr.Config{SecretKey: "k", EventID: "e"}, clockwork.NewFakeClock()).Generate("IC2K26-AB12", "u1")
	require.NoError(t, err)

	handle := "ab_12"
	d, err := m.SendConfirmationNow(context.Background(), Confirmation{
		To:               "a@b.com",
		FullName:         "A B",
		RegistrationCode: "IC2K26-AB12",
		QRDataURL:        dataURL,
		CodechefHandle:   &handle,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, d.MessageID)

	require.Len(t, transport.sent, 1)
	msg := transport.sent[0]
	assert.Equal(t, []string{"<a@b.com>"}, msg.GetToString())

	embeds := msg.GetEmbeds()
	require.Len(t, embeds, 1)
	assert.Equal(t, "iconcoderz-qr-IC2K26-AB12.png", embeds[0].Name)
	assert.Equal(t, "qrcode", embeds[0].Header.Get("Content-ID"))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Registration Confirmed")
}

func TestSendConfirmationNowErrors(t *testing.T) {
	_, err := New(Config{}, nil).SendConfirmationNow(context.Background(), Confirmation{To: "a@b.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	m := New(testConfig(), &fakeTransport{})
	_, err = m.SendConfirmationNow(context.Background(), Confirmation{To: "a@b.com", QRDataURL: "nope"})
	assert.ErrorContains(t, err, "decode qr image")

	boom := errors.New("connection refused")
	m = New(testConfig(), &fakeTransport{err: boom})
	_, err = m.SendAttendance(context.Background(), "a@b.com", "A B")
	assert.ErrorIs(t, err, boom)
}

func TestAttendanceTemplateEscapesName(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, attendanceTemplate.Execute(&buf, struct{ FullName string }{"<script>"}))
	assert.False(t, strings.Contains(buf.String(), "<script>"))
}
