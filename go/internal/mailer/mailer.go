package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"

	"github.com/srkrcodingclub/iconcoderz/go/internal/qr"
)

var ErrNotConfigured = errors.New("SMTP not configured")

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	FromName string
}

func (c Config) Configured() bool {
	return c.Host != "" && c.User != ""
}

// Transport delivers a composed message.
type Transport interface {
	Send(ctx context.Context, msg *mail.Msg) error
}

// SMTPTransport sends through a go-mail client, dialing per send.
type SMTPTransport struct {
	client *mail.Client
}

func NewSMTPTransport(cfg Config) (*SMTPTransport, error) {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.User),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPTransport{client: client}, nil
}

func (t *SMTPTransport) Send(ctx context.Context, msg *mail.Msg) error {
	return t.client.DialAndSendWithContext(ctx, msg)
}

// Confirmation carries everything the registration email shows.
type Confirmation struct {
	To                 string
	FullName           string
	RegistrationCode   string
	QRDataURL          string
	Phone              string
	RegistrationNumber string
	Branch             string
	YearOfStudy        string
	CodechefHandle     *string
	LeetcodeHandle     *string
	CodeforcesHandle   *string
}

type Delivery struct {
	MessageID string
}

type Mailer struct {
	transport Transport
	cfg       Config
}

// New returns a mailer. A nil transport is allowed when SMTP is not
// configured; every send then fails with ErrNotConfigured.
func New(cfg Config, transport Transport) *Mailer {
	if cfg.FromName == "" {
		cfg.FromName = "IconCoderz 2K26"
	}
	return &Mailer{transport: transport, cfg: cfg}
}

func (m *Mailer) Configured() bool {
	return m.transport != nil && m.cfg.Configured()
}

// SendConfirmationNow sends the registration email with the QR code inline
// and returns once the SMTP server accepted it.
func (m *Mailer) SendConfirmationNow(ctx context.Context, c Confirmation) (Delivery, error) {
	if !m.Configured() {
		return Delivery{}, ErrNotConfigured
	}

	png, err := qr.DecodeDataURL(c.QRDataURL)
	if err != nil {
		return Delivery{}, fmt.Errorf("decode qr image: %w", err)
	}

	var body bytes.Buffer
	if err := confirmationTemplate.Execute(&body, c); err != nil {
		return Delivery{}, fmt.Errorf("render confirmation email: %w", err)
	}

	msg, err := m.newMessage(c.To, "Registration Confirmed - IconCoderz 2K26 | SRKR Coding Club", body.String())
	if err != nil {
		return Delivery{}, err
	}
	filename := fmt.Sprintf("iconcoderz-qr-%s.png", c.RegistrationCode)
	if err := msg.EmbedReader(filename, bytes.NewReader(png), mail.WithFileContentID("qrcode")); err != nil {
		return Delivery{}, fmt.Errorf("embed qr image: %w", err)
	}

	return m.send(ctx, msg)
}

// SendAttendance sends the post check-in welcome email.
func (m *Mailer) SendAttendance(ctx context.Context, to, fullName string) (Delivery, error) {
	if !m.Configured() {
		return Delivery{}, ErrNotConfigured
	}

	var body bytes.Buffer
	if err := attendanceTemplate.Execute(&body, struct{ FullName string }{fullName}); err != nil {
		return Delivery{}, fmt.Errorf("render attendance email: %w", err)
	}

	msg, err := m.newMessage(to, "Welcome to IconCoderz 2K26! Thanks for Attending", body.String())
	if err != nil {
		return Delivery{}, err
	}
	return m.send(ctx, msg)
}

func (m *Mailer) newMessage(to, subject, html string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.FromName, m.cfg.User); err != nil {
		return nil, fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("set recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, html)
	return msg, nil
}

func (m *Mailer) send(ctx context.Context, msg *mail.Msg) (Delivery, error) {
	if err := m.transport.Send(ctx, msg); err != nil {
		return Delivery{}, fmt.Errorf("send email: %w", err)
	}
	d := Delivery{MessageID: strings.Join(msg.GetGenHeader(mail.HeaderMessageID), "")}
	log.Info().
		Str("message_id", d.MessageID).
		Strs("to", msg.GetToString()).
		Msg("email sent")
	return d, nil
}
