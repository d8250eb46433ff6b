package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/srkrcodingclub/iconcoderz/go/internal/mailer"
)

// Handler performs the side effect an entry requests.
type Handler interface {
	Process(ctx context.Context, e Entry) error
}

type QRGenerator interface {
	Generate(code, userID string) (string, error)
}

type ConfirmationSender interface {
	SendConfirmationNow(ctx context.Context, c mailer.Confirmation) (mailer.Delivery, error)
}

// Processor dispatches decoded messages to their collaborators. Each call
// runs under its own timeout.
type Processor struct {
	qr      QRGenerator
	sender  ConfirmationSender
	timeout time.Duration
}

func NewProcessor(qr QRGenerator, sender ConfirmationSender, timeout time.Duration) *Processor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Processor{
		qr:      qr,
		sender:  sender,
		timeout: timeout,
	}
}

func (p *Processor) Process(ctx context.Context, e Entry) error {
	msg, err := Decode(e.Type, e.Payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	switch m := msg.(type) {
	case SendConfirmation:
		return p.sendConfirmation(ctx, m)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownType, msg.Type())
	}
}

func (p *Processor) sendConfirmation(ctx context.Context, m SendConfirmation) error {
	qrDataURL, err := p.qr.Generate(m.RegistrationCode, m.UserID)
	if err != nil {
		return fmt.Errorf("QR generation failed: %w", err)
	}

	_, err = p.sender.SendConfirmationNow(ctx, mailer.Confirmation{
		To:                 m.Email,
		FullName:           m.FullName,
		RegistrationCode:   m.RegistrationCode,
		QRDataURL:          qrDataURL,
		Phone:              m.Phone,
		RegistrationNumber: m.RegistrationNumber,
		Branch:             m.Branch,
		YearOfStudy:        m.YearOfStudy,
		CodechefHandle:     m.CodechefHandle,
		LeetcodeHandle:     m.LeetcodeHandle,
		CodeforcesHandle:   m.CodeforcesHandle,
	})
	if err != nil {
		return fmt.Errorf("Email send failed: %w", err)
	}
	return nil
}
