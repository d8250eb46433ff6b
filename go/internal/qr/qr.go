package qr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	qrcode "github.com/skip2/go-qrcode"
)

const dataURLPrefix = "data:image/png;base64,"

var (
	ErrInvalidFormat = errors.New("Invalid QR code format")
	ErrVerification  = errors.New("QR code verification failed. This QR may be tampered or fake.")
)

// Payload is the JSON encoded into every participant's QR code.
type Payload struct {
	RegistrationCode string `json:"registrationCode"`
	UserID           string `json:"userId"`
	EventID          string `json:"eventId"`
	GeneratedAt      string `json:"generatedAt"`
	VerificationHash string `json:"verificationHash"`
}

type Config struct {
	SecretKey string
	EventID   string
	Size      int
}

type Generator struct {
	secret  []byte
	eventID string
	size    int
	clock   clockwork.Clock
}

func NewGenerator(cfg Config, clock clockwork.Clock) *Generator {
	size := cfg.Size
	if size <= 0 {
		size = 256
	}
	return &Generator{
		secret:  []byte(cfg.SecretKey),
		eventID: cfg.EventID,
		size:    size,
		clock:   clock,
	}
}

// Sign builds a payload for a registration with a fresh hash.
func (g *Generator) Sign(code, userID string) Payload {
	p := Payload{
		RegistrationCode: code,
		UserID:           userID,
		EventID:          g.eventID,
		GeneratedAt:      g.clock.Now().UTC().Format(time.RFC3339Nano),
	}
	p.VerificationHash = g.hash(p)
	return p
}

// Generate renders the signed payload as a PNG data URL.
func (g *Generator) Generate(code, userID string) (string, error) {
	data, err := json.Marshal(g.Sign(code, userID))
	if err != nil {
		return "", fmt.Errorf("marshal qr payload: %w", err)
	}
	png, err := qrcode.Encode(string(data), qrcode.Medium, g.size)
	if err != nil {
		return "", fmt.Errorf("Failed to generate QR code: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// Parse decodes scanned QR text and checks its signature. The event id is
// left for the caller to compare.
func (g *Generator) Parse(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, ErrInvalidFormat
	}
	if !g.Verify(p) {
		return Payload{}, ErrVerification
	}
	return p, nil
}

func (g *Generator) Verify(p Payload) bool {
	got, err := hex.DecodeString(p.VerificationHash)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(g.hash(p))
	return hmac.Equal(got, want)
}

func (g *Generator) EventID() string {
	return g.eventID
}

func (g *Generator) hash(p Payload) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(strings.Join([]string{p.RegistrationCode, p.UserID, p.EventID, p.GeneratedAt}, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

// DecodeDataURL returns the PNG bytes behind a data URL produced by Generate.
func DecodeDataURL(s string) ([]byte, error) {
	if !strings.HasPrefix(s, dataURLPrefix) {
		return nil, fmt.Errorf("not a png data url")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(s, dataURLPrefix))
}
