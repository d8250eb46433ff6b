package qr

import (
	"bytes"
	"encoding/json"
	"image/png"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator() *Generator {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	return NewGenerator(Config{SecretKey: "s3cret", EventID: "iconcoderz-2k26"}, clock)
}

func TestGenerateProducesDecodablePNG(t *testing.T) {
	g := newTestGenerator()

	url, err := g.Generate("IC2K26-AB12", "u1")
	require.NoError(t, err)
	assert.Contains(t, url, "data:image/png;base64,")

	raw, err := DecodeDataURL(url)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestParseRoundTrip(t *testing.T) {
	g := newTestGenerator()
	data, err := json.Marshal(g.Sign("IC2K26-AB12", "u1"))
	require.NoError(t, err)

	p, err := g.Parse(string(data))
	require.NoError(t, err)
	assert.Equal(t, "IC2K26-AB12", p.RegistrationCode)
	assert.Equal(t, "iconcoderz-2k26", p.EventID)
	assert.Equal(t, "2026-02-01T12:00:00Z", p.GeneratedAt)
}

func TestParseRejects(t *testing.T) {
	g := newTestGenerator()

	_, err := g.Parse("not json")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	tampered := g.Sign("IC2K26-AB12", "u1")
	tampered.UserID = "u2"
	data, _ := json.Marshal(tampered)
	_, err = g.Parse(string(data))
	assert.ErrorIs(t, err, ErrVerification)

	other := NewGenerator(Config{SecretKey: "different", EventID: "iconcoderz-2k26"}, clockwork.NewFakeClock())
	data, _ = json.Marshal(other.Sign("IC2K26-AB12", "u1"))
	_, err = g.Parse(string(data))
	assert.ErrorIs(t, err, ErrVerification)

	bad := g.Sign("IC2K26-AB12", "u1")
	bad.VerificationHash = "zz"
	assert.False(t, g.Verify(bad))
}

func TestDecodeDataURLRejectsOtherSchemes(t *testing.T) {
	_, err := DecodeDataURL("https://example.com/qr.png")
	assert.Error(t, err)
}
