package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
		{4, 480 * time.Second},
		{5, 960 * time.Second},
		{6, 1920 * time.Second},
		{7, time.Hour},
		{40, time.Hour},
		{0, 60 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryDelay(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestIdleBackoffGrowsAndResets(t *testing.T) {
	seq := DefaultConfig().IdleBackoff
	b := NewIdleBackoff(seq)

	for n := 1; n <= 8; n++ {
		b.Advance()
		want := seq[min(n, len(seq)-1)]
		assert.Equal(t, want, b.Current(), "after %d empty claims", n)
	}

	b.Reset()
	assert.Equal(t, 2*time.Second, b.Current())
	b.Advance()
	assert.Equal(t, 5*time.Second, b.Current())
}

func TestIdleBackoffFirstEmptyClaimSkipsBottomInterval(t *testing.T) {
	b := NewIdleBackoff(DefaultConfig().IdleBackoff)
	b.Advance()
	assert.Equal(t, 5*time.Second, b.Current())
}

func TestIdleBackoffEmptySequence(t *testing.T) {
	b := NewIdleBackoff(nil)
	b.Advance()
	assert.Equal(t, 2*time.Second, b.Current())
}
