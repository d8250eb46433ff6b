package outbox

import "time"

const (
	retryBase = 60 * time.Second
	retryCap  = time.Hour
)

// RetryDelay is the wait before an entry that has been claimed attempts
// times becomes due again.
func RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := retryBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= retryCap {
			return retryCap
		}
	}
	return d
}

// IdleBackoff walks an increasing sleep sequence while the outbox stays empty.
// The loop advances on every empty claim before sleeping, so after N empty
// claims in a row it sleeps seq[min(N, len-1)]. It is owned by a single
// worker loop.
type IdleBackoff struct {
	seq []time.Duration
	idx int
}

func NewIdleBackoff(seq []time.Duration) *IdleBackoff {
	if len(seq) == 0 {
		seq = []time.Duration{2 * time.Second}
	}
	return &IdleBackoff{seq: seq}
}

// Current is the interval to sleep after the number of consecutive empty
// claims recorded so far.
func (b *IdleBackoff) Current() time.Duration {
	return b.seq[b.idx]
}

// Advance records one more empty claim.
func (b *IdleBackoff) Advance() {
	if b.idx < len(b.seq)-1 {
		b.idx++
	}
}

// Reset goes back to index 0 after work was found.
func (b *IdleBackoff) Reset() {
	b.idx = 0
}
