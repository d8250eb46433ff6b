package cache

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const DefaultSweepInterval = 60 * time.Second

type entry struct {
	value     any
	expiresAt time.Time
}

// TTL is an in-process cache with per-key expiry. Expired keys read as
// absent and are purged by a background sweeper.
//
// Concurrent misses on the same key are not coalesced; each caller of
// GetOrCompute runs its own compute.
type TTL struct {
	clock clockwork.Clock

	mu      sync.RWMutex
	entries map[string]entry

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(clock clockwork.Clock, sweepInterval time.Duration) *TTL {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	c := &TTL{
		clock:   clock,
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval)
	return c
}

func (c *TTL) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.expired(e, c.clock.Now()) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && c.expired(cur, c.clock.Now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (c *TTL) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.clock.Now().Add(ttl)}
	c.mu.Unlock()
}

func (c *TTL) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *TTL) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// InvalidatePattern deletes every key matching the regular expression and
// returns how many were removed.
func (c *TTL) InvalidatePattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("compile cache pattern: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key := range c.entries {
		if re.MatchString(key) {
			delete(c.entries, key)
			n++
		}
	}
	return n, nil
}

// Len counts stored entries, including expired ones not yet swept.
func (c *TTL) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the sweeper. Safe to call more than once.
func (c *TTL) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

func (c *TTL) expired(e entry, now time.Time) bool {
	return !now.Before(e.expiresAt)
}

func (c *TTL) sweep() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

func (c *TTL) sweepLoop(interval time.Duration) {
	defer close(c.done)
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.Chan():
			if n := c.sweep(); n > 0 {
				log.Debug().Int("purged", n).Msg("cache sweep")
			}
		}
	}
}

// GetOrCompute returns the cached value for key or stores the result of
// compute for ttl. Compute errors are returned and nothing is stored.
func GetOrCompute[T any](ctx context.Context, c *TTL, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, value, ttl)
	return value, nil
}
