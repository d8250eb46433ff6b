package mailer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/srkrcodingclub/iconcoderz/go/internal/audit"
)

type queueState int32

const (
	stateIdle queueState = iota
	stateRunning
)

type QueueConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	Spacing    time.Duration
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		Spacing:    time.Second,
	}
}

// Auditor records delivery outcomes.
type Auditor interface {
	RecordAsync(ctx context.Context, event audit.Event, details audit.Details)
}

// Item is one queued email. Send performs the delivery.
type Item struct {
	To      string
	Kind    string
	Send    func(ctx context.Context) (Delivery, error)
	retries int
}

// Queue owns a list of pending emails and drains it on a single goroutine.
// Start flips Idle to Running with a compare-and-swap so only one drain runs.
type Queue struct {
	cfg   QueueConfig
	clock clockwork.Clock
	audit Auditor

	state atomic.Int32

	mu    sync.Mutex
	items []*Item
	done  chan struct{}
}

func NewQueue(cfg QueueConfig, clock clockwork.Clock, auditor Auditor) *Queue {
	return &Queue{
		cfg:   cfg,
		clock: clock,
		audit: auditor,
	}
}

func (q *Queue) Enqueue(item Item) {
	q.mu.Lock()
	q.items = append(q.items, &item)
	size := len(q.items)
	q.mu.Unlock()

	log.Debug().Str("to", item.To).Str("kind", item.Kind).Int("queue_size", size).Msg("email queued")
}

// Start launches the drain goroutine unless one is already running. It
// reports whether this call started it.
func (q *Queue) Start(ctx context.Context) bool {
	if !q.state.CompareAndSwap(int32(stateIdle), int32(stateRunning)) {
		return false
	}

	done := make(chan struct{})
	q.mu.Lock()
	q.done = done
	q.mu.Unlock()

	go func() {
		defer close(done)
		q.drain(ctx)
	}()
	return true
}

// Wait blocks until the most recently started drain finishes.
func (q *Queue) Wait() {
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (q *Queue) Running() bool {
	return queueState(q.state.Load()) == stateRunning
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// SendAttendance queues the check-in email and makes sure a drain is running.
// The drain outlives the caller's context.
func (q *Queue) SendAttendance(ctx context.Context, m *Mailer, to, fullName string) {
	if !m.Configured() {
		log.Warn().Str("to", to).Msg("SMTP not configured, skipping attendance email")
		return
	}
	q.Enqueue(Item{
		To:   to,
		Kind: "ATTENDANCE",
		Send: func(ctx context.Context) (Delivery, error) {
			return m.SendAttendance(ctx, to, fullName)
		},
	})
	q.Start(context.WithoutCancel(ctx))
}

func (q *Queue) drain(ctx context.Context) {
	log.Debug().Int("queue_size", q.Len()).Msg("email queue processing started")

	for {
		item := q.front()
		if item == nil {
			q.state.Store(int32(stateIdle))
			// An Enqueue may have raced the empty check; take the run back if so.
			if q.Len() == 0 || !q.state.CompareAndSwap(int32(stateIdle), int32(stateRunning)) {
				log.Debug().Msg("email queue processing completed")
				return
			}
			continue
		}

		delivery, err := item.Send(ctx)
		if err == nil {
			q.popFront()
			q.record(ctx, audit.EmailSent, audit.Details{
				"to":        item.To,
				"type":      item.Kind,
				"messageId": delivery.MessageID,
			})
			if q.Len() > 0 && !q.sleep(ctx, q.cfg.Spacing) {
				q.state.Store(int32(stateIdle))
				return
			}
			continue
		}

		log.Error().Err(err).Str("to", item.To).Int("retries", item.retries).Msg("failed to send email")
		q.record(ctx, audit.EmailFailed, audit.Details{
			"to":      item.To,
			"type":    item.Kind,
			"error":   err.Error(),
			"retries": item.retries,
		})

		item.retries++
		q.popFront()
		if item.retries >= q.cfg.MaxRetries {
			log.Error().Str("to", item.To).Msg("max retries reached, dropping email")
			continue
		}
		q.pushBack(item)
		if !q.sleep(ctx, q.cfg.RetryDelay) {
			q.state.Store(int32(stateIdle))
			return
		}
	}
}

func (q *Queue) front() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *Queue) popFront() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		q.items[0] = nil
		q.items = q.items[1:]
	}
}

func (q *Queue) pushBack(item *Item) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

func (q *Queue) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-q.clock.After(d):
		return true
	}
}

func (q *Queue) record(ctx context.Context, event audit.Event, details audit.Details) {
	if q.audit != nil {
		q.audit.RecordAsync(ctx, event, details)
	}
}

// AttendanceSender binds a queue to the mailer that delivers its items.
type AttendanceSender struct {
	queue  *Queue
	mailer *Mailer
}

func NewAttendanceSender(queue *Queue, mailer *Mailer) *AttendanceSender {
	return &AttendanceSender{queue: queue, mailer: mailer}
}

func (s *AttendanceSender) SendAttendance(ctx context.Context, to, fullName string) {
	s.queue.SendAttendance(ctx, s.mailer, to, fullName)
}
