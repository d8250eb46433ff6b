package outbox

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL   string
	NotifyChannel string
	PingInterval  time.Duration
	MinReconnect  time.Duration
	MaxReconnect  time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: "outbox_insert",
		PingInterval:  90 * time.Second,
		MinReconnect:  10 * time.Second,
		MaxReconnect:  time.Minute,
	}
}

// Notifier is woken on every insert notification.
type Notifier interface {
	Notify()
}

// notificationSource is the part of *pq.Listener the loop uses.
type notificationSource interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// Listener subscribes to the outbox insert channel and wakes the worker.
// Losing the connection only costs latency: the worker keeps polling.
type Listener struct {
	source    notificationSource
	notifier  Notifier
	cfg       ListenerConfig
	clock     clockwork.Clock
	connected atomic.Bool
}

func NewListener(notifier Notifier, cfg ListenerConfig) (*Listener, error) {
	l := &Listener{
		notifier: notifier,
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
	}

	pl := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnect,
		cfg.MaxReconnect,
		l.onEvent,
	)
	if err := pl.Listen(cfg.NotifyChannel); err != nil {
		pl.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}
	l.source = pl
	l.connected.Store(true)

	log.Info().Str("channel", cfg.NotifyChannel).Msg("listening for outbox notifications")
	return l, nil
}

func (l *Listener) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		l.connected.Store(true)
	case pq.ListenerEventDisconnected:
		l.connected.Store(false)
		log.Warn().Err(err).Msg("outbox listener disconnected")
	case pq.ListenerEventReconnected:
		l.connected.Store(true)
		log.Info().Msg("outbox listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		log.Error().Err(err).Msg("outbox listener connection attempt failed")
	}
}

// Connected reports whether the LISTEN connection is currently up.
func (l *Listener) Connected() bool {
	return l.connected.Load()
}

// Start blocks until ctx is done.
func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Msg("outbox listener started")

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	notifications := l.source.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outbox listener shutting down")
			return l.Stop()
		case note := <-notifications:
			if note == nil {
				// A nil notification follows a reconnect; anything sent while
				// we were away was missed, so claim anyway.
				log.Debug().Msg("outbox listener connection re-established")
			} else {
				log.Debug().Str("outbox_id", note.Extra).Msg("outbox insert notification")
			}
			l.notifier.Notify()
		case <-pingTicker.Chan():
			if err := l.source.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping outbox listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.source.Close()
}
