// Package bootstrap builds the collaborators shared by the API server, the
// outbox worker and the admin tools from a loaded config.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/srkrcodingclub/iconcoderz/go/internal/audit"
	"github.com/srkrcodingclub/iconcoderz/go/internal/config"
	"github.com/srkrcodingclub/iconcoderz/go/internal/db"
	"github.com/srkrcodingclub/iconcoderz/go/internal/events"
	"github.com/srkrcodingclub/iconcoderz/go/internal/mailer"
	"github.com/srkrcodingclub/iconcoderz/go/internal/outbox"
	"github.com/srkrcodingclub/iconcoderz/go/internal/qr"
)

// OpenDatabase connects to Postgres and applies the schema.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	conn.SetMaxOpenConns(20)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := db.ApplySchema(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")
	return conn, nil
}

// Publisher is an events.Publisher that may hold a broker connection.
type Publisher struct {
	events.Publisher
	broker *events.JetStreamPublisher
}

// Broker returns the JetStream publisher, or nil when NATS is not configured.
func (p *Publisher) Broker() *events.JetStreamPublisher {
	return p.broker
}

func (p *Publisher) Close() {
	if p.broker == nil {
		return
	}
	if err := p.broker.Close(); err != nil {
		log.Error().Err(err).Msg("close publisher")
	}
}

// NewPublisher logs every event and also sends it to JetStream when NATS_URL
// is set. A broker that cannot be reached at startup is logged and skipped.
func NewPublisher(ctx context.Context, cfg config.NATSConfig, extra ...events.Publisher) *Publisher {
	multi := events.Multi{events.NewLogPublisher()}
	multi = append(multi, extra...)

	p := &Publisher{}
	if cfg.URL != "" {
		jsCfg := events.DefaultJetStreamConfig()
		jsCfg.URL = cfg.URL
		if cfg.StreamName != "" {
			jsCfg.StreamName = cfg.StreamName
		}
		if cfg.SubjectPrefix != "" {
			jsCfg.SubjectPrefix = cfg.SubjectPrefix
		}
		broker, err := events.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			log.Error().Err(err).Str("url", cfg.URL).Msg("create JetStream publisher")
		} else {
			p.broker = broker
			multi = append(multi, broker)
		}
	}
	p.Publisher = multi
	return p
}

// NewMailer returns a mailer bound to SMTP when configured. Without SMTP
// settings every send fails with mailer.ErrNotConfigured.
func NewMailer(cfg config.SMTPConfig) (*mailer.Mailer, error) {
	mcfg := mailer.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		FromName: cfg.FromName,
	}
	if !mcfg.Configured() {
		log.Warn().Msg("SMTP not configured, emails will not be sent")
		return mailer.New(mcfg, nil), nil
	}
	transport, err := mailer.NewSMTPTransport(mcfg)
	if err != nil {
		return nil, err
	}
	return mailer.New(mcfg, transport), nil
}

func NewQRGenerator(cfg *config.Config, clock clockwork.Clock) *qr.Generator {
	return qr.NewGenerator(qr.Config{
		SecretKey: cfg.QR.SecretKey,
		EventID:   cfg.Event.ID,
		Size:      cfg.QR.Size,
	}, clock)
}

func NewAuditRecorder(conn *sql.DB, clock clockwork.Clock) *audit.Recorder {
	return audit.NewRecorder(db.New(conn), clock)
}

// Outbox bundles the store and handler every outbox consumer needs.
type Outbox struct {
	Store     *outbox.Repository
	Processor *outbox.Processor
}

func NewOutbox(conn *sql.DB, cfg *config.Config, generator *qr.Generator, m *mailer.Mailer) Outbox {
	return Outbox{
		Store:     outbox.NewRepository(db.New(conn)),
		Processor: outbox.NewProcessor(generator, m, cfg.Outbox.HandlerTimeout),
	}
}

// WorkerConfig maps the config file's outbox section onto the worker.
func WorkerConfig(cfg config.OutboxConfig) outbox.Config {
	return outbox.Config{
		BatchSize:      cfg.BatchSize,
		MaxAttempts:    cfg.MaxAttempts,
		IdleBackoff:    cfg.IdleBackoff,
		OnceIterations: cfg.OnceIterations,
		NotifyChannel:  cfg.NotifyChannel,
	}
}
