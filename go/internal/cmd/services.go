package main

import (
	"context"
	"database/sql"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/srkrcodingclub/iconcoderz/go/internal/attendance"
	"github.com/srkrcodingclub/iconcoderz/go/internal/audit"
	"github.com/srkrcodingclub/iconcoderz/go/internal/bootstrap"
	"github.com/srkrcodingclub/iconcoderz/go/internal/cache"
	"github.com/srkrcodingclub/iconcoderz/go/internal/config"
	"github.com/srkrcodingclub/iconcoderz/go/internal/livefeed"
	"github.com/srkrcodingclub/iconcoderz/go/internal/mailer"
	"github.com/srkrcodingclub/iconcoderz/go/internal/outbox"
	"github.com/srkrcodingclub/iconcoderz/go/internal/registration"
)

type Services struct {
	DB           *sql.DB
	Registration *registration.App
	Outbox       *outbox.App
	Attendance   *attendance.App
	Feed         *livefeed.Hub

	cache     *cache.TTL
	publisher *bootstrap.Publisher
	mailQueue *mailer.Queue
	auditor   *audit.Recorder
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Database → Repository → App, same chain for every domain.
	conn, err := bootstrap.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	statsCache := cache.New(clock, cfg.Cache.SweepInterval)
	auditor := bootstrap.NewAuditRecorder(conn, clock)

	hubCfg := livefeed.DefaultConfig()
	hubCfg.CheckOrigin = livefeed.AllowOrigins(cfg.CORS.AllowedOrigins)
	hub := livefeed.NewHub(hubCfg)
	go hub.Run(ctx)
	publisher := bootstrap.NewPublisher(ctx, cfg.NATS, hub)

	m, err := bootstrap.NewMailer(cfg.SMTP)
	if err != nil {
		conn.Close()
		return nil, err
	}
	mailQueue := mailer.NewQueue(mailer.DefaultQueueConfig(), clock, auditor)
	generator := bootstrap.NewQRGenerator(cfg, clock)
	box := bootstrap.NewOutbox(conn, cfg, generator, m)

	// Registration
	registrationRepo := registration.NewRepository(conn)
	registrationApp := registration.NewApp(registrationRepo, auditor, statsCache, clock, cfg.Event.Tag)

	// Outbox admin
	outboxApp := outbox.NewApp(box.Store, box.Processor, clock, publisher)

	// Attendance
	attendanceRepo := attendance.NewRepository(conn)
	attendanceApp := attendance.NewApp(
		attendanceRepo,
		generator,
		statsCache,
		cfg.Cache.AttendanceStatsTTL,
		publisher,
		mailer.NewAttendanceSender(mailQueue, m),
		clock,
	)

	return &Services{
		DB:           conn,
		Registration: registrationApp,
		Outbox:       outboxApp,
		Attendance:   attendanceApp,
		Feed:         hub,
		cache:        statsCache,
		publisher:    publisher,
		mailQueue:    mailQueue,
		auditor:      auditor,
	}, nil
}

// Close waits for queued attendance emails and pending audit writes, then
// releases connections.
func (s *Services) Close() {
	s.mailQueue.Wait()
	s.auditor.Wait()
	s.cache.Close()
	s.publisher.Close()
	if err := s.DB.Close(); err != nil {
		log.Error().Err(err).Msg("close database")
	}
}
