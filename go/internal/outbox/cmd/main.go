package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/srkrcodingclub/iconcoderz/go/internal/bootstrap"
	"github.com/srkrcodingclub/iconcoderz/go/internal/config"
	"github.com/srkrcodingclub/iconcoderz/go/internal/outbox"
)

const stallThreshold = 15 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := bootstrap.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer conn.Close()

	clock := clockwork.NewRealClock()
	publisher := bootstrap.NewPublisher(ctx, cfg.NATS)
	defer publisher.Close()

	m, err := bootstrap.NewMailer(cfg.SMTP)
	if err != nil {
		log.Fatal().Err(err).Msg("create mailer")
	}
	box := bootstrap.NewOutbox(conn, cfg, bootstrap.NewQRGenerator(cfg, clock), m)

	if err := box.Store.EnsureNotifyTrigger(ctx, cfg.Outbox.NotifyChannel); err != nil {
		log.Fatal().Err(err).Msg("install outbox notify trigger")
	}

	recorder := bootstrap.NewAuditRecorder(conn, clock)
	defer recorder.Wait()

	metrics := outbox.NewCounterMetrics()
	worker := outbox.NewWorker(box.Store, box.Processor, bootstrap.WorkerConfig(cfg.Outbox),
		outbox.WithClock(clock),
		outbox.WithPublisher(publisher),
		outbox.WithAuditor(recorder),
		outbox.WithMetrics(metrics),
	)

	// Without LISTEN the worker still polls on its idle cadence.
	listenerCfg := outbox.DefaultListenerConfig()
	listenerCfg.DatabaseURL = cfg.Database.DSN()
	listenerCfg.NotifyChannel = cfg.Outbox.NotifyChannel
	listenerCfg.PingInterval = cfg.Outbox.PingInterval

	var listenerConn outbox.Connectivity
	listener, err := outbox.NewListener(worker, listenerCfg)
	if err != nil {
		log.Error().Err(err).Msg("create outbox listener, falling back to polling")
	} else {
		listenerConn = listener
		go func() {
			if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("outbox listener exited")
			}
		}()
	}

	var brokerConn outbox.Connectivity
	if b := publisher.Broker(); b != nil {
		brokerConn = b
	}
	checker := outbox.NewHealthChecker(conn, box.Store, worker, listenerConn, brokerConn, metrics, stallThreshold)

	mux := http.NewServeMux()
	mux.Handle("/health", checker)
	mux.Handle("/metrics", outbox.NewPrometheusExporter(checker))
	healthServer := &http.Server{
		Addr:              cfg.Outbox.HealthAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", healthServer.Addr).Msg("starting health server")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server exited")
		}
	}()

	if err := worker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start outbox worker")
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	if err := worker.Stop(); err != nil {
		log.Warn().Err(err).Msg("stop outbox worker")
	}
	if listener != nil {
		if err := listener.Stop(); err != nil {
			log.Warn().Err(err).Msg("stop outbox listener")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown")
	}
	log.Info().Msg("graceful shutdown complete")
}
