// Command drain claims and processes due outbox entries until none remain or
// the iteration cap is hit, then prints the processed count. Meant for cron.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/srkrcodingclub/iconcoderz/go/internal/bootstrap"
	"github.com/srkrcodingclub/iconcoderz/go/internal/config"
	"github.com/srkrcodingclub/iconcoderz/go/internal/outbox"
)

func main() {
	os.Exit(run())
}

// run owns every resource so deferred cleanup happens before the process
// exits with the returned code.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("load config")
		return 1
	}
	cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := bootstrap.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("open database")
		return 1
	}
	defer conn.Close()

	clock := clockwork.NewRealClock()
	publisher := bootstrap.NewPublisher(ctx, cfg.NATS)
	defer publisher.Close()

	m, err := bootstrap.NewMailer(cfg.SMTP)
	if err != nil {
		log.Error().Err(err).Msg("create mailer")
		return 1
	}
	box := bootstrap.NewOutbox(conn, cfg, bootstrap.NewQRGenerator(cfg, clock), m)

	// OUTBOX_FAILED audits are written in the background; flush them while
	// the connection is still open.
	recorder := bootstrap.NewAuditRecorder(conn, clock)
	defer recorder.Wait()

	worker := outbox.NewWorker(box.Store, box.Processor, bootstrap.WorkerConfig(cfg.Outbox),
		outbox.WithClock(clock),
		outbox.WithPublisher(publisher),
		outbox.WithAuditor(recorder),
	)

	return drain(ctx, worker, os.Stdout)
}

type onceRunner interface {
	RunOnce(ctx context.Context) (int, error)
}

func drain(ctx context.Context, w onceRunner, out io.Writer) int {
	processed, err := w.RunOnce(ctx)
	fmt.Fprintln(out, processed)
	if err != nil {
		log.Error().Err(err).Int("processed", processed).Msg("outbox drain failed")
		return 1
	}
	log.Info().Int("processed", processed).Msg("outbox drain complete")
	return 0
}
