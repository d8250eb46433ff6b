// Command replay re-sends or deletes explicit outbox entries.
//
//	replay send <id>...
//	replay delete <id>...
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/srkrcodingclub/iconcoderz/go/internal/bootstrap"
	"github.com/srkrcodingclub/iconcoderz/go/internal/config"
	"github.com/srkrcodingclub/iconcoderz/go/internal/outbox"
)

func usage() int {
	fmt.Fprintln(os.Stderr, "usage: replay send|delete <outbox-id>...")
	return 2
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 2 {
		return usage()
	}
	action, ids := args[0], args[1:]
	if action != "send" && action != "delete" {
		return usage()
	}

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
	app := outbox.NewApp(box.Store, box.Processor, clock, publisher)

	var (
		result any
		failed int
	)
	if action == "send" {
		r := app.SendOutboxEmails(ctx, ids)
		result, failed = r, len(r.Failed)
	} else {
		r := app.DeleteOutbox(ctx, ids)
		result, failed = r, len(r.Failed)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Error().Err(err).Msg("encode result")
		return 1
	}
	if failed > 0 {
		return 1
	}
	return 0
}
