// Command worker consumes upload events and checks each one against the
// stored upload record.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dvloznov/csv-intake/internal/app"
	"github.com/dvloznov/csv-intake/internal/config"
	"github.com/dvloznov/csv-intake/internal/events"
	"github.com/dvloznov/csv-intake/internal/logger"
	"github.com/dvloznov/csv-intake/internal/records"
)

func main() {
	configFile := flag.String("config", "", "Path to a config file (yaml, toml or json)")
	flag.Parse()

	bootLog := logger.New()

	cfg, err := config.Load(config.NewViper(), *configFile)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}
	if !cfg.PublishesEvents() {
		bootLog.Fatal().Msg("CSVINTAKE_AMQP_URL is required for the worker")
	}

	log := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	repo, err := app.NewRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	defer repo.Close()

	consumer, err := events.NewAMQPConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to AMQP broker")
	}
	defer consumer.Close()

	log.Info().Str("queue", cfg.AMQPQueue).Msg("Worker service started, waiting for events...")

	if err := consumer.Consume(ctx, verifyUpload(repo)); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Event consumer stopped with error")
	}

	log.Info().Msg("Worker service exited")
}

// verifyUpload logs each event and warns when the stored record disagrees
// with it. Lookup failures other than not-found requeue the event.
func verifyUpload(repo records.Repository) events.Handler {
	return func(ctx context.Context, msg *events.UploadProcessedMessage) error {
		log := logger.FromContext(ctx).With().
			Str("upload_id", msg.UploadID).
			Str("status", msg.Status).
			Logger()

		u, err := repo.GetUpload(ctx, msg.UploadID)
		if errors.Is(err, records.ErrNotFound) {
			log.Warn().Msg("Upload from event no longer exists")
			return nil
		}
		if err != nil {
			return fmt.Errorf("verifyUpload: %w", err)
		}

		if string(u.Status) != msg.Status || u.ValidRows != msg.ValidRows || u.InvalidRows != msg.InvalidRows {
			log.Warn().
				Str("stored_status", string(u.Status)).
				Int("stored_valid", u.ValidRows).
				Int("event_valid", msg.ValidRows).
				Msg("Stored upload does not match event")
			return nil
		}

		log.Info().
			Str("filename", msg.Filename).
			Int("total_rows", msg.TotalRows).
			Int("valid_rows", msg.ValidRows).
			Int("warnings", msg.Warnings).
			Msg("Upload event verified")
		return nil
	}
}
