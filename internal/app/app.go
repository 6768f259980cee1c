// Package app builds the collaborators shared by the binaries from a loaded
// configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/csv-intake/internal/config"
	"github.com/dvloznov/csv-intake/internal/dates"
	"github.com/dvloznov/csv-intake/internal/events"
	infraBQ "github.com/dvloznov/csv-intake/internal/infra/bigquery"
	"github.com/dvloznov/csv-intake/internal/infra/sqlite"
	"github.com/dvloznov/csv-intake/internal/pipeline"
	"github.com/dvloznov/csv-intake/internal/rawstore"
	"github.com/dvloznov/csv-intake/internal/records"
	"github.com/dvloznov/csv-intake/internal/rules"
	"github.com/rs/zerolog"
)

// App holds the wired collaborators. Store and Publisher may be nil.
type App struct {
	Config    *config.Config
	Repo      records.Repository
	Store     rawstore.Store
	Publisher events.Publisher
	Options   pipeline.Options
	Processor *pipeline.Processor

	closers []func() error
}

// New connects to the configured backend, raw store and broker.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg}

	repo, err := NewRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Repo = repo
	a.closers = append(a.closers, repo.Close)
	log.Info().Str("backend", cfg.Backend).Msg("Repository initialized")

	switch cfg.RawStore {
	case "disk":
		store, err := rawstore.NewDiskStore(cfg.RawDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create disk store: %w", err)
		}
		a.Store = store
	case "gcs":
		store, err := rawstore.NewGCSStore(ctx, cfg.GCSBucket)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create GCS store: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
	default:
		log.Warn().Msg("No raw store configured - reprocessing will be unavailable")
	}

	if cfg.PublishesEvents() {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
		}
		a.Publisher = pub
		a.closers = append(a.closers, pub.Close)
		log.Info().Str("exchange", cfg.AMQPExchange).Msg("Event publisher initialized")
	}

	opts, err := ProcessorOptions(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	opts.Repo, opts.Store, opts.Publisher = a.Repo, a.Store, a.Publisher
	a.Options = opts
	a.Processor = pipeline.NewProcessor(opts)
	return a, nil
}

// NewRepository opens the configured persistence backend.
func NewRepository(ctx context.Context, cfg *config.Config) (records.Repository, error) {
	switch cfg.Backend {
	case "bigquery":
		repo, err := infraBQ.NewRepository(ctx, infraBQ.Config{
			ProjectID: cfg.BigQueryProject,
			DatasetID: cfg.BigQueryDataset,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create BigQuery repository: %w", err)
		}
		return repo, nil
	case "sqlite":
		repo, err := sqlite.NewRepository(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite repository: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// ProcessorOptions derives pipeline settings without collaborators.
func ProcessorOptions(cfg *config.Config) (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()
	opts.Gate.MaxSizeBytes = cfg.MaxFileSize
	if cfg.Encoding != "" {
		opts.CSV.Encoding = cfg.Encoding
	}
	opts.Dates = dates.Options{AllowFuture: cfg.AllowFutureDates}

	ruleOpts, err := rules.LoadOptions(cfg.RulesFile)
	if err != nil {
		return opts, fmt.Errorf("failed to load rules file: %w", err)
	}
	opts.Rules = ruleOpts
	return opts, nil
}

// Close releases every collaborator, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
