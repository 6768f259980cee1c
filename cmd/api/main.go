package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/csv-intake/internal/api/handlers"
	"github.com/dvloznov/csv-intake/internal/api/middleware"
	"github.com/dvloznov/csv-intake/internal/app"
	"github.com/dvloznov/csv-intake/internal/config"
	"github.com/dvloznov/csv-intake/internal/jobs"
	"github.com/dvloznov/csv-intake/internal/jobs/inmemory"
	"github.com/dvloznov/csv-intake/internal/logger"
	"github.com/dvloznov/csv-intake/internal/pipeline"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var (
		configFile = flag.String("config", "", "Path to a config file (yaml, toml or json)")
		port       = flag.String("port", "", "HTTP server port (overrides CSVINTAKE_PORT)")
	)
	flag.Parse()

	bootLog := logger.New()

	cfg, err := config.Load(config.NewViper(), *configFile)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with error")
	}
	log.Info().Msg("Server exited")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close resources")
		}
	}()

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.Options{
		BufferSize: 100,
		Workers:    cfg.JobWorkers,
		MaxRetries: cfg.JobMaxRetries,
		Backoff:    cfg.JobBackoff,
	}, jobStore)

	// Reprocessing needs the raw file; without a store no job can succeed.
	var publisher jobs.Publisher
	if a.Store != nil {
		publisher = jobQueue
	}

	uploads := handlers.NewUploadsHandler(a.Processor, a.Repo, a.Store, publisher, a.Options.Gate, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	mux := http.NewServeMux()
	handlers.Register(mux, uploads, jobsHandler)

	handler := middleware.RequestID(
		middleware.Recovery(log)(
			middleware.Logger(log)(
				middleware.CORS(cfg.CORSOrigins)(
					middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst))(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if publisher != nil {
		g.Go(func() error {
			log.Info().Int("workers", cfg.JobWorkers).Msg("Starting job workers")
			return jobQueue.Start(gctx, pipeline.NewReprocessHandler(a.Processor, a.Store, a.Repo))
		})
	}

	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("backend", cfg.Backend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		if err := jobQueue.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping job queue")
		}
		return nil
	})

	return g.Wait()
}
