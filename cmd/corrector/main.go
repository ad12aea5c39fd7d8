// Command corrector consumes correction jobs from event_correction_queue
// and rewrites each session's event onsets to device-clock time.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/biosig-io/pipeline/internal/broker"
	"github.com/biosig-io/pipeline/internal/config"
	"github.com/biosig-io/pipeline/internal/corrector"
	"github.com/biosig-io/pipeline/internal/db"
	"github.com/biosig-io/pipeline/internal/health"
	"github.com/biosig-io/pipeline/internal/objectstore"
	"github.com/biosig-io/pipeline/internal/obsmetrics"
	"github.com/biosig-io/pipeline/internal/svcerr"
)

func main() {
	envFile := flag.String("env-file", "", "path to .env file")
	logLevel := flag.String("log-level", "", "override log level")
	flag.Parse()

	var cfg config.CorrectorConfig
	if err := config.Load(&cfg, config.Overrides{EnvFile: *envFile, LogLevel: *logLevel}); err != nil {
		zerolog.New(os.Stderr).Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "corrector").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()
	if err := database.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}

	store, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:  cfg.Endpoint(),
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init object store")
	}

	topology := broker.DeclareTopology(cfg.RawExchange, cfg.ProcessingQueue, cfg.MediaQueue, cfg.CorrectionQueue)
	bc, err := broker.Connect(broker.Options{URL: cfg.AMQPURL, Topology: topology, Log: log})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to broker")
	}
	defer bc.Close()

	svc, err := corrector.New(store, database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init corrector")
	}

	reg := prometheus.NewRegistry()
	consumerMetrics := obsmetrics.NewConsumerMetrics(reg)
	consumer := broker.NewConsumer(bc, cfg.CorrectionQueue, cfg.Prefetch, log)

	handle := func(ctx context.Context, d amqp.Delivery) error {
		jobID, err := uuid.ParseBytes(d.Body)
		if err != nil {
			return svcerr.NewValidation(err)
		}
		job, err := database.GetCorrectionJob(ctx, jobID)
		if err != nil {
			return err
		}
		return svc.RunJob(ctx, jobID, job.SessionID, cfg.RawBucket)
	}

	go func() {
		classify := func(err error) broker.Disposition {
			kind := svcerr.Classify(err)
			if kind == svcerr.KindTransient {
				consumerMetrics.Observe(cfg.CorrectionQueue, "requeue")
				return broker.DispositionRequeue
			}
			consumerMetrics.Observe(cfg.CorrectionQueue, "drop")
			return broker.DispositionDrop
		}
		if err := consumer.Run(ctx, handle, classify); err != nil {
			log.Error().Err(err).Msg("consumer loop exited")
		}
	}()

	r := chi.NewRouter()
	r.Get("/api/v1/health", health.Handler(map[string]health.Checker{
		"rabbitmq_connected": func(ctx context.Context) bool { return bc.Ready() },
		"db_connected":       func(ctx context.Context) bool { return database.HealthCheck(ctx) == nil },
	}))
	r.Handle("/metrics", obsmetrics.Handler(reg))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("corrector health server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	consumer.Stop()
}
