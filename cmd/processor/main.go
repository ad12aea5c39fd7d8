// Command processor consumes raw sensor payloads from processing_queue,
// decompresses and parses them, and writes the resulting object to
// storage and the database.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/biosig-io/pipeline/internal/broker"
	"github.com/biosig-io/pipeline/internal/config"
	"github.com/biosig-io/pipeline/internal/db"
	"github.com/biosig-io/pipeline/internal/health"
	"github.com/biosig-io/pipeline/internal/objectstore"
	"github.com/biosig-io/pipeline/internal/obsmetrics"
	"github.com/biosig-io/pipeline/internal/processor"
	"github.com/biosig-io/pipeline/internal/svcerr"
)

func main() {
	envFile := flag.String("env-file", "", "path to .env file")
	logLevel := flag.String("log-level", "", "override log level")
	flag.Parse()

	var cfg config.ProcessorConfig
	if err := config.Load(&cfg, config.Overrides{EnvFile: *envFile, LogLevel: *logLevel}); err != nil {
		zerolog.New(os.Stderr).Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "processor").Logger()

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
	if err := store.EnsureBucket(ctx, cfg.RawBucket); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure raw bucket")
	}

	topology := broker.DeclareTopology(cfg.RawExchange, cfg.ProcessingQueue, cfg.MediaQueue, cfg.CorrectionQueue)
	bc, err := broker.Connect(broker.Options{URL: cfg.AMQPURL, Topology: topology, Log: log})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to broker")
	}
	defer bc.Close()

	svc, err := processor.New(store, database, cfg.RawBucket, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init processor")
	}

	reg := prometheus.NewRegistry()
	consumerMetrics := obsmetrics.NewConsumerMetrics(reg)

	consumer := broker.NewConsumer(bc, cfg.ProcessingQueue, cfg.Prefetch, log)

	go func() {
		classify := func(err error) broker.Disposition {
			kind := svcerr.Classify(err)
			consumerMetrics.Observe(cfg.ProcessingQueue, dispositionLabel(kind))
			if kind == svcerr.KindTransient {
				return broker.DispositionRequeue
			}
			return broker.DispositionDrop
		}
		if err := consumer.Run(ctx, svc.Handle, classify); err != nil {
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
		log.Info().Str("addr", cfg.HTTPAddr).Msg("processor health server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	consumer.Stop()
}

func dispositionLabel(kind svcerr.Kind) string {
	if kind == svcerr.KindTransient {
		return "requeue"
	}
	return "drop"
}
