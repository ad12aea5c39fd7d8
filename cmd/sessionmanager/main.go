// Command sessionmanager exposes the control-plane HTTP surface for
// session lifecycle, event recording, and clock offset capture.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/biosig-io/pipeline/internal/apimw"
	"github.com/biosig-io/pipeline/internal/broker"
	"github.com/biosig-io/pipeline/internal/config"
	"github.com/biosig-io/pipeline/internal/db"
	"github.com/biosig-io/pipeline/internal/health"
	"github.com/biosig-io/pipeline/internal/obsmetrics"
	"github.com/biosig-io/pipeline/internal/session"
)

func main() {
	envFile := flag.String("env-file", "", "path to .env file")
	httpAddr := flag.String("http-addr", "", "override HTTP listen address")
	logLevel := flag.String("log-level", "", "override log level")
	flag.Parse()

	var cfg config.SessionManagerConfig
	if err := config.Load(&cfg, config.Overrides{EnvFile: *envFile, HTTPAddr: *httpAddr, LogLevel: *logLevel}); err != nil {
		zerolog.New(os.Stderr).Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "sessionmanager").Logger()

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

	topology := broker.DeclareTopology(cfg.RawExchange, cfg.ProcessingQueue, cfg.MediaQueue, cfg.CorrectionQueue)
	bc, err := broker.Connect(broker.Options{URL: cfg.AMQPURL, Topology: topology, Log: log})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to broker")
	}
	defer bc.Close()

	reg := prometheus.NewRegistry()
	metrics := obsmetrics.NewHTTPMetrics(reg)

	handlers := &session.Handlers{DB: database, Pub: bc, CorrectionQueue: cfg.CorrectionQueue, Log: log}

	r := chi.NewRouter()
	r.Use(apimw.RequestID)
	r.Use(apimw.Logging(log))
	r.Use(apimw.Recoverer)
	r.Use(apimw.Metrics(metrics))
	handlers.Routes(r)

	r.Get("/api/v1/health", health.Handler(map[string]health.Checker{
		"rabbitmq_connected": func(ctx context.Context) bool { return bc.Ready() },
		"db_connected":       func(ctx context.Context) bool { return database.HealthCheck(ctx) == nil },
	}))
	r.Handle("/metrics", obsmetrics.Handler(reg))

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("session manager listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
