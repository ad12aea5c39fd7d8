// Command linker assigns raw data objects to sessions, reacting to
// Postgres NOTIFY and falling back to a periodic sweep.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/biosig-io/pipeline/internal/config"
	"github.com/biosig-io/pipeline/internal/db"
	"github.com/biosig-io/pipeline/internal/health"
	"github.com/biosig-io/pipeline/internal/linker"
)

func main() {
	envFile := flag.String("env-file", "", "path to .env file")
	logLevel := flag.String("log-level", "", "override log level")
	flag.Parse()

	var cfg config.LinkerConfig
	if err := config.Load(&cfg, config.Overrides{EnvFile: *envFile, LogLevel: *logLevel}); err != nil {
		zerolog.New(os.Stderr).Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "linker").Logger()

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

	lookup := &linker.DBSessionLookup{DB: database}
	svc := linker.New(database, lookup, log)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		svc.RunNotifyLoop(ctx, database.ResolveObjectUserDevice)
	}()
	go func() {
		defer wg.Done()
		svc.RunSweep(ctx, cfg.SweepInterval, func(ctx context.Context) ([]linker.UserDevice, error) {
			pairs, err := database.ListUnlinkedPairs(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]linker.UserDevice, len(pairs))
			for i, p := range pairs {
				out[i] = linker.UserDevice{UserID: p.UserID, DeviceID: p.DeviceID}
			}
			return out, nil
		})
	}()

	r := chi.NewRouter()
	r.Get("/api/v1/health", health.Handler(map[string]health.Checker{
		"db_connected": func(ctx context.Context) bool { return database.HealthCheck(ctx) == nil },
	}))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("linker health server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	wg.Wait()
}
