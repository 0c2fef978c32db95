package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"wisdom/api/internal/app"
	"wisdom/api/internal/config"
	"wisdom/api/internal/export"
	"wisdom/api/internal/logger"
	"wisdom/api/internal/metrics"
	"wisdom/api/internal/outbox"
	"wisdom/api/internal/scheduler"
	"wisdom/api/internal/search"
	"wisdom/api/internal/session"
	"wisdom/api/internal/storage"
	"wisdom/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("wisdom-api")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.NewWithWriter(os.Stdout, "wisdom-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.OpenWithRetry(ctx, cfg.DatabaseURL, cfg.DBConnectWait)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	migrations, err := store.Migrations(cfg.MigrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("load migrations")
	}
	if err := store.ApplyMigrations(ctx, db, migrations); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	dataStore := store.NewPostgresStore(db)
	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, log)

	if !export.ChromeAvailable() {
		log.Warn().Msg("chrome not found, PDF export will answer 503")
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithSearch(searchService),
		app.WithExporter(export.NewService(nil)),
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Info().Msg("using redis for refresh sessions")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		opts = append(opts, app.WithSessionStore(redisStore), app.WithReadinessCheck("redis", redisStore.Ping))
	} else {
		log.Info().Msg("using postgres for refresh sessions")
	}

	if cfg.StorageEnabled() {
		archive, err := storage.NewArchive(ctx, storage.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			// archiving answers 503 until the next restart
			log.Error().Err(err).Msg("export archive unavailable")
		} else {
			opts = append(opts, app.WithArchive(archive))
		}
	}

	service := app.New(cfg, dataStore, opts...)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)

	var workers sync.WaitGroup
	if cfg.RunWorkers {
		startWorkers(ctx, &workers, cfg, db, searchService, log)
	}

	sweepStop := make(chan struct{})
	go httpServer.Limiter().SweepEvery(time.Minute, sweepStop)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("wisdom api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	close(sweepStop)
	workers.Wait()
}

// startWorkers runs the outbox drain and the scheduled full reindex until ctx is done.
func startWorkers(ctx context.Context, wg *sync.WaitGroup, cfg config.Config, db *sql.DB, searchService *search.Service, log zerolog.Logger) {
	worker := outbox.NewWorker(db, searchService, outbox.Config{
		BatchSize: cfg.OutboxBatch,
		Interval:  cfg.OutboxInterval,
	}, log)

	reindex, err := scheduler.New("search-reindex", cfg.ReindexCron, func(ctx context.Context) error {
		count, err := searchService.ReindexAllFromPG(ctx)
		metrics.ObserveReindex(err)
		if err != nil {
			return err
		}
		log.Info().Int("threads", count).Msg("search reindex complete")
		return nil
	}, log)
	if err != nil {
		log.Fatal().Err(err).Str("expr", cfg.ReindexCron).Msg("invalid reindex schedule")
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("outbox worker stopped")
		}
	}()
	go func() {
		defer wg.Done()
		if err := reindex.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("reindex scheduler stopped")
		}
	}()
}
