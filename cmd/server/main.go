package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/parkwait/internal/api"
	"github.com/neexbeast/parkwait/internal/cache"
	"github.com/neexbeast/parkwait/internal/config"
	"github.com/neexbeast/parkwait/internal/identity"
	"github.com/neexbeast/parkwait/internal/ingest"
	"github.com/neexbeast/parkwait/internal/scheduler"
	"github.com/neexbeast/parkwait/internal/storage"
	"github.com/neexbeast/parkwait/internal/themeparks"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Document store (postgres runs migrations on open).
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Storage.Type, err)
	}
	defer func() { _ = store.Close() }()
	log.Info("document store ready", "type", cfg.Storage.Type)

	// Optional Redis identity cache.
	var (
		resolverOpts = []identity.Option{identity.WithMaxAttempts(cfg.Ingestion.ResolveMaxAttempts)}
		redisPinger  api.Pinger
	)
	if cfg.Cache.RedisURL != "" {
		redisClient, err := cache.Connect(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		resolverOpts = append(resolverOpts, identity.WithCache(cache.NewIdentityCache(redisClient, cfg.Cache.TTL)))
		redisPinger = &redisPingerAdapter{client: redisClient}
		log.Info("identity cache enabled", "ttl", cfg.Cache.TTL)
	}

	// Wire dependencies.
	client := themeparks.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, cfg.Upstream.Timeout)
	fetcher := ingest.NewFetcher(client, cfg.Ingestion.ResortName, log)
	resolver := identity.NewResolver(store, log, resolverOpts...)
	pipeline := ingest.NewPipeline(fetcher, resolver, storage.NewTimeSeries(store), ingest.Options{
		OperatingThreshold: cfg.Ingestion.OperatingThreshold,
		SnapshotCollection: cfg.Ingestion.SnapshotCollection,
		SourceTag:          cfg.Ingestion.SourceTag,
	}, log)

	sched := scheduler.New(pipeline, scheduler.Config{
		Default: cfg.Schedule.DefaultInterval,
		Short:   cfg.Schedule.ShortInterval,
		Long:    cfg.Schedule.LongInterval,
	}, log)

	router := api.NewRouter(api.NewHandlers(sched, log), cfg.Server.AdminToken, store, redisPinger, log)

	port := strconv.Itoa(cfg.Server.Port)
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("health server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	schedDone := make(chan error, 1)
	go func() {
		log.Info("ingestion scheduler starting", "resort", cfg.Ingestion.ResortName, "api", client.BaseURL())
		schedDone <- sched.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		stop()
		<-schedDone
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err := <-schedDone; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}

// redisPingerAdapter adapts redis.Client to api.Pinger.
type redisPingerAdapter struct {
	client *redis.Client
}

func (r *redisPingerAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
