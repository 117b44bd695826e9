package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"carelink/internal/audit"
	"carelink/internal/casestore"
	"carelink/internal/cursor"
	"carelink/internal/feed"
	"carelink/internal/mapping"
	"carelink/internal/match"
	"carelink/internal/platform/config"
	"carelink/internal/platform/httpserver"
	"carelink/internal/platform/logger"
	"carelink/internal/platform/postgres"
	platformredis "carelink/internal/platform/redis"
	"carelink/internal/registry"
	syncer "carelink/internal/sync"
	synchandler "carelink/internal/sync/handler"
	"carelink/internal/sync/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores default to in-memory so the service runs without Postgres;
	// production deployments set CARELINK_POSTGRES_DSN.
	var (
		caseStore   casestore.Store = casestore.NewMemoryStore()
		cursorStore cursor.Store    = cursor.NewMemoryStore()
		auditStore  audit.Store     = audit.NewMemoryStore()
		locker      syncer.Locker   = syncer.NewMemoryLocker()
	)

	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()

		cases := casestore.NewPostgresStore(db)
		cursors := cursor.NewPostgresStore(db)
		events := audit.NewPostgresStore(db)
		for _, ensure := range []func(context.Context) error{
			cases.EnsureSchema, cursors.EnsureSchema, events.EnsureSchema,
		} {
			if err := ensure(ctx); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
		}
		caseStore, cursorStore, auditStore = cases, cursors, events
		log.Info("using postgres stores")
	}

	if cfg.Redis.URL != "" {
		redisClient, err := platformredis.New(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		locker = syncer.NewRedisLocker(redisClient.Client, cfg.LockTTL)
		log.Info("using redis cycle lock")
	}

	var sinks []audit.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
		log.Info("kafka audit sink enabled", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	auditPub := audit.NewPublisher(auditStore, log, sinks...)
	m := metrics.New()

	endpointsFile, err := config.LoadEndpoints(cfg.EndpointsFile)
	if err != nil {
		return fmt.Errorf("load endpoints: %w", err)
	}
	owners := syncer.NewStaticOwnerResolver(endpointsFile.OwnersByLocation)

	runtimes := make([]*syncer.EndpointRuntime, 0, len(endpointsFile.Endpoints))
	for _, spec := range endpointsFile.Endpoints {
		ep := spec.Endpoint()
		mapper := mapping.New(spec.Mapping, log)
		registryClient := registry.New(ep, cfg.RequestTimeout, log)

		var finder match.Finder
		if spec.Finder != nil {
			finder, err = match.New(*spec.Finder, mapper, registryClient, log)
			if err != nil {
				return fmt.Errorf("endpoint %s: build finder: %w", ep.ID, err)
			}
		}

		runtimes = append(runtimes, &syncer.EndpointRuntime{
			Endpoint: ep,
			Pager:    feed.NewPager(feed.NewClient(ep, cfg.RequestTimeout, log), log),
			Synchronizer: syncer.NewSynchronizer(
				ep, caseStore, registryClient, finder, mapper, owners, auditPub, m, log,
			),
		})
	}

	runner := syncer.NewRunner(runtimes, cursorStore, locker, auditPub, m, log)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	synchandler.New(runner, caseStore, auditStore, log).Register(router)

	go runner.Start(ctx, cfg.PollInterval)

	srv := httpserver.New(cfg.HTTPAddr, router)
	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting syncd",
			zap.String("addr", cfg.HTTPAddr),
			zap.Int("endpoints", len(runtimes)),
			zap.Duration("poll_interval", cfg.PollInterval),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
