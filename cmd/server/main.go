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

	"go.uber.org/zap"

	"github.com/banking/txn-monitoring-service/internal/api"
	"github.com/banking/txn-monitoring-service/internal/cache"
	"github.com/banking/txn-monitoring-service/internal/config"
	"github.com/banking/txn-monitoring-service/internal/events"
	"github.com/banking/txn-monitoring-service/internal/ingest"
	"github.com/banking/txn-monitoring-service/internal/metrics"
	"github.com/banking/txn-monitoring-service/internal/narrative"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
	"github.com/banking/txn-monitoring-service/internal/repository/postgres"
	"github.com/banking/txn-monitoring-service/internal/scenario"
	"github.com/banking/txn-monitoring-service/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "txn-monitoring-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Initialize Logger
	log, err := logger.New(cfg.Telemetry.ServiceName, cfg.Telemetry.Environment, cfg.Telemetry.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Tracing
	tracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown failed", logger.ErrorField(err))
		}
	}()

	// 4. Database
	if cfg.Database.MigrationsEnabled {
		if err := postgres.Migrate(cfg.Database, log); err != nil {
			return err
		}
	}
	pool, err := postgres.Connect(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	// 5. Redis reference cache
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	referenceStore := postgres.NewReferenceStore(pool, log)
	refs := cache.NewReferenceCache(referenceStore, redisClient, cfg.Redis.KeyPrefix, cfg.Redis.ReferenceCacheTTL, log)

	// 6. Metrics
	m := metrics.New(nil)

	// 7. Transaction partitions
	transactions := postgres.NewTransactionStore(pool, log)
	partitions := ingest.NewPartitionStore(cfg.Pipeline.PartitionDir, log)
	fetcher := ingest.NewFetcher(transactions, transactions, partitions,
		cfg.Pipeline.BatchSize, cfg.Pipeline.FetchWorkers, 0, m, log)

	// 8. Detection pipeline
	opts := []scenario.Option{scenario.WithRecorder(m)}
	if cfg.Narrative.Enabled {
		opts = append(opts, scenario.WithNarrator(narrative.NewClient(cfg.Narrative, log)))
	}

	var publisher scenario.EventPublisher
	if cfg.Kafka.Enabled {
		producer, err := events.NewSyncProducer(cfg.Kafka)
		if err != nil {
			return err
		}
		p := events.NewPublisher(producer, cfg.Kafka, log)
		defer func() {
			if err := p.Close(); err != nil {
				log.Warn("kafka producer close failed", logger.ErrorField(err))
			}
		}()
		publisher = p
		opts = append(opts, scenario.WithEvents(p))
	}

	orchestrator := scenario.NewOrchestrator(
		refs,
		partitions,
		postgres.NewSink(pool, cfg.Pipeline.PersistChunkSize, log),
		scenario.DefaultRegistry(cfg.Pipeline),
		cfg.Pipeline,
		cfg.Scoring,
		log,
		opts...,
	)
	runner := scenario.NewJobRunner(orchestrator, fetcher, postgres.NewJobStore(pool), publisher, cfg.Pipeline, log)

	// 9. HTTP API
	e := api.NewEcho(*cfg, m, log)
	handler := api.NewHandler(runner, cfg.Server.JobTimeout, log,
		api.WithCheck("postgres", pool.Ping),
		api.WithCheck("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		api.WithCache(refs),
	)
	handler.Register(e, api.APIMiddleware(cfg.Security)...)

	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 10. Start Servers (Graceful Shutdown)
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	errCh := make(chan error, 2)

	go func() {
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	log.Info("server started",
		zap.String("addr", serverAddr),
		zap.Int("metrics_port", cfg.Server.MetricsPort),
		zap.Bool("kafka", cfg.Kafka.Enabled),
		zap.Bool("narrative", cfg.Narrative.Enabled),
	)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		log.Error("server error", logger.ErrorField(serveErr))
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("api server shutdown failed", logger.ErrorField(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown failed", logger.ErrorField(err))
	}

	log.Info("server exited properly")
	return serveErr
}
