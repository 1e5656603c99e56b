/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the vacation engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (YAML file + VACATION_* environment)
  2. Configure structured logging
  3. Open the SQL store (sqlite3 or postgres) and migrate
  4. Pick the balance locker (Redis when configured, in-process otherwise)
  5. Pick the audit alert sink (Kafka + log when brokers are set, log otherwise)
  6. Register Prometheus metrics
  7. Build the vacation and audit engines, the HTTP router, the scheduler
  8. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional YAML config file

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for in-flight sweeps)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close Kafka, Redis and database connections
  5. Exit

EXAMPLES:
  # SQLite file, defaults
  ./server

  # Postgres + Redis + Kafka
  VACATION_DATABASE_DRIVER=postgres \
  VACATION_DATABASE_URL=postgres://vac:secret@db:5432/vacation?sslmode=disable \
  VACATION_REDIS_URL=redis://redis:6379/0 \
  VACATION_KAFKA_BROKERS=kafka:9092 \
  ./server -config=./config.yaml

SEE ALSO:
  - config/config.go: Configuration fields and defaults
  - api/server.go: Router configuration
  - api/scheduler.go: Accrual and audit jobs
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/warp/vacation-engine/api"
	"github.com/warp/vacation-engine/audit"
	"github.com/warp/vacation-engine/config"
	"github.com/warp/vacation-engine/lock"
	"github.com/warp/vacation-engine/notify"
	"github.com/warp/vacation-engine/store/sqlstore"
	"github.com/warp/vacation-engine/vacation"
)

func main() {
	configPath := flag.String("config", "", "Optional YAML config file")
	flag.Parse()

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
		}
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	// Store
	store, err := sqlstore.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Locker
	var locker vacation.Locker = lock.NewMemory()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		redisLock := lock.NewRedis(client, lock.RedisConfig{}, logger)
		if err := redisLock.Health(ctx); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
		locker = redisLock
		logger.Info("using redis balance lock")
	}

	// Audit alerts
	var notifier audit.Notifier = notify.NewLog(logger)
	if len(cfg.KafkaBrokers) > 0 {
		client, err := notify.NewKafkaClient(cfg.KafkaBrokers, cfg.KafkaAlertTopic)
		if err != nil {
			return fmt.Errorf("kafka client: %w", err)
		}
		defer client.Close()
		if err := notify.EnsureTopic(ctx, client, cfg.KafkaAlertTopic, 1, 1); err != nil {
			logger.Warn("could not ensure alert topic", "topic", cfg.KafkaAlertTopic, "error", err)
		}
		notifier = notify.Multi{
			notifier,
			notify.NewKafka(client, notify.WithTopic(cfg.KafkaAlertTopic), notify.WithLogger(logger)),
		}
		logger.Info("publishing critical audit findings to kafka", "topic", cfg.KafkaAlertTopic)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := vacation.NewMetrics()
	auditMetrics := audit.NewMetrics()
	if err := engineMetrics.Register(reg); err != nil {
		return fmt.Errorf("register engine metrics: %w", err)
	}
	if err := auditMetrics.Register(reg); err != nil {
		return fmt.Errorf("register audit metrics: %w", err)
	}

	// Engines
	engine := vacation.NewEngine(store,
		vacation.WithLocker(locker),
		vacation.WithLogger(logger),
		vacation.WithMetrics(engineMetrics),
	)
	auditor := audit.NewEngine(store, store,
		audit.WithNotifier(notifier),
		audit.WithLogger(logger),
		audit.WithMetrics(auditMetrics),
		audit.WithStaleness(audit.Staleness{
			WarnAfterDays:     cfg.StaleWarningDays,
			CriticalAfterDays: cfg.StaleCriticalDays,
		}),
	)

	// HTTP
	handler := api.NewHandler(engine, auditor, store)
	handler.Logger = logger
	handler.ScenariosEnabled = cfg.Env == config.DefaultEnv
	router := api.NewRouter(handler, reg)

	// Scheduler
	scheduler := api.NewScheduler(engine, auditor, store, logger)
	scheduler.AccrualInterval = cfg.AccrualInterval
	scheduler.AuditInterval = cfg.AuditInterval
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	case err := <-serveErr:
		scheduler.Stop()
		return fmt.Errorf("listen: %w", err)
	}

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
