package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/helpdesk-be/internal/app"
	"github.com/cuongbtq/helpdesk-be/internal/broker"
	"github.com/cuongbtq/helpdesk-be/internal/config"
	"github.com/cuongbtq/helpdesk-be/internal/processor"
	"github.com/cuongbtq/helpdesk-be/internal/worker"
	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
	"github.com/cuongbtq/helpdesk-be/internal/worker/storage"
	"github.com/cuongbtq/helpdesk-be/shared/logger"
	"github.com/cuongbtq/helpdesk-be/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		logger.NewDefault().Error("Worker service exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(app.LoggerConfig(&cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	conns, err := app.Connect(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conns.Close()

	jobBroker, err := app.NewBroker(cfg, conns, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to set up job broker: %w", err)
	}

	store := storage.NewStorage(conns.DB.GetDB(), appLogger.Logger)
	processors := map[string]worker.Processor{
		domain.QueueNotifications: processor.NewNotificationProcessor(
			cfg.Notification.WebhookURL,
			cfg.Notification.Timeout,
			appLogger.WithAttrs(slog.String("processor", "notification")).Logger,
		),
		domain.QueueGeoEnrichment: processor.NewGeoProcessor(
			cfg.Geo.BaseURL,
			cfg.Geo.Timeout,
			store,
			appLogger.WithAttrs(slog.String("processor", "geo")).Logger,
		),
		domain.QueueSemanticIndexing: processor.NewSemanticProcessor(
			app.NewEmbedder(&cfg.Embedding, appLogger.Logger),
			store,
			appLogger.WithAttrs(slog.String("processor", "semantic")).Logger,
		),
	}

	workerInstance := worker.NewWorker(appLogger.Logger,
		buildPools(cfg, workerID(), jobBroker, conns.Rabbit, processors, appLogger.WithGroup("pool").Logger)...,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := workerInstance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	if err := workerInstance.Stop(shutdownCtx); err != nil {
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit", slog.Any("error", err))
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

func buildPools(
	cfg *config.Config,
	id string,
	b *broker.Broker,
	source *rabbitmq.Client,
	processors map[string]worker.Processor,
	baseLogger *slog.Logger,
) []*worker.Pool {
	pools := make([]*worker.Pool, 0, len(domain.Queues))
	for _, queue := range domain.Queues {
		qc, _ := cfg.Queue(queue)

		poolCfg := &worker.PoolConfig{
			Queue:             queue,
			WorkerID:          id,
			Concurrency:       qc.Concurrency,
			HeartbeatInterval: cfg.Worker.HeartbeatInterval,
			Logger:            baseLogger,
			Broker:            b,
			Source:            source,
			Processor:         processors[queue],
		}
		if qc.Limiter != nil && qc.Limiter.Max > 0 {
			poolCfg.Limiter = worker.NewLimiter(qc.Limiter.Max, qc.Limiter.Duration)
		}

		pools = append(pools, worker.NewPool(poolCfg))
	}
	return pools
}

func workerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
