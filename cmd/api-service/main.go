package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/helpdesk-be/internal/api/handler"
	"github.com/cuongbtq/helpdesk-be/internal/api/router"
	"github.com/cuongbtq/helpdesk-be/internal/api/storage"
	"github.com/cuongbtq/helpdesk-be/internal/app"
	"github.com/cuongbtq/helpdesk-be/internal/config"
	"github.com/cuongbtq/helpdesk-be/internal/producer"
	"github.com/cuongbtq/helpdesk-be/internal/search"
	"github.com/cuongbtq/helpdesk-be/shared/logger"
	"github.com/cuongbtq/helpdesk-be/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		logger.NewDefault().Error("API service exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(app.LoggerConfig(&cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
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

	jobProducer := producer.New(jobBroker, appLogger.With(slog.String("component", "producer")).Logger)
	embedder := app.NewEmbedder(&cfg.Embedding, appLogger.Logger)
	searchService := search.NewService(
		embedder,
		search.NewRepository(conns.DB.GetDB()),
		cfg.Search.DefaultLimit,
		cfg.Search.MaxLimit,
		appLogger.Logger,
	)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:   appLogger.Logger,
		Store:    storage.NewStorage(conns.DB),
		Producer: jobProducer,
		Jobs:     jobBroker,
		Search:   searchService,
		Checks: map[string]handler.HealthCheck{
			"postgres": conns.DB.HealthCheck,
			"rabbitmq": func(context.Context) error {
				if !conns.Rabbit.IsConnected() {
					return rabbitmq.ErrNotConnected
				}
				return nil
			},
		},
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		return err
	}

	// Background enqueues started by the last requests still need the broker.
	waitForProducer(ctx, jobProducer, appLogger.Logger)

	appLogger.Info("Server shutdown complete")
	return nil
}

func waitForProducer(ctx context.Context, p *producer.Producer, baseLogger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		baseLogger.Warn("Background enqueues still running at shutdown")
	}
}
