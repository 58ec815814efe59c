// Package app builds the long-lived components both services share from
// the loaded configuration.
package app

import (
	"log/slog"
	"time"

	"github.com/cuongbtq/helpdesk-be/internal/broker"
	"github.com/cuongbtq/helpdesk-be/internal/config"
	"github.com/cuongbtq/helpdesk-be/internal/embedding"
	"github.com/cuongbtq/helpdesk-be/shared/logger"
	"github.com/cuongbtq/helpdesk-be/shared/postgresql"
	"github.com/cuongbtq/helpdesk-be/shared/rabbitmq"
)

// LoggerConfig maps the logging section onto the logger package
func LoggerConfig(cfg *config.LoggingConfig) *logger.Config {
	return &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}
}

// PostgresConfig maps the database section onto the PostgreSQL client
func PostgresConfig(cfg *config.DatabaseConfig) *postgresql.Config {
	return &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
}

// RabbitMQConfig maps the rabbitmq section onto the RabbitMQ client
func RabbitMQConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
}

// Connections holds the process-wide database and broker handles
type Connections struct {
	DB     *postgresql.Client
	Rabbit *rabbitmq.Client
}

// Connect opens the database and broker connections. A partially opened
// set is closed again on failure.
func Connect(cfg *config.Config, log *slog.Logger) (*Connections, error) {
	db, err := postgresql.NewClient(PostgresConfig(&cfg.Database), log)
	if err != nil {
		return nil, err
	}
	log.Info("Database connection established")

	rabbit, err := rabbitmq.NewClient(RabbitMQConfig(&cfg.RabbitMQ), log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("RabbitMQ connection established")

	return &Connections{DB: db, Rabbit: rabbit}, nil
}

// Close closes the broker connection, then the database
func (c *Connections) Close() {
	if c.Rabbit != nil {
		_ = c.Rabbit.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}

// NewBroker creates the job broker over the connections and declares every
// queue with its delay tiers
func NewBroker(cfg *config.Config, conns *Connections, log *slog.Logger) (*broker.Broker, error) {
	b := broker.New(
		broker.NewPostgresLedger(conns.DB.GetDB()),
		conns.Rabbit,
		broker.PoliciesFromConfig(cfg),
		log,
	)
	if err := b.Setup(conns.Rabbit); err != nil {
		return nil, err
	}
	return b, nil
}

// TransformerConfig maps the embedding section onto the transformer loader
func TransformerConfig(cfg *config.EmbeddingConfig) embedding.TransformerConfig {
	return embedding.TransformerConfig{
		ModelsDir:      cfg.ModelsDir,
		ModelName:      cfg.ModelName,
		AllowDownload:  cfg.AllowDownload,
		HubAccessToken: cfg.HubAccessToken,
	}
}

// NewEmbedder creates the embedding provider. The model loads on first use.
func NewEmbedder(cfg *config.EmbeddingConfig, log *slog.Logger) *embedding.Provider {
	return embedding.NewProvider(
		embedding.TransformerLoader(TransformerConfig(cfg)),
		embedding.WithTimeout(cfg.Timeout),
		embedding.WithLogger(log),
	)
}
