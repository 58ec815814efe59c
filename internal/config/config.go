package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq"`
	Queues       QueuesConfig       `yaml:"queues"`
	Notification NotificationConfig `yaml:"notification"`
	Geo          GeoConfig          `yaml:"geo"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Search       SearchConfig       `yaml:"search"`
	Logging      LoggingConfig      `yaml:"logging"`
	App          AppConfig          `yaml:"app"`
	Worker       WorkerConfig       `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"DATABASE_HOST"`
	Port            int           `yaml:"port" env:"DATABASE_PORT"`
	User            string        `yaml:"user" env:"DATABASE_USER"`
	Password        string        `yaml:"password" env:"DATABASE_PASSWORD"`
	Database        string        `yaml:"database" env:"DATABASE_NAME"`
	SSLMode         string        `yaml:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host" env:"RABBITMQ_HOST"`
	Port       int              `yaml:"port" env:"RABBITMQ_PORT"`
	User       string           `yaml:"user" env:"RABBITMQ_USER"`
	Password   string           `yaml:"password" env:"RABBITMQ_PASSWORD"`
	VHost      string           `yaml:"vhost" env:"RABBITMQ_VHOST"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// QueuesConfig holds the per-queue retry, retention and consumption policy
type QueuesConfig struct {
	Notifications    QueueConfig `yaml:"notifications"`
	GeoEnrichment    QueueConfig `yaml:"geo_enrichment"`
	SemanticIndexing QueueConfig `yaml:"semantic_indexing"`
}

// QueueConfig is the policy of one queue and its worker pool
type QueueConfig struct {
	Attempts         int            `yaml:"attempts"`
	BackoffDelay     time.Duration  `yaml:"backoff_delay"`
	RemoveOnComplete bool           `yaml:"remove_on_complete"`
	RemoveOnFail     bool           `yaml:"remove_on_fail"`
	Concurrency      int            `yaml:"concurrency"`
	Limiter          *LimiterConfig `yaml:"limiter,omitempty"`
}

// LimiterConfig caps job starts to Max per Duration
type LimiterConfig struct {
	Max      int           `yaml:"max"`
	Duration time.Duration `yaml:"duration"`
}

// NotificationConfig holds the outbound webhook settings
type NotificationConfig struct {
	WebhookURL string `yaml:"webhook_url" env:"NOTIFICATION_WEBHOOK_URL"`
	// Timeout of zero leaves the HTTP transport defaults in place.
	Timeout time.Duration `yaml:"timeout"`
}

// GeoConfig holds the IP geolocation lookup settings
type GeoConfig struct {
	BaseURL string        `yaml:"base_url" env:"GEO_LOOKUP_BASE_URL"`
	Timeout time.Duration `yaml:"timeout"`
}

// EmbeddingConfig holds the embedding model settings
type EmbeddingConfig struct {
	ModelName      string `yaml:"model_name" env:"EMBEDDING_MODEL_NAME"`
	ModelsDir      string `yaml:"models_dir" env:"EMBEDDING_MODELS_DIR"`
	AllowDownload  bool   `yaml:"allow_download" env:"EMBEDDING_ALLOW_DOWNLOAD"`
	HubAccessToken string `yaml:"-" env:"HUGGINGFACE_TOKEN"`
	Dimension      int    `yaml:"dimension"`
	// Timeout of zero means inference runs unbounded.
	Timeout time.Duration `yaml:"timeout"`
}

// SearchConfig holds similarity search limits
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" env:"LOG_LEVEL"`
	Format       string `yaml:"format" env:"LOG_FORMAT"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment" env:"APP_ENV"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when a key is absent from the file
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		RabbitMQ: RabbitMQConfig{
			Port:  5672,
			VHost: "/",
			Exchange: ExchangeConfig{
				Name:    "helpdesk.jobs",
				Type:    "direct",
				Durable: true,
			},
			Connection: ConnectionConfig{
				RetryAttempts:     5,
				RetryInterval:     2 * time.Second,
				Heartbeat:         10 * time.Second,
				ConnectionTimeout: 5 * time.Second,
			},
			Publish: PublishConfig{
				RetryAttempts:     2,
				RetryInterval:     100 * time.Millisecond,
				BackoffMultiplier: 2,
			},
		},
		Queues: QueuesConfig{
			Notifications: QueueConfig{
				Attempts:         5,
				BackoffDelay:     5 * time.Second,
				RemoveOnComplete: true,
				RemoveOnFail:     false,
				Concurrency:      5,
				Limiter:          &LimiterConfig{Max: 10, Duration: time.Second},
			},
			GeoEnrichment: QueueConfig{
				Attempts:         3,
				BackoffDelay:     2 * time.Second,
				RemoveOnComplete: true,
				RemoveOnFail:     false,
				Concurrency:      5,
			},
			SemanticIndexing: QueueConfig{
				Attempts:         3,
				BackoffDelay:     5 * time.Second,
				RemoveOnComplete: true,
				RemoveOnFail:     false,
				Concurrency:      2,
			},
		},
		Geo: GeoConfig{
			BaseURL: "http://ip-api.com",
			Timeout: 2 * time.Second,
		},
		Embedding: EmbeddingConfig{
			ModelName:     "sentence-transformers/all-MiniLM-L6-v2",
			ModelsDir:     "models",
			AllowDownload: true,
			Dimension:     384,
		},
		Search: SearchConfig{
			DefaultLimit: 5,
			MaxLimit:     20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		App: AppConfig{
			Name:        "helpdesk",
			Environment: "development",
		},
		Worker: WorkerConfig{
			HeartbeatInterval: 30 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
	}
}

// Load reads the configuration file over the defaults and applies
// environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return config, nil
}

// Queue returns the policy for a named queue
func (c *Config) Queue(name string) (QueueConfig, bool) {
	switch name {
	case domain.QueueNotifications:
		return c.Queues.Notifications, true
	case domain.QueueGeoEnrichment:
		return c.Queues.GeoEnrichment, true
	case domain.QueueSemanticIndexing:
		return c.Queues.SemanticIndexing, true
	default:
		return QueueConfig{}, false
	}
}

// ValidateAPIConfig checks the settings the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Search.DefaultLimit <= 0 {
		return errors.New("search default_limit must be greater than 0")
	}

	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search max_limit %d must be at least default_limit %d", c.Search.MaxLimit, c.Search.DefaultLimit)
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service depends on
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateShared(); err != nil {
		return err
	}

	for _, name := range domain.Queues {
		q, _ := c.Queue(name)
		if q.Concurrency <= 0 {
			return fmt.Errorf("queue %s: concurrency must be greater than 0", name)
		}
		if q.Limiter != nil && (q.Limiter.Max <= 0 || q.Limiter.Duration <= 0) {
			return fmt.Errorf("queue %s: limiter max and duration must be greater than 0", name)
		}
	}

	if c.Notification.WebhookURL == "" {
		return errors.New("notification webhook_url is required")
	}

	if c.Geo.BaseURL == "" {
		return errors.New("geo base_url is required")
	}

	if c.Geo.Timeout <= 0 {
		return errors.New("geo timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return errors.New("worker shutdown_timeout must be greater than 0")
	}

	return nil
}

func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return errors.New("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return errors.New("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return errors.New("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return errors.New("rabbitmq exchange name is required")
	}

	for _, name := range domain.Queues {
		q, _ := c.Queue(name)
		if q.Attempts <= 0 {
			return fmt.Errorf("queue %s: attempts must be greater than 0", name)
		}
		if q.BackoffDelay < 0 {
			return fmt.Errorf("queue %s: backoff_delay must not be negative", name)
		}
	}

	if c.Embedding.ModelName == "" {
		return errors.New("embedding model name is required")
	}

	if c.Embedding.ModelsDir == "" {
		return errors.New("embedding models dir is required")
	}

	if c.Embedding.Dimension <= 0 {
		return errors.New("embedding dimension must be greater than 0")
	}

	return nil
}
