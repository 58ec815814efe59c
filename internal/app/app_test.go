package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/helpdesk-be/internal/config"
	"github.com/cuongbtq/helpdesk-be/internal/embedding"
)

func TestPostgresConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Host = "db.internal"
	cfg.Database.Password = "s3cret"

	pg := PostgresConfig(&cfg.Database)
	assert.Equal(t, "db.internal", pg.Host)
	assert.Equal(t, "s3cret", pg.Password)
	assert.Equal(t, cfg.Database.MaxOpenConns, pg.MaxOpenConns)
}

func TestRabbitMQConfig(t *testing.T) {
	cfg := config.Default()
	cfg.RabbitMQ.Publish.RetryAttempts = 4
	cfg.RabbitMQ.Publish.BackoffMultiplier = 1.5

	rc := RabbitMQConfig(&cfg.RabbitMQ)
	assert.Equal(t, "helpdesk.jobs", rc.ExchangeName)
	assert.True(t, rc.ExchangeDurable)
	assert.Equal(t, 4, rc.PublishRetries)
	assert.Equal(t, 1.5, rc.PublishBackoffMult)
}

func TestLoggerConfig(t *testing.T) {
	lc := LoggerConfig(&config.LoggingConfig{Level: "debug", Format: "json", EnableCaller: true})
	assert.Equal(t, "debug", lc.Level)
	assert.True(t, lc.EnableSource)
	assert.Equal(t, time.RFC3339, lc.TimeFormat)
}

func TestTransformerConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.ModelsDir = "/srv/models"
	cfg.Embedding.AllowDownload = false
	cfg.Embedding.HubAccessToken = "hf_token"

	tc := TransformerConfig(&cfg.Embedding)
	assert.Equal(t, embedding.DefaultModelName, tc.ModelName)
	assert.Equal(t, "/srv/models", tc.ModelsDir)
	assert.False(t, tc.AllowDownload)
	assert.Equal(t, "hf_token", tc.HubAccessToken)
}

func TestNewEmbedder_LoadsLazily(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.ModelsDir = t.TempDir()
	cfg.Embedding.AllowDownload = false

	provider := NewEmbedder(&cfg.Embedding, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Zero(t, provider.Loads())

	_, err := provider.Embed(context.Background(), "VPN keeps disconnecting")
	var loadErr *embedding.ModelLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Zero(t, provider.Loads())
}
