package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

// Embedder turns text into a normalized embedding
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingStore overwrites the embedding of a ticket or message
type EmbeddingStore interface {
	SetEmbedding(ctx context.Context, entityType, entityID string, embedding []float32) error
}

// SemanticProcessor indexes tickets and messages for similarity search
type SemanticProcessor struct {
	embedder Embedder
	store    EmbeddingStore
	logger   *slog.Logger
}

// NewSemanticProcessor creates the processor
func NewSemanticProcessor(embedder Embedder, store EmbeddingStore, logger *slog.Logger) *SemanticProcessor {
	return &SemanticProcessor{
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

func (p *SemanticProcessor) Process(ctx context.Context, job *domain.Job, payload domain.Payload) domain.Outcome {
	s, ok := payload.(domain.SemanticJob)
	if !ok {
		return domain.Discard(fmt.Errorf("%w: expected semantic payload, got %T", domain.ErrInvalidPayload, payload))
	}

	logger := p.logger.With(
		slog.String("job_id", job.ID),
		slog.String("entity_type", s.EntityType),
		slog.String("entity_id", s.EntityID),
	)

	embedding, err := p.embedder.Embed(ctx, s.Text)
	if err != nil {
		logger.Error("Failed to generate embedding", slog.Any("error", err))
		return domain.Retry(err)
	}

	if err := p.store.SetEmbedding(ctx, s.EntityType, s.EntityID, embedding); err != nil {
		if errors.Is(err, domain.ErrEntityNotFound) {
			logger.Info("Entity no longer exists, nothing to index")
			return domain.Skipped("entity not found")
		}
		if errors.Is(err, domain.ErrInvalidPayload) {
			return domain.Discard(err)
		}
		return domain.Retry(err)
	}

	logger.Info("Embedding updated", slog.Int("dimension", len(embedding)))
	return domain.Completed()
}
