package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

// Storage handles the entity writes performed by processors
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// SetUserCountry stores the country resolved for a user
func (s *Storage) SetUserCountry(ctx context.Context, userID, country string) error {
	query := `
		UPDATE users
		SET country = $1,
		    updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, country, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update user country: %w", err)
	}

	return s.expectRow(result, "user", userID)
}

// SetEmbedding overwrites the embedding of a ticket or message
func (s *Storage) SetEmbedding(ctx context.Context, entityType, entityID string, embedding []float32) error {
	var table string
	switch entityType {
	case domain.EntityTicket:
		table = "tickets"
	case domain.EntityMessage:
		table = "messages"
	default:
		return fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidPayload, entityType)
	}

	query := fmt.Sprintf(`UPDATE %s SET embedding = $1 WHERE id = $2`, table)

	result, err := s.db.ExecContext(ctx, query, pgvector.NewVector(embedding), entityID)
	if err != nil {
		return fmt.Errorf("failed to update %s embedding: %w", entityType, err)
	}

	return s.expectRow(result, entityType, entityID)
}

func (s *Storage) expectRow(result interface{ RowsAffected() (int64, error) }, entity, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Entity update - no rows affected",
			slog.String("entity", entity),
			slog.String("id", id),
		)
		return fmt.Errorf("%w: %s %s", domain.ErrEntityNotFound, entity, id)
	}

	return nil
}
