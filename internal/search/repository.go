package search

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
)

// TicketResult is a ticket ranked against a query
type TicketResult struct {
	ID          string  `db:"id" json:"id"`
	Title       string  `db:"title" json:"title"`
	Description string  `db:"description" json:"description"`
	Similarity  float64 `db:"similarity" json:"similarity"`
}

// MessageResult is a message ranked against a query
type MessageResult struct {
	ID         string  `db:"id" json:"id"`
	TicketID   string  `db:"ticket_id" json:"ticketId"`
	Content    string  `db:"content" json:"content"`
	Similarity float64 `db:"similarity" json:"similarity"`
}

// Repository runs cosine similarity queries over stored embeddings
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new Repository instance
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// SimilarTickets returns indexed, non-deleted tickets closest to vector
func (r *Repository) SimilarTickets(ctx context.Context, vector []float32, limit int) ([]TicketResult, error) {
	query := `
		SELECT
			id, title, description,
			1 - (embedding <=> $1) AS similarity
		FROM tickets
		WHERE embedding IS NOT NULL AND deleted_at IS NULL
		ORDER BY embedding <=> $1
		LIMIT $2
	`

	var results []TicketResult
	if err := r.db.SelectContext(ctx, &results, query, pgvector.NewVector(vector), limit); err != nil {
		return nil, fmt.Errorf("failed to search tickets: %w", err)
	}

	return results, nil
}

// SimilarMessages returns indexed messages closest to vector
func (r *Repository) SimilarMessages(ctx context.Context, vector []float32, limit int) ([]MessageResult, error) {
	query := `
		SELECT
			id, ticket_id, content,
			1 - (embedding <=> $1) AS similarity
		FROM messages
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2
	`

	var results []MessageResult
	if err := r.db.SelectContext(ctx, &results, query, pgvector.NewVector(vector), limit); err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	return results, nil
}
