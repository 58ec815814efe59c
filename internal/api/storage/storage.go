package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cuongbtq/helpdesk-be/internal/api/domain"
	"github.com/cuongbtq/helpdesk-be/internal/api/model"
	"github.com/cuongbtq/helpdesk-be/shared/postgresql"
)

const uniqueViolation = "23505"

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			id, email, password_hash, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	query := `
		SELECT id, email, password_hash, country, created_at, updated_at
		FROM users
		WHERE email = $1
	`

	err := s.db.GetContext(ctx, &user, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (s *Storage) CreateTicket(ctx context.Context, ticket *model.Ticket) error {
	query := `
		INSERT INTO tickets (
			id, user_id, title, description,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		ticket.ID,
		ticket.UserID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}

	return nil
}

// GetTicket returns a ticket that has not been deleted
func (s *Storage) GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	var ticket model.Ticket
	query := `
		SELECT
			id, user_id, title, description,
			status, created_at, updated_at, deleted_at
		FROM tickets
		WHERE id = $1 AND deleted_at IS NULL
	`

	err := s.db.GetContext(ctx, &ticket, query, ticketID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	return &ticket, nil
}

// SoftDeleteTicket hides a ticket from reads and similarity search
func (s *Storage) SoftDeleteTicket(ctx context.Context, ticketID string) error {
	query := `
		UPDATE tickets
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, ticketID)
	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrTicketNotFound
	}

	return nil
}

func (s *Storage) CreateMessage(ctx context.Context, message *model.Message) error {
	query := `
		INSERT INTO messages (
			id, ticket_id, sender_type, content,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		message.ID,
		message.TicketID,
		message.SenderType,
		message.Content,
		message.CreatedAt,
		message.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}
