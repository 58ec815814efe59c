package broker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

// ListFilter selects a page of jobs
type ListFilter struct {
	Queue    string
	State    string
	PageSize int
	Cursor   *Cursor
}

// Cursor is the position after the last job of the previous page
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}

const jobColumns = `
	id, queue_name, job_type, payload, state, attempts_made, max_attempts,
	backoff_delay_ms, last_error, created_at, updated_at, started_at,
	finished_at, last_heartbeat_at`

// PostgresLedger keeps the job ledger in the jobs table
type PostgresLedger struct {
	db *sqlx.DB
}

// NewPostgresLedger creates a ledger over db
func NewPostgresLedger(db *sqlx.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Insert(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			id, queue_name, job_type, payload, state,
			attempts_made, max_attempts, backoff_delay_ms,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10
		)
	`

	_, err := l.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.QueueName,
		job.JobType,
		string(job.Payload),
		job.State,
		job.AttemptsMade,
		job.MaxAttempts,
		job.BackoffDelayMs,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// Claim moves a waiting or active job to active
func (l *PostgresLedger) Claim(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET state = $1,
		    started_at = COALESCE(started_at, NOW()),
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE id = $2
		  AND state IN ($3, $1)
		RETURNING ` + jobColumns

	var job domain.Job
	err := l.db.GetContext(ctx, &job, query, domain.JobStateActive, jobID, domain.JobStateWaiting)
	if err == nil {
		return &job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	// Tell a purged job apart from a finished one
	var state string
	err = l.db.GetContext(ctx, &state, `SELECT state FROM jobs WHERE id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job state: %w", err)
	}
	return nil, domain.ErrJobFinished
}

func (l *PostgresLedger) Heartbeat(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET last_heartbeat_at = NOW()
		WHERE id = $1 AND state = $2
	`
	return l.exec(ctx, "update heartbeat", query, jobID, domain.JobStateActive)
}

func (l *PostgresLedger) MarkCompleted(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET state = $2,
		    finished_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`
	return l.exec(ctx, "mark job completed", query, jobID, domain.JobStateCompleted)
}

func (l *PostgresLedger) MarkWaiting(ctx context.Context, jobID string, attemptsMade int, lastError string) error {
	query := `
		UPDATE jobs
		SET state = $2,
		    attempts_made = $3,
		    last_error = $4,
		    updated_at = NOW()
		WHERE id = $1
		  AND $3 <= max_attempts
	`
	return l.exec(ctx, "mark job waiting", query, jobID, domain.JobStateWaiting, attemptsMade, lastError)
}

// MarkActive puts a job back into the attempt it is running
func (l *PostgresLedger) MarkActive(ctx context.Context, jobID string, attemptsMade int) error {
	query := `
		UPDATE jobs
		SET state = $2,
		    attempts_made = $3,
		    updated_at = NOW()
		WHERE id = $1
	`
	return l.exec(ctx, "mark job active", query, jobID, domain.JobStateActive, attemptsMade)
}

func (l *PostgresLedger) MarkFailed(ctx context.Context, jobID string, attemptsMade int, lastError string) error {
	query := `
		UPDATE jobs
		SET state = $2,
		    attempts_made = LEAST($3, max_attempts),
		    last_error = $4,
		    finished_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`
	return l.exec(ctx, "mark job failed", query, jobID, domain.JobStateFailed, attemptsMade, lastError)
}

// ResetFailed moves a failed job back to waiting with no attempts made
func (l *PostgresLedger) ResetFailed(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET state = $2,
		    attempts_made = 0,
		    last_error = NULL,
		    started_at = NULL,
		    finished_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND state = $3
		RETURNING ` + jobColumns

	var job domain.Job
	err := l.db.GetContext(ctx, &job, query, jobID, domain.JobStateWaiting, domain.JobStateFailed)
	if err == nil {
		return &job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to reset job: %w", err)
	}

	if _, err := l.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return nil, domain.ErrJobNotFailed
}

func (l *PostgresLedger) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	err := l.db.GetContext(ctx, &job, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// List returns up to PageSize+1 jobs so callers can tell whether another
// page exists
func (l *PostgresLedger) List(ctx context.Context, filter ListFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Queue != "" {
		query += fmt.Sprintf(" AND queue_name = $%d", argIdx)
		args = append(args, filter.Queue)
		argIdx++
	}

	if filter.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, filter.State)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := l.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

func (l *PostgresLedger) Delete(ctx context.Context, jobID string) error {
	return l.exec(ctx, "delete job", `DELETE FROM jobs WHERE id = $1`, jobID)
}

func (l *PostgresLedger) exec(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if rows == 0 {
		return domain.ErrJobNotFound
	}

	return nil
}
