package domain

import (
	"encoding/json"
	"time"
)

// Job is one row of the job ledger
type Job struct {
	ID              string          `db:"id"`
	QueueName       string          `db:"queue_name"`
	JobType         string          `db:"job_type"`
	Payload         json.RawMessage `db:"payload"`
	State           string          `db:"state"`
	AttemptsMade    int             `db:"attempts_made"`
	MaxAttempts     int             `db:"max_attempts"`
	BackoffDelayMs  int64           `db:"backoff_delay_ms"`
	LastError       *string         `db:"last_error"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
	StartedAt       *time.Time      `db:"started_at"`
	FinishedAt      *time.Time      `db:"finished_at"`
	LastHeartbeatAt *time.Time      `db:"last_heartbeat_at"`
}

// Envelope is the message body carried through RabbitMQ. The ledger row
// is the source of truth; the envelope only routes the job to a worker.
type Envelope struct {
	JobID        string          `json:"job_id"`
	Queue        string          `json:"queue"`
	JobType      string          `json:"job_type"`
	AttemptsMade int             `json:"attempts_made"`
	Payload      json.RawMessage `json:"payload"`
}

// EnvelopeFor builds the envelope of a ledger row
func EnvelopeFor(job *Job) Envelope {
	return Envelope{
		JobID:        job.ID,
		Queue:        job.QueueName,
		JobType:      job.JobType,
		AttemptsMade: job.AttemptsMade,
		Payload:      job.Payload,
	}
}
