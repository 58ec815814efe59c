package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
	"github.com/cuongbtq/helpdesk-be/shared/rabbitmq"
)

// Publisher sends a message body to the queue bound to routingKey
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// TopologyDeclarer creates a queue and its delay tiers
type TopologyDeclarer interface {
	DeclareQueue(topology rabbitmq.QueueTopology) error
}

// Ledger persists job rows and their state transitions
type Ledger interface {
	Insert(ctx context.Context, job *domain.Job) error
	Claim(ctx context.Context, jobID string) (*domain.Job, error)
	Heartbeat(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkWaiting(ctx context.Context, jobID string, attemptsMade int, lastError string) error
	MarkActive(ctx context.Context, jobID string, attemptsMade int) error
	MarkFailed(ctx context.Context, jobID string, attemptsMade int, lastError string) error
	ResetFailed(ctx context.Context, jobID string) (*domain.Job, error)
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Job, error)
	Delete(ctx context.Context, jobID string) error
}

// RetryDecision describes what Retry did with a failed attempt
type RetryDecision struct {
	AttemptsMade int
	Scheduled    bool
	Delay        time.Duration
}

// Broker is the job broker. The ledger holds job state and attempt counts;
// RabbitMQ carries envelopes to workers and holds retries in delay queues
// until their backoff expires.
type Broker struct {
	ledger    Ledger
	publisher Publisher
	policies  map[string]Policy
	logger    *slog.Logger
}

// New creates a broker over the given ledger, publisher and queue policies
func New(ledger Ledger, publisher Publisher, policies map[string]Policy, logger *slog.Logger) *Broker {
	return &Broker{
		ledger:    ledger,
		publisher: publisher,
		policies:  policies,
		logger:    logger,
	}
}

// Policy returns the policy of a queue
func (b *Broker) Policy(queue string) (Policy, bool) {
	p, ok := b.policies[queue]
	return p, ok
}

// Setup declares every queue and its delay tiers
func (b *Broker) Setup(declarer TopologyDeclarer) error {
	for queue, policy := range b.policies {
		if err := declarer.DeclareQueue(policy.Topology(queue)); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
	}
	return nil
}

// Enqueue records a job on the payload's queue and publishes it. Any
// failure to reach the ledger or RabbitMQ wraps domain.ErrBrokerUnavailable.
func (b *Broker) Enqueue(ctx context.Context, payload domain.Payload, opts ...Option) (string, error) {
	queue := payload.Queue()
	policy, ok := b.policies[queue]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownQueue, queue)
	}

	if err := payload.Validate(); err != nil {
		return "", err
	}

	options := enqueueOptions{attempts: policy.Attempts}
	for _, opt := range opts {
		opt(&options)
	}
	if options.attempts <= 0 || options.attempts > policy.Attempts {
		options.attempts = policy.Attempts
	}
	if options.jobID == "" {
		options.jobID = uuid.NewString()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:             options.jobID,
		QueueName:      queue,
		JobType:        payload.JobType(),
		Payload:        raw,
		State:          domain.JobStateWaiting,
		AttemptsMade:   0,
		MaxAttempts:    options.attempts,
		BackoffDelayMs: policy.BackoffDelay.Milliseconds(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := b.ledger.Insert(ctx, job); err != nil {
		return "", fmt.Errorf("%w: failed to record job: %w", domain.ErrBrokerUnavailable, err)
	}

	if err := b.publish(ctx, queue, job); err != nil {
		// Without a message the row would sit in waiting forever.
		if delErr := b.ledger.Delete(context.WithoutCancel(ctx), job.ID); delErr != nil {
			b.logger.Error("Failed to remove unpublished job",
				slog.String("job_id", job.ID),
				slog.Any("error", delErr),
			)
		}
		return "", fmt.Errorf("%w: %w", domain.ErrBrokerUnavailable, err)
	}

	b.logger.Debug("Job enqueued",
		slog.String("job_id", job.ID),
		slog.String("queue", queue),
		slog.String("job_type", job.JobType),
	)

	return job.ID, nil
}

// Claim marks the job of an envelope active. A redelivered envelope of an
// active job is claimed again. domain.ErrJobNotFound and
// domain.ErrJobFinished mean the envelope is stale and must be dropped.
func (b *Broker) Claim(ctx context.Context, envelope domain.Envelope) (*domain.Job, error) {
	return b.ledger.Claim(ctx, envelope.JobID)
}

// Heartbeat records that an active job is still running
func (b *Broker) Heartbeat(ctx context.Context, jobID string) error {
	return b.ledger.Heartbeat(ctx, jobID)
}

// Complete settles a successful job according to removeOnComplete
func (b *Broker) Complete(ctx context.Context, job *domain.Job) error {
	policy := b.policies[job.QueueName]
	if policy.RemoveOnComplete {
		if err := b.ledger.Delete(ctx, job.ID); err != nil {
			return fmt.Errorf("failed to remove completed job: %w", err)
		}
		return nil
	}

	if err := b.ledger.MarkCompleted(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Retry counts a failed attempt. While attempts remain the job waits in the
// delay queue for its backoff, otherwise it is failed for good.
func (b *Broker) Retry(ctx context.Context, job *domain.Job, cause error) (RetryDecision, error) {
	attempts := min(job.AttemptsMade+1, job.MaxAttempts)
	decision := RetryDecision{AttemptsMade: attempts}

	delay, ok := b.retryDelay(job.QueueName, attempts)
	if attempts >= job.MaxAttempts || !ok {
		return decision, b.exhaust(ctx, job, attempts, cause)
	}

	if err := b.ledger.MarkWaiting(ctx, job.ID, attempts, errorText(cause)); err != nil {
		return decision, fmt.Errorf("failed to schedule retry: %w", err)
	}

	prevAttempts, prevState := job.AttemptsMade, job.State
	job.AttemptsMade = attempts
	job.State = domain.JobStateWaiting
	if err := b.publish(ctx, rabbitmq.DelayQueueName(job.QueueName, delay), job); err != nil {
		// The caller requeues the delivery, so the row goes back to the
		// attempt that is still running.
		job.AttemptsMade, job.State = prevAttempts, prevState
		if rbErr := b.ledger.MarkActive(context.WithoutCancel(ctx), job.ID, prevAttempts); rbErr != nil {
			b.logger.Error("Failed to roll back retry",
				slog.String("job_id", job.ID),
				slog.Any("error", rbErr),
			)
		}
		return decision, fmt.Errorf("%w: %w", domain.ErrBrokerUnavailable, err)
	}

	decision.Scheduled = true
	decision.Delay = delay
	return decision, nil
}

// retryDelay picks the declared delay tier for a job that has made the
// given attempts. Jobs enqueued under an older policy with more attempts
// use the longest tier. ok is false when the queue has no tiers.
func (b *Broker) retryDelay(queue string, attempts int) (time.Duration, bool) {
	policy := b.policies[queue]
	tier := min(attempts, policy.Attempts-1)
	if tier < 1 {
		return 0, false
	}
	return policy.Delay(tier), true
}

// Fail counts the attempt and fails the job without retrying
func (b *Broker) Fail(ctx context.Context, job *domain.Job, cause error) error {
	return b.exhaust(ctx, job, min(job.AttemptsMade+1, job.MaxAttempts), cause)
}

func (b *Broker) exhaust(ctx context.Context, job *domain.Job, attempts int, cause error) error {
	job.AttemptsMade = attempts
	job.State = domain.JobStateFailed

	if b.policies[job.QueueName].RemoveOnFail {
		if err := b.ledger.Delete(ctx, job.ID); err != nil {
			return fmt.Errorf("failed to remove failed job: %w", err)
		}
		return nil
	}

	if err := b.ledger.MarkFailed(ctx, job.ID, attempts, errorText(cause)); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// Requeue gives a retained failed job a fresh set of attempts
func (b *Broker) Requeue(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := b.ledger.ResetFailed(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := b.publish(ctx, job.QueueName, job); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBrokerUnavailable, err)
	}

	b.logger.Info("Job requeued",
		slog.String("job_id", job.ID),
		slog.String("queue", job.QueueName),
	)
	return job, nil
}

// Get returns one job
func (b *Broker) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return b.ledger.Get(ctx, jobID)
}

// List returns jobs newest first
func (b *Broker) List(ctx context.Context, filter ListFilter) ([]domain.Job, error) {
	return b.ledger.List(ctx, filter)
}

// Delete purges a job that reached a terminal state
func (b *Broker) Delete(ctx context.Context, jobID string) error {
	job, err := b.ledger.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !domain.IsTerminalState(job.State) {
		return domain.ErrJobInProgress
	}
	return b.ledger.Delete(ctx, jobID)
}

func (b *Broker) publish(ctx context.Context, routingKey string, job *domain.Job) error {
	body, err := json.Marshal(domain.EnvelopeFor(job))
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := b.publisher.Publish(ctx, routingKey, body); err != nil {
		return fmt.Errorf("failed to publish job %s: %w", job.ID, err)
	}
	return nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsStale reports whether a claim error means the envelope should be dropped
func IsStale(err error) bool {
	return errors.Is(err, domain.ErrJobNotFound) || errors.Is(err, domain.ErrJobFinished)
}
