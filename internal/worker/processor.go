package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/helpdesk-be/internal/broker"
	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

// processJob claims the job of a task, runs the processor and settles the
// outcome with the broker before acknowledging the delivery
func (p *Pool) processJob(ctx context.Context, t *task) {
	job, err := p.broker.Claim(ctx, t.envelope)
	if err != nil {
		if broker.IsStale(err) {
			p.logger.Info("Dropping stale job message",
				slog.String("job_id", t.envelope.JobID),
				slog.Any("reason", err),
			)
			p.ack(t)
			return
		}
		p.logger.Error("Failed to claim job",
			slog.String("job_id", t.envelope.JobID),
			slog.Any("error", err),
		)
		p.nack(t, true)
		return
	}

	logger := p.logger.With(
		slog.String("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.Int("attempt", job.AttemptsMade+1),
	)

	payload, err := domain.DecodePayload(job.QueueName, job.JobType, job.Payload)
	if err != nil {
		logger.Error("Failed to decode job payload", slog.Any("error", err))
		p.settle(ctx, t, job, domain.Discard(err))
		return
	}

	logger.Info("Processing job")

	heartbeatDone := make(chan struct{})
	go p.sendJobHeartbeat(ctx, job.ID, heartbeatDone)

	start := time.Now()
	outcome := p.runProcessor(ctx, job, payload)
	close(heartbeatDone)

	logger.Debug("Processor finished",
		slog.String("outcome", outcome.Kind.String()),
		slog.Duration("duration", time.Since(start)),
	)

	p.settle(ctx, t, job, outcome)
}

func (p *Pool) runProcessor(ctx context.Context, job *domain.Job, payload domain.Payload) (outcome domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = domain.Retry(fmt.Errorf("processor panicked: %v", r))
		}
	}()
	return p.processor.Process(ctx, job, payload)
}

// settle hands the outcome to the broker. The delivery is acknowledged once
// the broker has recorded the result; if that fails it is requeued so the
// job runs again.
func (p *Pool) settle(ctx context.Context, t *task, job *domain.Job, outcome domain.Outcome) {
	switch outcome.Kind {
	case domain.OutcomeCompleted, domain.OutcomeSkipped:
		if err := p.broker.Complete(ctx, job); err != nil {
			p.logger.Error("Failed to complete job",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
			p.nack(t, true)
			return
		}
		p.ack(t)
		p.events.JobCompleted(job, outcome)

	case domain.OutcomeRetry:
		decision, err := p.broker.Retry(ctx, job, outcome.Err)
		if err != nil {
			p.logger.Error("Failed to schedule job retry",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
			p.nack(t, true)
			return
		}
		p.ack(t)
		p.events.JobFailed(job, outcome.Err, decision)

	default:
		cause := outcome.Err
		if cause == nil {
			cause = errors.New("job discarded")
		}
		if err := p.broker.Fail(ctx, job, cause); err != nil {
			p.logger.Error("Failed to fail job",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
			p.nack(t, true)
			return
		}
		p.ack(t)
		p.events.JobFailed(job, cause, broker.RetryDecision{AttemptsMade: job.AttemptsMade})
	}
}

// sendJobHeartbeat periodically updates the job's heartbeat timestamp
func (p *Pool) sendJobHeartbeat(ctx context.Context, jobID string, done <-chan struct{}) {
	if p.heartbeatInterval <= 0 {
		return
	}

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := p.broker.Heartbeat(ctx, jobID); err != nil {
				p.logger.Warn("Failed to update job heartbeat",
					slog.String("job_id", jobID),
					slog.Any("error", err),
				)
			}
		}
	}
}
