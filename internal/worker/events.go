package worker

import (
	"log/slog"

	"github.com/cuongbtq/helpdesk-be/internal/broker"
	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

// EventHandler observes settled jobs. It must not block.
type EventHandler interface {
	JobCompleted(job *domain.Job, outcome domain.Outcome)
	JobFailed(job *domain.Job, err error, decision broker.RetryDecision)
}

type logEvents struct {
	logger *slog.Logger
}

// LogEvents returns an EventHandler that logs every settled job
func LogEvents(logger *slog.Logger) EventHandler {
	return logEvents{logger: logger}
}

func (e logEvents) JobCompleted(job *domain.Job, outcome domain.Outcome) {
	attrs := []any{
		slog.String("job_id", job.ID),
		slog.String("queue", job.QueueName),
		slog.String("outcome", outcome.Kind.String()),
	}
	if outcome.Reason != "" {
		attrs = append(attrs, slog.String("reason", outcome.Reason))
	}
	e.logger.Info("Job completed", attrs...)
}

func (e logEvents) JobFailed(job *domain.Job, err error, decision broker.RetryDecision) {
	if decision.Scheduled {
		e.logger.Warn("Job failed, retry scheduled",
			slog.String("job_id", job.ID),
			slog.String("queue", job.QueueName),
			slog.Int("attempt", decision.AttemptsMade),
			slog.Int("max_attempts", job.MaxAttempts),
			slog.Duration("retry_in", decision.Delay),
			slog.Any("error", err),
		)
		return
	}

	e.logger.Error("Job failed permanently",
		slog.String("job_id", job.ID),
		slog.String("queue", job.QueueName),
		slog.Int("attempt", decision.AttemptsMade),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.Any("error", err),
	)
}
