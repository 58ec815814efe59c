package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

// task is a delivery whose envelope has been decoded
type task struct {
	delivery amqp.Delivery
	envelope domain.Envelope
}

// setupConsumer starts consuming the pool's queue. Prefetch equals the
// concurrency so RabbitMQ never hands the pool more jobs than it can run.
func (p *Pool) setupConsumer(ctx context.Context) (<-chan amqp.Delivery, error) {
	consumerTag := fmt.Sprintf("%s-%s", p.workerID, p.queue)

	deliveries, err := p.source.Consume(ctx, p.queue, p.concurrency, consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	p.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", consumerTag),
		slog.Int("prefetch_count", p.concurrency),
	)

	return deliveries, nil
}

// startMessageDispatcher decodes deliveries and hands them to the workers.
// It closes jobsChan on return, which stops the workers once they are idle.
func (p *Pool) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(p.jobsChan)

	p.logger.Info("Message dispatcher started")

	for {
		select {
		case <-p.stopChan:
			p.logger.Info("Message dispatcher stopped")
			return

		case <-ctx.Done():
			p.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				p.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			var envelope domain.Envelope
			if err := json.Unmarshal(delivery.Body, &envelope); err != nil {
				p.logger.Error("Failed to parse message JSON",
					slog.Any("error", err),
					slog.String("body", string(delivery.Body)),
				)
				// Malformed messages can never be processed
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					p.logger.Error("Failed to NACK malformed message",
						slog.Any("error", nackErr),
					)
				}
				continue
			}

			if _, err := uuid.Parse(envelope.JobID); err != nil {
				p.logger.Error("Invalid job_id format - not a UUID",
					slog.String("job_id", envelope.JobID),
					slog.Any("error", err),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					p.logger.Error("Failed to NACK message with invalid job_id",
						slog.Any("error", nackErr),
					)
				}
				continue
			}

			t := &task{delivery: delivery, envelope: envelope}

			select {
			case p.jobsChan <- t:
				p.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", envelope.JobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-p.stopChan:
				p.logger.Info("Message dispatcher stopped while dispatching job")
				// NACK the message so it can be reprocessed
				p.nack(t, true)
				return
			}
		}
	}
}
