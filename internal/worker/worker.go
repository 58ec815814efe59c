package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/cuongbtq/helpdesk-be/internal/broker"
	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Processor runs one job. It reports the result as an Outcome and leaves
// retry bookkeeping to the pool.
type Processor interface {
	Process(ctx context.Context, job *domain.Job, payload domain.Payload) domain.Outcome
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(ctx context.Context, job *domain.Job, payload domain.Payload) domain.Outcome

func (f ProcessorFunc) Process(ctx context.Context, job *domain.Job, payload domain.Payload) domain.Outcome {
	return f(ctx, job, payload)
}

// Broker is the part of the job broker a pool settles jobs through
type Broker interface {
	Claim(ctx context.Context, envelope domain.Envelope) (*domain.Job, error)
	Heartbeat(ctx context.Context, jobID string) error
	Complete(ctx context.Context, job *domain.Job) error
	Retry(ctx context.Context, job *domain.Job, cause error) (broker.RetryDecision, error)
	Fail(ctx context.Context, job *domain.Job, cause error) error
}

// DeliverySource starts a consumer on a queue
type DeliverySource interface {
	Consume(ctx context.Context, queue string, prefetch int, consumerTag string) (<-chan amqp.Delivery, error)
}

// Worker runs one pool per queue
type Worker struct {
	logger *slog.Logger
	pools  []*Pool
}

// NewWorker creates a worker over the given pools
func NewWorker(logger *slog.Logger, pools ...*Pool) *Worker {
	return &Worker{
		logger: logger,
		pools:  pools,
	}
}

// Start starts every pool. Pools already started are stopped again if a
// later one fails.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("pools", len(w.pools)),
	)

	for i, pool := range w.pools {
		if err := pool.Start(ctx); err != nil {
			for _, started := range w.pools[:i] {
				_ = started.Stop(context.WithoutCancel(ctx))
			}
			return err
		}
	}

	return nil
}

// Stop stops dispatching on every pool and waits for active jobs until ctx
// is done
func (w *Worker) Stop(ctx context.Context) error {
	w.logger.Info("Stopping worker...")

	var wg sync.WaitGroup
	errs := make([]error, len(w.pools))
	for i, pool := range w.pools {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = pool.Stop(ctx)
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}

	w.logger.Info("Worker stopped")
	return nil
}
