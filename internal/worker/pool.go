package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PoolConfig holds the configuration of one queue's pool
type PoolConfig struct {
	Queue             string
	WorkerID          string
	Concurrency       int
	Limiter           *rate.Limiter
	HeartbeatInterval time.Duration
	Logger            *slog.Logger
	Broker            Broker
	Source            DeliverySource
	Processor         Processor
	Events            EventHandler
}

// Pool consumes one queue with a fixed number of workers. At most
// Concurrency jobs are active at once, and when a limiter is set every job
// start takes a token from it.
type Pool struct {
	queue             string
	workerID          string
	concurrency       int
	limiter           *rate.Limiter
	heartbeatInterval time.Duration
	logger            *slog.Logger
	broker            Broker
	source            DeliverySource
	processor         Processor
	events            EventHandler

	jobsChan       chan *task
	stopChan       chan struct{}
	stopOnce       sync.Once
	cancelConsumer context.CancelFunc
	dispatcherDone chan struct{}
	wg             sync.WaitGroup
}

// NewLimiter allows max job starts per window, refilling evenly
func NewLimiter(max int, per time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(per/time.Duration(max)), max)
}

// NewPool creates a pool. Start must be called to begin consuming.
func NewPool(cfg *PoolConfig) *Pool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	events := cfg.Events
	if events == nil {
		events = LogEvents(cfg.Logger)
	}

	return &Pool{
		queue:             cfg.Queue,
		workerID:          cfg.WorkerID,
		concurrency:       concurrency,
		limiter:           cfg.Limiter,
		heartbeatInterval: cfg.HeartbeatInterval,
		logger:            cfg.Logger.With(slog.String("queue", cfg.Queue)),
		broker:            cfg.Broker,
		source:            cfg.Source,
		processor:         cfg.Processor,
		events:            events,
		jobsChan:          make(chan *task),
		stopChan:          make(chan struct{}),
		dispatcherDone:    make(chan struct{}),
	}
}

// Start subscribes to the queue and spawns the workers. Jobs run on a
// context detached from ctx so that a canceled ctx stops intake without
// interrupting active jobs.
func (p *Pool) Start(ctx context.Context) error {
	consumerCtx, cancel := context.WithCancel(ctx)
	deliveries, err := p.setupConsumer(consumerCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start pool for %s: %w", p.queue, err)
	}
	p.cancelConsumer = cancel

	p.spawnWorkerPool(context.WithoutCancel(ctx))

	go func() {
		defer close(p.dispatcherDone)
		p.startMessageDispatcher(consumerCtx, deliveries)
	}()

	return nil
}

// Stop cancels the consumer and waits for active jobs to finish or for ctx
// to be done. Deliveries not yet acknowledged are redelivered by RabbitMQ.
func (p *Pool) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		if p.cancelConsumer != nil {
			p.cancelConsumer()
		}
	})

	done := make(chan struct{})
	go func() {
		<-p.dispatcherDone
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool %s did not drain: %w", p.queue, ctx.Err())
	}
}

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (p *Pool) spawnWorkerPool(ctx context.Context) {
	p.logger.Info("Spawning worker pool",
		slog.Int("concurrency", p.concurrency),
		slog.String("worker_id", p.workerID),
		slog.Bool("rate_limited", p.limiter != nil),
	)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (p *Pool) workerLoop(ctx context.Context, workerNum int) {
	defer p.wg.Done()

	workerName := fmt.Sprintf("%s-%s-%d", p.workerID, p.queue, workerNum)
	p.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for t := range p.jobsChan {
		if p.limiter != nil {
			if err := p.waitForToken(); err != nil {
				p.logger.Info("Rate limiter wait aborted, returning job to queue",
					slog.String("worker_name", workerName),
					slog.String("job_id", t.envelope.JobID),
					slog.Any("error", err),
				)
				p.nack(t, true)
				continue
			}
		}

		p.logger.Debug("Worker received job",
			slog.String("worker_name", workerName),
			slog.String("job_id", t.envelope.JobID),
			slog.Uint64("delivery_tag", t.delivery.DeliveryTag),
		)

		p.processJob(ctx, t)
	}

	p.logger.Debug("Worker goroutine stopping - jobsChan closed",
		slog.String("worker_name", workerName),
	)
}

// waitForToken blocks until the limiter admits another job start. The wait
// is abandoned on shutdown.
func (p *Pool) waitForToken() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-p.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return p.limiter.Wait(ctx)
}

func (p *Pool) ack(t *task) {
	if err := t.delivery.Ack(false); err != nil {
		p.logger.Error("Failed to ACK message",
			slog.String("job_id", t.envelope.JobID),
			slog.Any("error", err),
		)
	}
}

func (p *Pool) nack(t *task, requeue bool) {
	if err := t.delivery.Nack(false, requeue); err != nil {
		p.logger.Error("Failed to NACK message",
			slog.String("job_id", t.envelope.JobID),
			slog.Bool("requeue", requeue),
			slog.Any("error", err),
		)
	}
}
