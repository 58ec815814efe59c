package producer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/helpdesk-be/internal/broker"
	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

// defaultBackgroundTimeout bounds a best-effort enqueue once the request
// that triggered it has returned
const defaultBackgroundTimeout = 10 * time.Second

// Enqueuer puts a job on its queue
type Enqueuer interface {
	Enqueue(ctx context.Context, payload domain.Payload, opts ...broker.Option) (string, error)
}

// ErrorHandler receives the error of a background enqueue. It is called at
// most once per spawned task.
type ErrorHandler func(op string, err error)

// Producer enqueues enrichment jobs from the request path.
//
// Semantic indexing is must-enqueue: the caller gets the error and fails
// its request. Geo enrichment and ticket notifications are best-effort: the
// enqueue runs in the background and failures only reach the ErrorHandler.
type Producer struct {
	enqueuer Enqueuer
	logger   *slog.Logger
	onError  ErrorHandler
	timeout  time.Duration
	wg       sync.WaitGroup
}

// Option configures a Producer
type Option func(*Producer)

// WithErrorHandler replaces the default handler, which logs the error
func WithErrorHandler(h ErrorHandler) Option {
	return func(p *Producer) {
		p.onError = h
	}
}

// WithBackgroundTimeout bounds each best-effort enqueue
func WithBackgroundTimeout(d time.Duration) Option {
	return func(p *Producer) {
		p.timeout = d
	}
}

// New creates a producer
func New(enqueuer Enqueuer, logger *slog.Logger, opts ...Option) *Producer {
	p := &Producer{
		enqueuer: enqueuer,
		logger:   logger,
		timeout:  defaultBackgroundTimeout,
	}
	p.onError = func(op string, err error) {
		p.logger.Error("Background enqueue failed",
			slog.String("op", op),
			slog.Any("error", err),
		)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IndexTicket enqueues the semantic indexing of a new ticket and waits for
// the broker to accept it
func (p *Producer) IndexTicket(ctx context.Context, ticketID, title, description string) (string, error) {
	return p.enqueuer.Enqueue(ctx, domain.SemanticJob{
		EntityType: domain.EntityTicket,
		EntityID:   ticketID,
		Text:       domain.TicketText(title, description),
	})
}

// IndexMessage enqueues the semantic indexing of a new message and waits
// for the broker to accept it
func (p *Producer) IndexMessage(ctx context.Context, messageID, content string) (string, error) {
	return p.enqueuer.Enqueue(ctx, domain.SemanticJob{
		EntityType: domain.EntityMessage,
		EntityID:   messageID,
		Text:       content,
	})
}

// EnrichUserLocation enqueues a geo lookup for the address a user signed in
// from without waiting for the result
func (p *Producer) EnrichUserLocation(ctx context.Context, userID, ipAddress string) {
	p.Go(ctx, "enrich user location", func(ctx context.Context) error {
		_, err := p.enqueuer.Enqueue(ctx, domain.GeoJob{UserID: userID, IPAddress: ipAddress})
		return err
	})
}

// NotifyTicketCreated enqueues the webhook notification of a new ticket
// without waiting for the result
func (p *Producer) NotifyTicketCreated(ctx context.Context, ticketID, title, description string) {
	p.Go(ctx, "notify ticket created", func(ctx context.Context) error {
		_, err := p.enqueuer.Enqueue(ctx, domain.NotificationJob{
			TicketID:    ticketID,
			Title:       title,
			Description: description,
		})
		return err
	})
}

// Go runs fn in the background on a context detached from ctx's
// cancellation. A non-nil error or a panic is passed to the ErrorHandler.
func (p *Producer) Go(ctx context.Context, op string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()

		if err := p.run(ctx, fn); err != nil {
			p.onError(op, err)
		}
	}()
}

func (p *Producer) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(ctx)
}

// Wait blocks until every background enqueue has finished
func (p *Producer) Wait() {
	p.wg.Wait()
}
