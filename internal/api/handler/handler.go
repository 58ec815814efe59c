package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/helpdesk-be/internal/api/model"
	"github.com/cuongbtq/helpdesk-be/internal/broker"
	"github.com/cuongbtq/helpdesk-be/internal/search"
	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

// Store is the entity storage the handlers read and write
type Store interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateTicket(ctx context.Context, ticket *model.Ticket) error
	GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error)
	SoftDeleteTicket(ctx context.Context, ticketID string) error
	CreateMessage(ctx context.Context, message *model.Message) error
}

// Producer enqueues enrichment jobs from the request path
type Producer interface {
	IndexTicket(ctx context.Context, ticketID, title, description string) (string, error)
	IndexMessage(ctx context.Context, messageID, content string) (string, error)
	EnrichUserLocation(ctx context.Context, userID, ipAddress string)
	NotifyTicketCreated(ctx context.Context, ticketID, title, description string)
}

// JobAdmin inspects and manages ledger jobs
type JobAdmin interface {
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	List(ctx context.Context, filter broker.ListFilter) ([]domain.Job, error)
	Requeue(ctx context.Context, jobID string) (*domain.Job, error)
	Delete(ctx context.Context, jobID string) error
}

// Searcher answers similarity search queries
type Searcher interface {
	Search(ctx context.Context, query string, limit int) (*search.Results, error)
}

// HealthCheck reports whether one backing service is usable
type HealthCheck func(ctx context.Context) error

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Store    Store
	Producer Producer
	Jobs     JobAdmin
	Search   Searcher
	Checks   map[string]HealthCheck
}

// TicketHandler handles ticket and message requests
type TicketHandler struct {
	logger   *slog.Logger
	store    Store
	producer Producer
}

// NewTicketHandler creates a new TicketHandler instance
func NewTicketHandler(deps *Dependencies) *TicketHandler {
	return &TicketHandler{
		logger:   deps.Logger,
		store:    deps.Store,
		producer: deps.Producer,
	}
}

// UserHandler handles registration and login
type UserHandler struct {
	logger   *slog.Logger
	store    Store
	producer Producer
}

// NewUserHandler creates a new UserHandler instance
func NewUserHandler(deps *Dependencies) *UserHandler {
	return &UserHandler{
		logger:   deps.Logger,
		store:    deps.Store,
		producer: deps.Producer,
	}
}

// SearchHandler handles similarity search requests
type SearchHandler struct {
	logger *slog.Logger
	search Searcher
}

// NewSearchHandler creates a new SearchHandler instance
func NewSearchHandler(deps *Dependencies) *SearchHandler {
	return &SearchHandler{
		logger: deps.Logger,
		search: deps.Search,
	}
}

// JobHandler handles job inspection requests
type JobHandler struct {
	logger *slog.Logger
	jobs   JobAdmin
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
	}
}
