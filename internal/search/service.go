package search

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultLimit = 5
	MaxLimit     = 20
)

// ErrEmptyQuery is returned for a blank search query
var ErrEmptyQuery = errors.New("query is required")

// Embedder turns text into a normalized embedding
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store runs the per-entity similarity lookups
type Store interface {
	SimilarTickets(ctx context.Context, vector []float32, limit int) ([]TicketResult, error)
	SimilarMessages(ctx context.Context, vector []float32, limit int) ([]MessageResult, error)
}

// Results holds the ranked tickets and messages for one query. The two
// sets are ranked independently and never merged.
type Results struct {
	Query    string          `json:"query"`
	Tickets  []TicketResult  `json:"tickets"`
	Messages []MessageResult `json:"messages"`
}

// Service answers similarity search queries
type Service struct {
	embedder     Embedder
	store        Store
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
}

// NewService creates a search service. Non-positive limits fall back to
// DefaultLimit and MaxLimit.
func NewService(embedder Embedder, store Store, defaultLimit, maxLimit int, logger *slog.Logger) *Service {
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	defaultLimit = min(defaultLimit, maxLimit)

	return &Service{
		embedder:     embedder,
		store:        store,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		logger:       logger,
	}
}

// EffectiveLimit applies the default to a missing limit and clamps the rest
func (s *Service) EffectiveLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	return min(limit, s.maxLimit)
}

// Search embeds query once and ranks tickets and messages against it
func (s *Service) Search(ctx context.Context, query string, limit int) (*Results, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	limit = s.EffectiveLimit(limit)

	start := time.Now()
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results := &Results{
		Query:    query,
		Tickets:  []TicketResult{},
		Messages: []MessageResult{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tickets, err := s.store.SimilarTickets(gctx, vector, limit)
		if err != nil {
			return err
		}
		slices.SortStableFunc(tickets, func(a, b TicketResult) int {
			return cmp.Compare(b.Similarity, a.Similarity)
		})
		if len(tickets) > limit {
			tickets = tickets[:limit]
		}
		results.Tickets = append(results.Tickets, tickets...)
		return nil
	})
	g.Go(func() error {
		messages, err := s.store.SimilarMessages(gctx, vector, limit)
		if err != nil {
			return err
		}
		slices.SortStableFunc(messages, func(a, b MessageResult) int {
			return cmp.Compare(b.Similarity, a.Similarity)
		})
		if len(messages) > limit {
			messages = messages[:limit]
		}
		results.Messages = append(results.Messages, messages...)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("Similarity search completed",
		slog.Int("limit", limit),
		slog.Int("tickets", len(results.Tickets)),
		slog.Int("messages", len(results.Messages)),
		slog.Duration("duration", time.Since(start)),
	)

	return results, nil
}
