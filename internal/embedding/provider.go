package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Provider turns text into normalized embeddings. The model is loaded on
// first use: concurrent first callers share one load, a successful load is
// kept for the life of the process and a failed one is attempted again by
// the next call.
type Provider struct {
	loader  Loader
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	model atomic.Pointer[loadedModel]
	loads atomic.Int32
}

type loadedModel struct {
	Model
}

// ProviderOption configures a Provider
type ProviderOption func(*Provider)

// WithTimeout bounds a single Embed call, including a first-call model load
func WithTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithLogger sets the provider logger
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a provider that loads its model through loader
func NewProvider(loader Loader, opts ...ProviderOption) *Provider {
	p := &Provider{
		loader: loader,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Loads returns the number of successful model loads
func (p *Provider) Loads() int {
	return int(p.loads.Load())
}

// Embed returns the mean-pooled, L2-normalized embedding of text. When the
// timeout passes, Embed returns ErrEmbeddingFailed wrapping the context error.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	model, err := p.getModel(ctx)
	if err != nil {
		return nil, err
	}

	type result struct {
		vec []float32
		err error
	}
	// Inference does not stop on cancellation. After a timeout the goroutine
	// runs to the end and its result is dropped.
	done := make(chan result, 1)
	go func() {
		vec, err := model.Encode(ctx, text)
		if err == nil {
			vec, err = normalize(vec, model.Dimension())
		}
		done <- result{vec: vec, err: err}
	}()

	select {
	case r := <-done:
		return r.vec, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, ctx.Err())
	}
}

func (p *Provider) getModel(ctx context.Context) (Model, error) {
	if m := p.model.Load(); m != nil {
		return m.Model, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if m := p.model.Load(); m != nil {
		return m.Model, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, &ModelLoadError{Err: err}
	}

	start := time.Now()
	model, err := p.loader.Load(ctx)
	if err != nil {
		p.logger.Error("Failed to load embedding model", slog.Any("error", err))
		return nil, &ModelLoadError{Err: err}
	}
	if model.Dimension() != Dimension {
		return nil, &ModelLoadError{Err: fmt.Errorf("model dimension %d, want %d", model.Dimension(), Dimension)}
	}

	p.model.Store(&loadedModel{Model: model})
	p.loads.Add(1)
	p.logger.Info("Embedding model loaded",
		slog.Int("dimension", model.Dimension()),
		slog.Duration("duration", time.Since(start)),
	)

	return model, nil
}

func normalize(vec []float32, dim int) ([]float32, error) {
	if len(vec) != dim {
		return nil, fmt.Errorf("%w: model returned %d values, want %d", ErrEmbeddingFailed, len(vec), dim)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, fmt.Errorf("%w: zero vector", ErrEmbeddingFailed)
	}

	out := make([]float32, dim)
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out, nil
}
