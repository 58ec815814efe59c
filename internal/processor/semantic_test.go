package processor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/helpdesk-be/internal/embedding"
	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	vec := make([]float32, embedding.Dimension)
	vec[len(text)%embedding.Dimension] = 1
	return vec, nil
}

// lengthModel puts all weight on the slot picked by the text length
type lengthModel struct{}

func (lengthModel) Dimension() int { return embedding.Dimension }

func (lengthModel) Encode(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embedding.Dimension)
	vec[len(text)%embedding.Dimension] = 2
	return vec, nil
}

type embeddingWrite struct {
	entityType string
	entityID   string
	vector     []float32
}

type fakeEmbeddingStore struct {
	mu     sync.Mutex
	writes []embeddingWrite
	stored map[string][]float32
	err    error
}

func (s *fakeEmbeddingStore) SetEmbedding(_ context.Context, entityType, entityID string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.stored == nil {
		s.stored = map[string][]float32{}
	}
	s.writes = append(s.writes, embeddingWrite{entityType: entityType, entityID: entityID, vector: vector})
	s.stored[entityType+"/"+entityID] = vector
	return nil
}

func TestSemanticProcessor_IndexesMessage(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeEmbeddingStore{}
	p := NewSemanticProcessor(embedder, store, discardLogger())

	outcome := p.Process(context.Background(), testJob(domain.QueueSemanticIndexing), domain.SemanticJob{
		EntityType: domain.EntityMessage,
		EntityID:   "m1",
		Text:       "hello",
	})

	require.Equal(t, domain.OutcomeCompleted, outcome.Kind)
	assert.Equal(t, 1, embedder.calls)
	require.Len(t, store.writes, 1)
	assert.Equal(t, domain.EntityMessage, store.writes[0].entityType)
	assert.Equal(t, "m1", store.writes[0].entityID)
	assert.Len(t, store.writes[0].vector, 384)
}

func TestSemanticProcessor_Idempotent(t *testing.T) {
	provider := embedding.NewProvider(embedding.LoaderFunc(func(context.Context) (embedding.Model, error) {
		return lengthModel{}, nil
	}))
	store := &fakeEmbeddingStore{}
	p := NewSemanticProcessor(provider, store, discardLogger())

	payload := domain.SemanticJob{EntityType: domain.EntityTicket, EntityID: "t1", Text: "Title: VPN. Content: down"}
	outcome := p.Process(context.Background(), testJob(domain.QueueSemanticIndexing), payload)
	require.Equal(t, domain.OutcomeCompleted, outcome.Kind)
	first := store.stored["ticket/t1"]

	for i := 0; i < 3; i++ {
		outcome = p.Process(context.Background(), testJob(domain.QueueSemanticIndexing), payload)
		require.Equal(t, domain.OutcomeCompleted, outcome.Kind)
	}

	assert.Equal(t, first, store.stored["ticket/t1"])
}

func TestSemanticProcessor_Failures(t *testing.T) {
	job := testJob(domain.QueueSemanticIndexing)
	payload := domain.SemanticJob{EntityType: domain.EntityTicket, EntityID: "t1", Text: "x"}

	t.Run("model load error is retried", func(t *testing.T) {
		loadErr := &embedding.ModelLoadError{Err: errors.New("no such file")}
		p := NewSemanticProcessor(&fakeEmbedder{err: loadErr}, &fakeEmbeddingStore{}, discardLogger())

		outcome := p.Process(context.Background(), job, payload)
		assert.Equal(t, domain.OutcomeRetry, outcome.Kind)
		assert.ErrorAs(t, outcome.Err, &loadErr)
	})

	t.Run("deleted entity is skipped", func(t *testing.T) {
		p := NewSemanticProcessor(&fakeEmbedder{}, &fakeEmbeddingStore{err: domain.ErrEntityNotFound}, discardLogger())
		outcome := p.Process(context.Background(), job, payload)
		assert.Equal(t, domain.OutcomeSkipped, outcome.Kind)
		assert.True(t, outcome.Succeeded())
	})

	t.Run("invalid entity type is discarded", func(t *testing.T) {
		p := NewSemanticProcessor(&fakeEmbedder{}, &fakeEmbeddingStore{err: domain.ErrInvalidPayload}, discardLogger())
		assert.Equal(t, domain.OutcomeDiscard, p.Process(context.Background(), job, payload).Kind)
	})

	t.Run("store error is retried", func(t *testing.T) {
		p := NewSemanticProcessor(&fakeEmbedder{}, &fakeEmbeddingStore{err: errors.New("too many connections")}, discardLogger())
		assert.Equal(t, domain.OutcomeRetry, p.Process(context.Background(), job, payload).Kind)
	})
}
