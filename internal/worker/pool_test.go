package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/helpdesk-be/internal/broker"
	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

type fakeAcknowledger struct {
	mu       sync.Mutex
	acked    []uint64
	nacked   []uint64
	requeued []uint64
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		a.requeued = append(a.requeued, tag)
	} else {
		a.nacked = append(a.nacked, tag)
	}
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) counts() (acked, nacked, requeued int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked), len(a.nacked), len(a.requeued)
}

type fakeSource struct {
	deliveries chan amqp.Delivery
	queue      string
	prefetch   int
}

func (s *fakeSource) Consume(ctx context.Context, queue string, prefetch int, _ string) (<-chan amqp.Delivery, error) {
	s.queue = queue
	s.prefetch = prefetch
	return s.deliveries, nil
}

type fakeBroker struct {
	mu        sync.Mutex
	jobs      map[string]*domain.Job
	claimErr  error
	completed []string
	retried   []string
	failed    []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{jobs: make(map[string]*domain.Job)}
}

func (b *fakeBroker) add(queue string, payload domain.Payload) domain.Envelope {
	raw, _ := json.Marshal(payload)
	job := &domain.Job{
		ID:          uuid.NewString(),
		QueueName:   queue,
		JobType:     payload.JobType(),
		Payload:     raw,
		State:       domain.JobStateWaiting,
		MaxAttempts: 3,
	}
	b.mu.Lock()
	b.jobs[job.ID] = job
	b.mu.Unlock()
	return domain.EnvelopeFor(job)
}

func (b *fakeBroker) Claim(_ context.Context, env domain.Envelope) (*domain.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.claimErr != nil {
		return nil, b.claimErr
	}
	job, ok := b.jobs[env.JobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	copied.State = domain.JobStateActive
	return &copied, nil
}

func (b *fakeBroker) Heartbeat(context.Context, string) error { return nil }

func (b *fakeBroker) Complete(_ context.Context, job *domain.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed = append(b.completed, job.ID)
	return nil
}

func (b *fakeBroker) Retry(_ context.Context, job *domain.Job, _ error) (broker.RetryDecision, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retried = append(b.retried, job.ID)
	return broker.RetryDecision{AttemptsMade: job.AttemptsMade + 1, Scheduled: true, Delay: time.Second}, nil
}

func (b *fakeBroker) Fail(_ context.Context, job *domain.Job, _ error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed = append(b.failed, job.ID)
	return nil
}

func (b *fakeBroker) settled() (completed, retried, failed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.completed), len(b.retried), len(b.failed)
}

type recordingEvents struct {
	mu        sync.Mutex
	completed int
	failed    int
}

func (e *recordingEvents) JobCompleted(*domain.Job, domain.Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed++
}

func (e *recordingEvents) JobFailed(*domain.Job, error, broker.RetryDecision) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed++
}

type harness struct {
	ack    *fakeAcknowledger
	source *fakeSource
	broker *fakeBroker
	events *recordingEvents
	pool   *Pool
	tag    uint64
}

func newHarness(t *testing.T, concurrency int, processor Processor, opts ...func(*PoolConfig)) *harness {
	t.Helper()

	h := &harness{
		ack:    &fakeAcknowledger{},
		source: &fakeSource{deliveries: make(chan amqp.Delivery, 64)},
		broker: newFakeBroker(),
		events: &recordingEvents{},
	}

	cfg := &PoolConfig{
		Queue:       domain.QueueGeoEnrichment,
		WorkerID:    "test",
		Concurrency: concurrency,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Broker:      h.broker,
		Source:      h.source,
		Processor:   processor,
		Events:      h.events,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	h.pool = NewPool(cfg)
	require.NoError(t, h.pool.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.pool.Stop(ctx)
	})
	return h
}

func (h *harness) deliver(body []byte) {
	h.tag++
	h.source.deliveries <- amqp.Delivery{Acknowledger: h.ack, DeliveryTag: h.tag, Body: body}
}

func (h *harness) deliverEnvelope(env domain.Envelope) {
	body, _ := json.Marshal(env)
	h.deliver(body)
}

func (h *harness) deliverGeoJobs(n int) {
	for i := 0; i < n; i++ {
		h.deliverEnvelope(h.broker.add(domain.QueueGeoEnrichment, domain.GeoJob{UserID: "u1", IPAddress: "8.8.8.8"}))
	}
}

func completeAll() Processor {
	return ProcessorFunc(func(context.Context, *domain.Job, domain.Payload) domain.Outcome {
		return domain.Completed()
	})
}

func TestPool_CompletesJobs(t *testing.T) {
	var seen sync.Map
	h := newHarness(t, 2, ProcessorFunc(func(_ context.Context, job *domain.Job, payload domain.Payload) domain.Outcome {
		seen.Store(job.ID, payload)
		return domain.Completed()
	}))

	h.deliverGeoJobs(3)

	require.Eventually(t, func() bool {
		acked, _, _ := h.ack.counts()
		return acked == 3
	}, time.Second, 5*time.Millisecond)

	completed, retried, failed := h.broker.settled()
	assert.Equal(t, 3, completed)
	assert.Zero(t, retried)
	assert.Zero(t, failed)
	assert.Equal(t, domain.QueueGeoEnrichment, h.source.queue)
	assert.Equal(t, 2, h.source.prefetch)

	seen.Range(func(_, value any) bool {
		assert.Equal(t, domain.GeoJob{UserID: "u1", IPAddress: "8.8.8.8"}, value)
		return true
	})

	h.events.mu.Lock()
	assert.Equal(t, 3, h.events.completed)
	h.events.mu.Unlock()
}

func TestPool_ConcurrencyCeiling(t *testing.T) {
	var active, peak atomic.Int32
	release := make(chan struct{})

	h := newHarness(t, 2, ProcessorFunc(func(context.Context, *domain.Job, domain.Payload) domain.Outcome {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		active.Add(-1)
		return domain.Completed()
	}))

	h.deliverGeoJobs(6)

	require.Eventually(t, func() bool { return active.Load() == 2 }, time.Second, 5*time.Millisecond)
	// give a third job the chance to start if the ceiling were broken
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), active.Load())

	close(release)

	require.Eventually(t, func() bool {
		acked, _, _ := h.ack.counts()
		return acked == 6
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), peak.Load())
}

func TestPool_RetryOutcome(t *testing.T) {
	h := newHarness(t, 1, ProcessorFunc(func(context.Context, *domain.Job, domain.Payload) domain.Outcome {
		return domain.Retry(domain.NewStatusError("geo lookup", 503, "unavailable"))
	}))

	h.deliverGeoJobs(1)

	require.Eventually(t, func() bool {
		_, retried, _ := h.broker.settled()
		return retried == 1
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		acked, _, _ := h.ack.counts()
		return acked == 1
	}, time.Second, 5*time.Millisecond)

	h.events.mu.Lock()
	assert.Equal(t, 1, h.events.failed)
	h.events.mu.Unlock()
}

func TestPool_PanicIsRetried(t *testing.T) {
	h := newHarness(t, 1, ProcessorFunc(func(context.Context, *domain.Job, domain.Payload) domain.Outcome {
		panic("nil map")
	}))

	h.deliverGeoJobs(1)

	require.Eventually(t, func() bool {
		_, retried, _ := h.broker.settled()
		return retried == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPool_StaleMessageIsDropped(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, 1, ProcessorFunc(func(context.Context, *domain.Job, domain.Payload) domain.Outcome {
		calls.Add(1)
		return domain.Completed()
	}))

	// a purged job
	h.deliverEnvelope(domain.Envelope{JobID: uuid.NewString(), Queue: domain.QueueGeoEnrichment})

	require.Eventually(t, func() bool {
		acked, _, _ := h.ack.counts()
		return acked == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestPool_ClaimFailureRequeues(t *testing.T) {
	h := newHarness(t, 1, completeAll())
	h.broker.mu.Lock()
	h.broker.claimErr = errors.New("connection reset")
	h.broker.mu.Unlock()

	h.deliverGeoJobs(1)

	require.Eventually(t, func() bool {
		_, _, requeued := h.ack.counts()
		return requeued == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPool_MalformedMessages(t *testing.T) {
	h := newHarness(t, 1, completeAll())

	h.deliver([]byte("not json"))
	h.deliverEnvelope(domain.Envelope{JobID: "not-a-uuid"})

	require.Eventually(t, func() bool {
		_, nacked, _ := h.ack.counts()
		return nacked == 2
	}, time.Second, 5*time.Millisecond)
}

func TestPool_UndecodablePayloadIsDiscarded(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, 1, ProcessorFunc(func(context.Context, *domain.Job, domain.Payload) domain.Outcome {
		calls.Add(1)
		return domain.Completed()
	}))

	// a semantic payload recorded on the geo queue
	h.deliverEnvelope(h.broker.add(domain.QueueGeoEnrichment, domain.SemanticJob{EntityType: domain.EntityTicket, EntityID: "t1"}))

	require.Eventually(t, func() bool {
		_, _, failed := h.broker.settled()
		return failed == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestPool_RateLimiter(t *testing.T) {
	var mu sync.Mutex
	var starts []time.Time

	h := newHarness(t, 5, ProcessorFunc(func(context.Context, *domain.Job, domain.Payload) domain.Outcome {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return domain.Completed()
	}), func(cfg *PoolConfig) {
		cfg.Limiter = NewLimiter(2, 200*time.Millisecond)
	})

	begin := time.Now()
	h.deliverGeoJobs(4)

	require.Eventually(t, func() bool {
		acked, _, _ := h.ack.counts()
		return acked == 4
	}, 2*time.Second, 5*time.Millisecond)

	// burst of 2, then one start per 100ms
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 4)
	last := starts[0]
	for _, s := range starts {
		if s.After(last) {
			last = s
		}
	}
	assert.GreaterOrEqual(t, last.Sub(begin), 150*time.Millisecond)
}

func TestNewLimiter(t *testing.T) {
	limiter := NewLimiter(10, time.Second)
	assert.Equal(t, 10, limiter.Burst())
	assert.InDelta(t, 10.0, float64(limiter.Limit()), 0.001)
}

func TestPool_StopWaitsForActiveJob(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	h := newHarness(t, 1, ProcessorFunc(func(ctx context.Context, _ *domain.Job, _ domain.Payload) domain.Outcome {
		close(started)
		<-release
		// active jobs are not canceled by shutdown
		if ctx.Err() != nil {
			return domain.Retry(ctx.Err())
		}
		return domain.Completed()
	}))

	h.deliverGeoJobs(1)
	<-started

	stopped := make(chan error, 1)
	go func() {
		stopped <- h.pool.Stop(context.Background())
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was active")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-stopped)

	completed, retried, _ := h.broker.settled()
	assert.Equal(t, 1, completed)
	assert.Zero(t, retried)
}

func TestPool_StopTimesOut(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	h := newHarness(t, 1, ProcessorFunc(func(context.Context, *domain.Job, domain.Payload) domain.Outcome {
		close(started)
		<-release
		return domain.Completed()
	}))

	h.deliverGeoJobs(1)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := h.pool.Stop(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorker_StartStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sources := []*fakeSource{
		{deliveries: make(chan amqp.Delivery)},
		{deliveries: make(chan amqp.Delivery)},
	}

	var pools []*Pool
	for i, queue := range []string{domain.QueueNotifications, domain.QueueSemanticIndexing} {
		pools = append(pools, NewPool(&PoolConfig{
			Queue:       queue,
			WorkerID:    "test",
			Concurrency: 1,
			Logger:      logger,
			Broker:      newFakeBroker(),
			Source:      sources[i],
			Processor:   completeAll(),
		}))
	}

	w := NewWorker(logger, pools...)
	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, domain.QueueNotifications, sources[0].queue)
	assert.Equal(t, domain.QueueSemanticIndexing, sources[1].queue)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
}
