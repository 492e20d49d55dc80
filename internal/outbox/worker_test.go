package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubRepo struct {
	mu        sync.Mutex
	pending   []Message
	pullErr   error
	sentIDs   []uuid.UUID
	failedIDs []uuid.UUID
	reasons   []string
}

func (r *stubRepo) Enqueue(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, msg)
	return nil
}

func (r *stubRepo) PullPending(_ context.Context, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pullErr != nil {
		return nil, r.pullErr
	}
	if limit > len(r.pending) {
		limit = len(r.pending)
	}
	out := make([]Message, limit)
	copy(out, r.pending[:limit])
	r.pending = r.pending[limit:]
	return out, nil
}

func (r *stubRepo) Stats(context.Context) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{PendingCount: len(r.pending)}, nil
}

func (r *stubRepo) MarkSent(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sentIDs = append(r.sentIDs, id)
	return nil
}

func (r *stubRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failedIDs = append(r.failedIDs, id)
	r.reasons = append(r.reasons, reason)
	return nil
}

type stubPublisher struct {
	mu       sync.Mutex
	n        int
	failures int
	err      error
}

func (p *stubPublisher) Publish(Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	if p.err != nil && (p.failures == 0 || p.n <= p.failures) {
		return p.err
	}
	return nil
}

func (p *stubPublisher) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

type countingRecorder struct {
	published, failed, pending int
}

func (c *countingRecorder) RecordOutboxPublished(n int) { c.published += n }
func (c *countingRecorder) RecordOutboxFailed(n int)    { c.failed += n }
func (c *countingRecorder) SetOutboxPending(n int)      { c.pending = n }

func msg(eventType string) Message {
	return Message{ID: uuid.New(), AggregateType: AggregateOrder, AggregateID: uuid.NewString(), EventType: eventType}
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	m := msg(EventOrderCreated)
	repo := &stubRepo{pending: []Message{m}}
	publisher := &stubPublisher{}
	rec := &countingRecorder{}

	w := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMetrics(rec))

	assert.Equal(t, 1, w.ProcessOnce(context.Background()))
	assert.Equal(t, []uuid.UUID{m.ID}, repo.sentIDs)
	assert.Empty(t, repo.failedIDs)
	assert.Equal(t, 1, publisher.calls())
	assert.Equal(t, 1, rec.published)
	assert.Equal(t, 0, rec.pending)
}

func TestWorker_ProcessOnce_RetriesThenSucceeds(t *testing.T) {
	m := msg(EventOrderStatusChanged)
	repo := &stubRepo{pending: []Message{m}}
	publisher := &stubPublisher{err: errors.New("broker unavailable"), failures: 2}

	w := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))

	assert.Equal(t, 1, w.ProcessOnce(context.Background()))
	assert.Equal(t, 3, publisher.calls())
	assert.Len(t, repo.sentIDs, 1)
}

func TestWorker_ProcessOnce_MarkFailedAfterRetries(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	m := msg(EventOrderCreated)
	repo := &stubRepo{pending: []Message{m}}
	publisher := &stubPublisher{err: errors.New("publish failed")}
	rec := &countingRecorder{}

	w := NewWorker(repo, publisher,
		WithLogger(zap.New(core)),
		WithMetrics(rec),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	assert.Equal(t, 0, w.ProcessOnce(context.Background()))
	assert.Equal(t, 3, publisher.calls())
	assert.Empty(t, repo.sentIDs)
	require.Equal(t, []uuid.UUID{m.ID}, repo.failedIDs)
	assert.Contains(t, repo.reasons[0], "publish failed after 3 attempts")
	assert.Equal(t, 1, rec.failed)

	logs := observed.FilterMessage("outbox publish failed after retries").All()
	require.Len(t, logs, 1)
	assert.Equal(t, "outbox-worker", logs[0].ContextMap()["component"])
}

func TestWorker_ProcessOnce_PullError(t *testing.T) {
	repo := &stubRepo{pullErr: errors.New("db down")}
	publisher := &stubPublisher{}

	w := NewWorker(repo, publisher)

	assert.Equal(t, 0, w.ProcessOnce(context.Background()))
	assert.Equal(t, 0, publisher.calls())
}

func TestWorker_ProcessOnce_CancelledContext(t *testing.T) {
	repo := &stubRepo{pending: []Message{msg(EventOrderCreated)}}
	publisher := &stubPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWorker(repo, publisher)
	assert.Equal(t, 0, w.ProcessOnce(ctx))
	assert.Equal(t, 0, publisher.calls())
}

func TestWorker_Run_StopsOnCancel(t *testing.T) {
	repo := &stubRepo{pending: []Message{msg(EventOrderCreated), msg(EventOrderCreated)}}
	publisher := &stubPublisher{}

	w := NewWorker(repo, publisher, WithPollInterval(5*time.Millisecond), WithBatchSize(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return publisher.calls() == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_Run_DisabledWithoutPublisher(t *testing.T) {
	w := NewWorker(&stubRepo{}, nil)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled worker should return immediately")
	}
}

func TestWorker_RetryBackoff(t *testing.T) {
	w := NewWorker(&stubRepo{}, &stubPublisher{}, WithRetryBaseDelay(10*time.Millisecond))

	assert.Equal(t, 10*time.Millisecond, w.retryBackoff(1))
	assert.Equal(t, 20*time.Millisecond, w.retryBackoff(2))
	assert.Equal(t, 40*time.Millisecond, w.retryBackoff(3))

	w = NewWorker(&stubRepo{}, &stubPublisher{}, WithRetryBaseDelay(-1))
	assert.Equal(t, time.Duration(0), w.retryBackoff(2))
}

func TestNewMessage(t *testing.T) {
	m, err := NewMessage(AggregateOrder, "order-1", EventOrderCreated, map[string]string{"status": "PENDING"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, m.ID)
	assert.JSONEq(t, `{"status":"PENDING"}`, string(m.Payload))

	_, err = NewMessage(AggregateOrder, "order-1", EventOrderCreated, make(chan int))
	assert.Error(t, err)
}
