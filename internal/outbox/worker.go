package outbox

import (
	"context"
	"fmt"
	"time"

	"fruitapp-be/internal/logger"

	"go.uber.org/zap"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

// Publisher hands a message to the broker. Delivery is at-least-once, so
// consumers deduplicate on Message.ID.
type Publisher interface {
	Publish(msg Message) error
}

// Recorder receives relay metrics.
type Recorder interface {
	RecordOutboxPublished(n int)
	RecordOutboxFailed(n int)
	SetOutboxPending(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordOutboxPublished(int) {}
func (nopRecorder) RecordOutboxFailed(int)    {}
func (nopRecorder) SetOutboxPending(int)      {}

type WorkerOptions struct {
	Logger         *zap.Logger
	Metrics        Recorder
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

type Option func(*WorkerOptions)

func WithLogger(l *zap.Logger) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = l
	}
}

func WithMetrics(r Recorder) Option {
	return func(opts *WorkerOptions) {
		opts.Metrics = r
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts sets how many publish attempts a message gets before it is marked failed.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay sets the first backoff delay; later attempts double it.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// Worker relays pending outbox messages to the broker.
type Worker struct {
	repo           Repository
	publisher      Publisher
	logger         *zap.Logger
	metrics        Recorder
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

func NewWorker(repo Repository, publisher Publisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	l := opts.Logger
	if l == nil {
		l = logger.L()
	}
	rec := opts.Metrics
	if rec == nil {
		rec = nopRecorder{}
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Worker{
		repo:           repo,
		publisher:      publisher,
		logger:         l.With(zap.String("component", "outbox-worker")),
		metrics:        rec,
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
	}
}

// Run polls the outbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce publishes one batch and returns the number of messages sent.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	msgs, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.Warn("failed to pull pending outbox messages", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range msgs {
		if ctx.Err() != nil {
			break
		}

		log := w.logger.With(
			zap.String("outbox_id", msg.ID.String()),
			zap.String("event_type", msg.EventType),
		)

		if err := w.publishWithRetry(ctx, msg); err != nil {
			log.Error("outbox publish failed after retries", zap.Error(err))
			w.metrics.RecordOutboxFailed(1)

			if markErr := w.repo.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
				log.Warn("failed to mark outbox as failed", zap.Error(markErr))
			}
			continue
		}

		sent++
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			log.Warn("failed to mark outbox as sent", zap.Error(err))
		}
	}

	w.metrics.RecordOutboxPublished(sent)
	w.refreshBacklog(ctx)
	return sent
}

func (w *Worker) publishWithRetry(ctx context.Context, msg Message) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := w.publisher.Publish(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= w.maxAttempts {
			break
		}

		delay := w.retryBackoff(attempt)
		if delay <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("publish failed after %d attempts: %w", w.maxAttempts, lastErr)
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.Warn("failed to collect outbox backlog stats", zap.Error(err))
		return
	}
	w.metrics.SetOutboxPending(stats.PendingCount)
}

func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	if attempt <= 1 {
		return w.retryBaseDelay
	}

	const maxDuration = time.Duration(1<<63 - 1)
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}
