package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

var (
	outboxPublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_outbox_publish_attempts_total",
		Help: "Total number of outbox publish attempts grouped by result and event type.",
	}, []string{"result", "event_type"})
	outboxPendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkout_outbox_pending_records",
		Help: "Current number of pending records in transactional outbox.",
	})
	outboxOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkout_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending outbox record.",
	})
)

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithDLQPublisher задаёт publisher для отправки в DLQ после исчерпания retry.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DLQPublisher = publisher
	}
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт размер батча из outbox.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток публикации перед failed/DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// Worker публикует pending-сообщения из transactional outbox в брокер.
// Сообщение, не ушедшее за MaxAttempts попыток, помечается failed и
// отправляется в DLQ вместе с последней ошибкой публикации.
type Worker struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	dlqPublisher   domain.OutboxPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-worker")
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
		dlqPublisher:   opts.DLQPublisher,
		logger:         logger,
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
	}
}

// cycleStats — итог одного цикла опроса outbox.
type cycleStats struct {
	delivered    int
	deadLettered int
}

func (s cycleStats) empty() bool {
	return s.delivered == 0 && s.deadLettered == 0
}

// deadLetter — конверт сообщения, ушедшего в DLQ после исчерпания попыток.
type deadLetter struct {
	OutboxID         string          `json:"outbox_id"`
	AggregateType    string          `json:"aggregate_type"`
	AggregateID      string          `json:"aggregate_id"`
	EventType        string          `json:"event_type"`
	Payload          json.RawMessage `json:"payload"`
	PublishError     string          `json:"publish_error"`
	DeliveryAttempts int             `json:"delivery_attempts"`
	DLQPublishedAt   time.Time       `json:"dlq_published_at"`
}

// Run запускает периодический polling outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.Drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain выполняет один цикл: вычитывает pending-батч и доводит каждое
// сообщение до sent или failed+DLQ.
func (w *Worker) Drain(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	w.refreshBacklogMetrics()

	pending, err := w.repo.PullPending(w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return
	}
	if len(pending) == 0 {
		return
	}

	var stats cycleStats
	for _, msg := range pending {
		if ctx.Err() != nil {
			break
		}
		if w.deliver(ctx, msg) {
			stats.delivered++
		} else {
			stats.deadLettered++
		}
	}

	if !stats.empty() {
		w.logger.WithFields(log.Fields{
			"delivered":     stats.delivered,
			"dead_lettered": stats.deadLettered,
		}).Info("outbox cycle finished")
	}

	w.refreshBacklogMetrics()
}

// deliver публикует одно сообщение с exponential backoff между попытками.
// Возвращает true, если сообщение ушло в брокер и помечено sent.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) bool {
	var lastErr error
	delay := w.retryBaseDelay

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := w.publisher.Publish(msg)
		if err == nil {
			outboxPublishAttempts.WithLabelValues("sent", msg.EventType).Inc()
			if markErr := w.repo.MarkSent(msg.ID); markErr != nil {
				w.logger.WithError(markErr).WithField("outbox_id", msg.ID).Warn("failed to mark outbox as sent")
			}
			return true
		}
		lastErr = err
		outboxPublishAttempts.WithLabelValues("retry_error", msg.EventType).Inc()

		if attempt < w.maxAttempts && delay > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	w.logger.WithError(lastErr).WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"event_type": msg.EventType,
		"attempts":   w.maxAttempts,
	}).Error("outbox publish failed after retries")
	outboxPublishAttempts.WithLabelValues("failed", msg.EventType).Inc()

	w.deadLetterMessage(msg, lastErr)
	if markErr := w.repo.MarkFailed(msg.ID); markErr != nil {
		w.logger.WithError(markErr).WithField("outbox_id", msg.ID).Warn("failed to mark outbox as failed")
	}
	return false
}

// deadLetterMessage отправляет сообщение в DLQ с причиной отказа.
func (w *Worker) deadLetterMessage(msg domain.OutboxMessage, publishErr error) {
	if w.dlqPublisher == nil {
		return
	}

	errText := ""
	if publishErr != nil {
		errText = publishErr.Error()
	}

	payload, err := json.Marshal(deadLetter{
		OutboxID:         msg.ID,
		AggregateType:    msg.AggregateType,
		AggregateID:      msg.AggregateID,
		EventType:        msg.EventType,
		Payload:          json.RawMessage(msg.Payload),
		PublishError:     fmt.Sprintf("publish failed after %d attempts: %s", w.maxAttempts, errText),
		DeliveryAttempts: w.maxAttempts,
		DLQPublishedAt:   time.Now().UTC(),
	})
	if err != nil {
		w.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("failed to marshal dlq payload")
		outboxPublishAttempts.WithLabelValues("dlq_failed", msg.EventType).Inc()
		return
	}

	dlqMsg := domain.OutboxMessage{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
	}
	if err := w.dlqPublisher.Publish(dlqMsg); err != nil {
		w.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("failed to publish to DLQ")
		outboxPublishAttempts.WithLabelValues("dlq_failed", msg.EventType).Inc()
	}
}

func (w *Worker) refreshBacklogMetrics() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	outboxPendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		outboxOldestPendingAge.Set(0)
		return
	}

	age := time.Since(stats.OldestPendingAt).Seconds()
	if age < 0 {
		age = 0
	}
	outboxOldestPendingAge.Set(age)
}
