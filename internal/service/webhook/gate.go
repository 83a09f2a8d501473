package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/inventory"
)

// Типы событий платёжного провайдера, которые обрабатывает шлюз.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// Исходы обработки для метрик.
const (
	OutcomeApplied          = "applied"
	OutcomeReplayed         = "replayed"
	OutcomeInFlight         = "in_flight"
	OutcomeFailed           = "failed"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeInvalidPayload   = "invalid_payload"
)

const (
	defaultEventTTL = 7 * 24 * time.Hour
	// Запись в processing старше этого срока считается осиротевшей:
	// обработчик упал, не успев выставить applied или failed.
	defaultStaleProcessingAfter = 5 * time.Minute

	// Короткое ожидание исхода конкурентной обработки того же события.
	resultPollInterval = 50 * time.Millisecond
	resultPollAttempts = 4
)

// Outcome — результат обработки одной доставки webhook.
type Outcome struct {
	// HTTPStatus и Body пишутся в ответ провайдеру как есть.
	HTTPStatus int
	Body       []byte
	// Replayed истинно, если ответ взят из кеша dedup-записи.
	Replayed bool
}

// payload — минимальный контракт тела webhook платёжного провайдера.
type payload struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
}

// Gate — шлюз идемпотентности webhook-доставок. Побочные эффекты для одного
// provider event id выполняются не более одного раза; повторные доставки
// получают закешированный ответ первой успешной обработки.
type Gate struct {
	events     domain.WebhookEventRepository
	finalizer  *inventory.Finalizer
	secret     []byte
	provider   string
	ttl        time.Duration
	staleAfter time.Duration
	logger     *log.Entry
	metrics    *metrics.CheckoutMetrics
}

// NewGate создаёт рабочий экземпляр шлюза.
func NewGate(
	events domain.WebhookEventRepository,
	finalizer *inventory.Finalizer,
	secret []byte,
	provider string,
	logger *log.Entry,
) *Gate {
	if logger == nil {
		logger = log.New().WithField("component", "webhook-gate")
	}
	return &Gate{
		events:     events,
		finalizer:  finalizer,
		secret:     secret,
		provider:   provider,
		ttl:        defaultEventTTL,
		staleAfter: defaultStaleProcessingAfter,
		logger:     logger,
		metrics:    metrics.NewCheckoutMetrics(),
	}
}

// NewGateWithoutMetrics создаёт шлюз без метрик (для тестов).
func NewGateWithoutMetrics(
	events domain.WebhookEventRepository,
	finalizer *inventory.Finalizer,
	secret []byte,
	provider string,
	logger *log.Entry,
) *Gate {
	g := NewGate(events, finalizer, secret, provider, logger)
	g.metrics = nil
	return g
}

// Provider возвращает имя платёжного провайдера, доставки которого
// принимает шлюз.
func (g *Gate) Provider() string {
	return g.provider
}

// SetEventTTL задаёт срок хранения dedup-записей.
func (g *Gate) SetEventTTL(ttl time.Duration) {
	if ttl > 0 {
		g.ttl = ttl
	}
}

// SetStaleProcessingAfter задаёт срок, после которого зависшая в processing
// запись перезахватывается новой доставкой.
func (g *Gate) SetStaleProcessingAfter(d time.Duration) {
	if d > 0 {
		g.staleAfter = d
	}
}

// Handle обрабатывает одну доставку webhook: проверяет подпись сырого тела,
// дедуплицирует по provider event id и выполняет побочные эффекты не более
// одного раза.
func (g *Gate) Handle(ctx context.Context, rawBody []byte, signature string) Outcome {
	start := time.Now()
	defer func() {
		if g.metrics != nil {
			g.metrics.RecordWebhookDuration(time.Since(start))
		}
	}()

	if !Verify(g.secret, rawBody, signature) {
		g.logger.Warn("webhook signature verification failed")
		return g.outcome(OutcomeInvalidSignature, http.StatusUnauthorized, errorBody("invalid signature"), false)
	}

	var event payload
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return g.outcome(OutcomeInvalidPayload, http.StatusBadRequest, errorBody("malformed payload"), false)
	}
	if event.ID == "" || event.OrderID == "" {
		return g.outcome(OutcomeInvalidPayload, http.StatusBadRequest, errorBody("id and order_id are required"), false)
	}
	if event.Type != EventPaymentSucceeded && event.Type != EventPaymentFailed {
		return g.outcome(OutcomeInvalidPayload, http.StatusBadRequest, errorBody("unsupported event type"), false)
	}

	now := time.Now().UTC()
	record, created, err := g.events.InsertIfAbsent(domain.WebhookEvent{
		ProviderEventID: event.ID,
		Provider:        g.provider,
		EventType:       event.Type,
		OrderID:         event.OrderID,
		ReceivedAt:      now,
		TTLAt:           now.Add(g.ttl),
	})
	if err != nil {
		g.logger.WithError(err).WithField("event_id", event.ID).Error("webhook dedup insert failed")
		return g.outcome(OutcomeFailed, http.StatusInternalServerError, errorBody("storage error"), false)
	}

	if !created {
		return g.handleDuplicate(ctx, event, record)
	}
	return g.process(ctx, event)
}

// handleDuplicate решает судьбу повторной доставки по статусу существующей записи.
func (g *Gate) handleDuplicate(ctx context.Context, event payload, record domain.WebhookEvent) Outcome {
	switch record.Status {
	case domain.WebhookEventApplied:
		// Повтор уже обработанного события: кешированный ответ, без побочных эффектов.
		g.logger.WithFields(log.Fields{
			"event_id": event.ID,
			"order_id": event.OrderID,
		}).Info("webhook replay, returning cached result")
		return g.outcome(OutcomeReplayed, http.StatusOK, record.Result, true)

	case domain.WebhookEventProcessing:
		// Либо первый получатель ещё работает, либо он упал и запись зависла.
		if record.ReceivedAt.Before(time.Now().UTC().Add(-g.staleAfter)) {
			reclaimed, err := g.events.ReclaimStale(event.ID, time.Now().UTC().Add(-g.staleAfter))
			if err != nil {
				g.logger.WithError(err).WithField("event_id", event.ID).Error("webhook stale reclaim failed")
				return g.outcome(OutcomeFailed, http.StatusInternalServerError, errorBody("storage error"), false)
			}
			if reclaimed {
				g.logger.WithFields(log.Fields{
					"event_id": event.ID,
					"order_id": event.OrderID,
				}).Warn("stale processing record reclaimed")
				return g.process(ctx, event)
			}
		}
		return g.awaitResult(ctx, event)

	case domain.WebhookEventFailed:
		reclaimed, err := g.events.Reclaim(event.ID)
		if err != nil {
			g.logger.WithError(err).WithField("event_id", event.ID).Error("webhook reclaim failed")
			return g.outcome(OutcomeFailed, http.StatusInternalServerError, errorBody("storage error"), false)
		}
		if !reclaimed {
			// Запись перехватил конкурент, ждём его исхода.
			return g.awaitResult(ctx, event)
		}
		return g.process(ctx, event)

	default:
		return g.outcome(OutcomeFailed, http.StatusInternalServerError, errorBody("inconsistent dedup record"), false)
	}
}

// awaitResult коротко ждёт, пока конкурентный получатель того же события
// зафиксирует исход. Провайдеру в любом случае отвечаем 200: успевший
// результат отдаём из кеша, иначе возвращаем нейтральное "processing" —
// следующая доставка провайдера получит кешированный ответ.
func (g *Gate) awaitResult(ctx context.Context, event payload) Outcome {
	for attempt := 0; attempt < resultPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return g.outcome(OutcomeInFlight, http.StatusOK, statusBody("processing"), false)
		case <-time.After(resultPollInterval):
		}

		fresh, err := g.events.Get(event.ID)
		if err != nil {
			g.logger.WithError(err).WithField("event_id", event.ID).Error("webhook dedup read failed")
			return g.outcome(OutcomeFailed, http.StatusInternalServerError, errorBody("storage error"), false)
		}

		switch fresh.Status {
		case domain.WebhookEventApplied:
			return g.outcome(OutcomeReplayed, http.StatusOK, fresh.Result, true)
		case domain.WebhookEventFailed:
			reclaimed, err := g.events.Reclaim(event.ID)
			if err != nil {
				g.logger.WithError(err).WithField("event_id", event.ID).Error("webhook reclaim failed")
				return g.outcome(OutcomeFailed, http.StatusInternalServerError, errorBody("storage error"), false)
			}
			if reclaimed {
				return g.process(ctx, event)
			}
		}
	}

	return g.outcome(OutcomeInFlight, http.StatusOK, statusBody("processing"), false)
}

// process выполняет побочные эффекты события и фиксирует результат в dedup-записи.
func (g *Gate) process(ctx context.Context, event payload) Outcome {
	var (
		order domain.Order
		err   error
	)
	switch event.Type {
	case EventPaymentSucceeded:
		order, err = g.finalizer.Commit(ctx, event.OrderID)
	case EventPaymentFailed:
		order, err = g.finalizer.Release(ctx, event.OrderID)
	}

	if err != nil {
		if errors.Is(err, domain.ErrOrderFinalized) {
			// Заказ уже финализирован другим событием: фиксируем no-op и отвечаем 200,
			// чтобы провайдер не ретраил доставку бесконечно.
			result := resultBody("ignored", event.OrderID, "")
			g.markApplied(event.ID, result)
			return g.outcome(OutcomeApplied, http.StatusOK, result, false)
		}

		g.logger.WithError(err).WithFields(log.Fields{
			"event_id": event.ID,
			"order_id": event.OrderID,
			"type":     event.Type,
		}).Warn("webhook side effects failed")

		g.markFailed(event.ID, errorBody(err.Error()))

		if errors.Is(err, domain.ErrOrderNotFound) {
			return g.outcome(OutcomeFailed, http.StatusNotFound, errorBody("order not found"), false)
		}
		return g.outcome(OutcomeFailed, http.StatusInternalServerError, errorBody("processing error"), false)
	}

	result := resultBody("applied", order.ID, string(order.PaymentStatus))
	g.markApplied(event.ID, result)

	g.logger.WithFields(log.Fields{
		"event_id":       event.ID,
		"order_id":       order.ID,
		"type":           event.Type,
		"payment_status": order.PaymentStatus,
	}).Info("webhook applied")

	return g.outcome(OutcomeApplied, http.StatusOK, result, false)
}

func (g *Gate) markApplied(eventID string, result []byte) {
	if err := g.events.MarkApplied(eventID, result); err != nil {
		g.logger.WithError(err).WithField("event_id", eventID).Error("failed to cache webhook result")
	}
}

func (g *Gate) markFailed(eventID string, result []byte) {
	if err := g.events.MarkFailed(eventID, result); err != nil {
		g.logger.WithError(err).WithField("event_id", eventID).Error("failed to mark webhook event failed")
	}
}

func (g *Gate) outcome(kind string, httpStatus int, body []byte, replayed bool) Outcome {
	if g.metrics != nil {
		g.metrics.RecordWebhookOutcome(kind)
	}
	return Outcome{HTTPStatus: httpStatus, Body: body, Replayed: replayed}
}

func errorBody(message string) []byte {
	data, _ := json.Marshal(map[string]string{"error": message})
	return data
}

func statusBody(status string) []byte {
	data, _ := json.Marshal(map[string]string{"status": status})
	return data
}

func resultBody(status, orderID, paymentStatus string) []byte {
	body := map[string]string{
		"status":   status,
		"order_id": orderID,
	}
	if paymentStatus != "" {
		body["payment_status"] = paymentStatus
	}
	data, _ := json.Marshal(body)
	return data
}
