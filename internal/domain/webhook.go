package domain

import "time"

// WebhookEventStatus описывает жизненный цикл dedup-записи webhook-события.
type WebhookEventStatus string

const (
	// WebhookEventProcessing — событие принято и обрабатывается первым получателем.
	WebhookEventProcessing WebhookEventStatus = "processing"
	// WebhookEventApplied — побочные эффекты выполнены, результат закеширован.
	WebhookEventApplied WebhookEventStatus = "applied"
	// WebhookEventFailed — обработка завершилась ошибкой; повторная доставка может
	// перехватить запись и попробовать ещё раз.
	WebhookEventFailed WebhookEventStatus = "failed"
)

// WebhookEvent — dedup-запись одного события платёжного провайдера.
// Уникальный ключ — ProviderEventID: побочные эффекты для него выполняются
// не более одного раза, повторы получают закешированный Result.
type WebhookEvent struct {
	ProviderEventID string
	Provider        string
	EventType       string
	OrderID         string
	Status          WebhookEventStatus
	// Result — закешированное тело ответа, возвращаемое на повторные доставки.
	Result      []byte
	ReceivedAt  time.Time
	ProcessedAt time.Time
	// TTLAt — момент, после которого запись может быть удалена воркером очистки.
	TTLAt time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s WebhookEventStatus) Valid() bool {
	switch s {
	case WebhookEventProcessing, WebhookEventApplied, WebhookEventFailed:
		return true
	default:
		return false
	}
}

// Validate проверяет обязательные поля dedup-записи.
func (e *WebhookEvent) Validate() []error {
	var errs []error

	if e.ProviderEventID == "" {
		errs = append(errs, ErrEventIDRequired)
	}
	if e.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}

	return errs
}
