package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const defaultWebhookTTL = 7 * 24 * time.Hour

// webhookRepositoryInMemory — in-memory реализация WebhookEventRepository.
type webhookRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.WebhookEvent
}

// NewWebhookEventRepository создаёт in-memory хранилище dedup-записей webhook-событий.
func NewWebhookEventRepository() domain.WebhookEventRepository {
	return &webhookRepositoryInMemory{
		items: make(map[string]domain.WebhookEvent),
	}
}

// InsertIfAbsent атомарно создаёт запись в статусе processing. Конкурентные
// вставки одного provider event id разрешаются под мутексом: ровно одна
// вставка видит created=true.
func (r *webhookRepositoryInMemory) InsertIfAbsent(event domain.WebhookEvent) (domain.WebhookEvent, bool, error) {
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return domain.WebhookEvent{}, false, domain.ErrEventIDRequired
	}

	now := time.Now().UTC()
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = now
	}
	if event.TTLAt.IsZero() {
		event.TTLAt = now.Add(defaultWebhookTTL)
	}
	event.Status = domain.WebhookEventProcessing
	event.Result = nil
	event.ProcessedAt = time.Time{}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.items[event.ProviderEventID]; ok {
		return cloneWebhookEvent(existing), false, nil
	}

	r.items[event.ProviderEventID] = cloneWebhookEvent(event)
	return cloneWebhookEvent(event), true, nil
}

// Get возвращает запись или ErrEventNotFound.
func (r *webhookRepositoryInMemory) Get(providerEventID string) (domain.WebhookEvent, error) {
	providerEventID = strings.TrimSpace(providerEventID)
	if providerEventID == "" {
		return domain.WebhookEvent{}, domain.ErrEventIDRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.items[providerEventID]
	if !ok {
		return domain.WebhookEvent{}, domain.ErrEventNotFound
	}
	return cloneWebhookEvent(event), nil
}

// MarkApplied фиксирует успешную обработку и кеширует результат.
func (r *webhookRepositoryInMemory) MarkApplied(providerEventID string, result []byte) error {
	return r.markStatus(providerEventID, domain.WebhookEventApplied, result)
}

// MarkFailed фиксирует ошибку обработки.
func (r *webhookRepositoryInMemory) MarkFailed(providerEventID string, result []byte) error {
	return r.markStatus(providerEventID, domain.WebhookEventFailed, result)
}

// Reclaim атомарно переводит запись failed -> processing.
func (r *webhookRepositoryInMemory) Reclaim(providerEventID string) (bool, error) {
	providerEventID = strings.TrimSpace(providerEventID)
	if providerEventID == "" {
		return false, domain.ErrEventIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.items[providerEventID]
	if !ok {
		return false, domain.ErrEventNotFound
	}
	if event.Status != domain.WebhookEventFailed {
		return false, nil
	}

	event.Status = domain.WebhookEventProcessing
	event.Result = nil
	r.items[providerEventID] = event
	return true, nil
}

// ReclaimStale перезахватывает запись, зависшую в processing дольше дедлайна.
func (r *webhookRepositoryInMemory) ReclaimStale(providerEventID string, processingBefore time.Time) (bool, error) {
	providerEventID = strings.TrimSpace(providerEventID)
	if providerEventID == "" {
		return false, domain.ErrEventIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.items[providerEventID]
	if !ok {
		return false, domain.ErrEventNotFound
	}
	if event.Status != domain.WebhookEventProcessing || !event.ReceivedAt.Before(processingBefore) {
		return false, nil
	}

	event.ReceivedAt = time.Now().UTC()
	event.Result = nil
	r.items[providerEventID] = event
	return true, nil
}

// DeleteExpired удаляет до limit записей с истёкшим TTL.
func (r *webhookRepositoryInMemory) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, event := range r.items {
		if event.TTLAt.After(before) {
			continue
		}

		delete(r.items, id)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}

	return removed, nil
}

func (r *webhookRepositoryInMemory) markStatus(providerEventID string, status domain.WebhookEventStatus, result []byte) error {
	providerEventID = strings.TrimSpace(providerEventID)
	if providerEventID == "" {
		return domain.ErrEventIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.items[providerEventID]
	if !ok {
		return domain.ErrEventNotFound
	}

	event.Status = status
	event.Result = append([]byte(nil), result...)
	event.ProcessedAt = time.Now().UTC()
	r.items[providerEventID] = event
	return nil
}

func cloneWebhookEvent(src domain.WebhookEvent) domain.WebhookEvent {
	dst := src
	dst.Result = append([]byte(nil), src.Result...)
	return dst
}

var _ domain.WebhookEventRepository = (*webhookRepositoryInMemory)(nil)
