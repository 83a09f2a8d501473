package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type webhookEventRepository struct {
	db *sql.DB
}

// NewWebhookEventRepository создаёт PostgreSQL-реализацию WebhookEventRepository.
func NewWebhookEventRepository(store *Store) domain.WebhookEventRepository {
	return &webhookEventRepository{db: store.DB()}
}

// InsertIfAbsent полагается на ON CONFLICT DO NOTHING: из двух конкурентных
// вставок одного provider event id ровно одна получает created=true.
func (r *webhookEventRepository) InsertIfAbsent(event domain.WebhookEvent) (domain.WebhookEvent, bool, error) {
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if errs := event.Validate(); len(errs) > 0 {
		return domain.WebhookEvent{}, false, errs[0]
	}

	now := time.Now().UTC()
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = now
	}
	if event.TTLAt.IsZero() {
		event.TTLAt = now.Add(7 * 24 * time.Hour)
	}
	event.Status = domain.WebhookEventProcessing

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (
			provider_event_id, provider, event_type, order_id, status,
			result, received_at, processed_at, ttl_at
		) VALUES ($1,$2,$3,$4,$5,NULL,$6,NULL,$7)
		ON CONFLICT (provider_event_id) DO NOTHING
	`,
		event.ProviderEventID, event.Provider, event.EventType, event.OrderID,
		string(event.Status), event.ReceivedAt, event.TTLAt,
	)
	if err != nil {
		return domain.WebhookEvent{}, false, fmt.Errorf("insert webhook event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.WebhookEvent{}, false, fmt.Errorf("webhook rows affected: %w", err)
	}
	if affected == 0 {
		existing, getErr := r.Get(event.ProviderEventID)
		if getErr != nil {
			return domain.WebhookEvent{}, false, getErr
		}
		return existing, false, nil
	}

	return event, true, nil
}

func (r *webhookEventRepository) Get(providerEventID string) (domain.WebhookEvent, error) {
	providerEventID = strings.TrimSpace(providerEventID)
	if providerEventID == "" {
		return domain.WebhookEvent{}, domain.ErrEventIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		event       domain.WebhookEvent
		statusRaw   string
		result      []byte
		processedAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT provider_event_id, provider, event_type, order_id, status,
		       result, received_at, processed_at, ttl_at
		FROM webhook_events
		WHERE provider_event_id = $1
	`, providerEventID).Scan(
		&event.ProviderEventID, &event.Provider, &event.EventType, &event.OrderID,
		&statusRaw, &result, &event.ReceivedAt, &processedAt, &event.TTLAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WebhookEvent{}, domain.ErrEventNotFound
		}
		return domain.WebhookEvent{}, fmt.Errorf("get webhook event: %w", err)
	}

	event.Status = domain.WebhookEventStatus(statusRaw)
	if !event.Status.Valid() {
		return domain.WebhookEvent{}, fmt.Errorf("invalid webhook event status %q for %s", statusRaw, providerEventID)
	}

	event.Result = append([]byte(nil), result...)
	if processedAt.Valid {
		event.ProcessedAt = processedAt.Time.UTC()
	}

	return event, nil
}

func (r *webhookEventRepository) MarkApplied(providerEventID string, result []byte) error {
	return r.markStatus(providerEventID, domain.WebhookEventApplied, result)
}

func (r *webhookEventRepository) MarkFailed(providerEventID string, result []byte) error {
	return r.markStatus(providerEventID, domain.WebhookEventFailed, result)
}

// Reclaim переводит failed -> processing одним guarded UPDATE, чтобы из
// нескольких конкурентных повторных доставок обработку получила одна.
func (r *webhookEventRepository) Reclaim(providerEventID string) (bool, error) {
	providerEventID = strings.TrimSpace(providerEventID)
	if providerEventID == "" {
		return false, domain.ErrEventIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET status = $2,
		    result = NULL,
		    processed_at = NULL
		WHERE provider_event_id = $1
		  AND status = $3
	`, providerEventID, string(domain.WebhookEventProcessing), string(domain.WebhookEventFailed))
	if err != nil {
		return false, fmt.Errorf("reclaim webhook event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("webhook reclaim rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.Get(providerEventID); getErr != nil {
			return false, getErr
		}
		return false, nil
	}

	return true, nil
}

// ReclaimStale перезахватывает запись, зависшую в processing: guarded UPDATE
// срабатывает только для записей со старым received_at, поэтому из нескольких
// конкурентных доставок перезахват достаётся одной.
func (r *webhookEventRepository) ReclaimStale(providerEventID string, processingBefore time.Time) (bool, error) {
	providerEventID = strings.TrimSpace(providerEventID)
	if providerEventID == "" {
		return false, domain.ErrEventIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET received_at = $2,
		    result = NULL,
		    processed_at = NULL
		WHERE provider_event_id = $1
		  AND status = $3
		  AND received_at < $4
	`, providerEventID, time.Now().UTC(), string(domain.WebhookEventProcessing), processingBefore)
	if err != nil {
		return false, fmt.Errorf("reclaim stale webhook event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("webhook reclaim rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.Get(providerEventID); getErr != nil {
			return false, getErr
		}
		return false, nil
	}

	return true, nil
}

func (r *webhookEventRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		res sql.Result
		err error
	)

	if limit > 0 {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM webhook_events
			WHERE provider_event_id IN (
				SELECT provider_event_id
				FROM webhook_events
				WHERE ttl_at <= $1
				ORDER BY ttl_at ASC
				LIMIT $2
			)
		`, before, limit)
	} else {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM webhook_events
			WHERE ttl_at <= $1
		`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired webhook events: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("webhook rows affected: %w", err)
	}

	return int(affected), nil
}

func (r *webhookEventRepository) markStatus(providerEventID string, status domain.WebhookEventStatus, result []byte) error {
	providerEventID = strings.TrimSpace(providerEventID)
	if providerEventID == "" {
		return domain.ErrEventIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET status = $2,
		    result = $3,
		    processed_at = $4
		WHERE provider_event_id = $1
	`, providerEventID, string(status), result, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark webhook event status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("webhook rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrEventNotFound
	}

	return nil
}

var _ domain.WebhookEventRepository = (*webhookEventRepository)(nil)
