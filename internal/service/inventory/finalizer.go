package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const (
	maxSaveAttempts   = 3
	maxCommitAttempts = 4
	baseRetryDelay    = 25 * time.Millisecond
	maxRetryDelay     = time.Second
)

// Finalizer решает судьбу резервов заказа по исходу платежа.
// Commit превращает резерв в постоянное списание, Release возвращает единицы
// в доступный остаток. Обе операции идемпотентны на уровне заказа:
// платёжный статус и состояние склада меняются одной optimistic-записью.
type Finalizer struct {
	orders    domain.OrderRepository
	inventory domain.InventoryRepository
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository
	logger    *log.Entry
	metrics   *metrics.CheckoutMetrics
}

// NewFinalizer создаёт рабочий экземпляр финализатора.
func NewFinalizer(
	orders domain.OrderRepository,
	inventory domain.InventoryRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Finalizer {
	if logger == nil {
		logger = log.New().WithField("component", "inventory-finalizer")
	}
	return &Finalizer{
		orders:    orders,
		inventory: inventory,
		outbox:    outbox,
		timeline:  timeline,
		logger:    logger,
		metrics:   metrics.NewCheckoutMetrics(),
	}
}

// NewFinalizerWithoutMetrics создаёт финализатор без метрик (для тестов).
func NewFinalizerWithoutMetrics(
	orders domain.OrderRepository,
	inventory domain.InventoryRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Finalizer {
	f := NewFinalizer(orders, inventory, outbox, timeline, logger)
	f.metrics = nil
	return f
}

// Commit списывает резервы заказа и помечает его оплаченным.
// Повторный вызов для уже оплаченного заказа — no-op.
func (f *Finalizer) Commit(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := f.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	if order.PaymentStatus == domain.PaymentStatusPaid && order.InventoryState == domain.InventoryStateCommitted {
		return order, nil
	}
	if order.PaymentFinalized() {
		return domain.Order{}, domain.ErrOrderFinalized
	}

	for _, item := range order.Items {
		if item.InventoryFinalized {
			// Позиция уже дошла до склада при прерванной попытке.
			continue
		}
		if err := f.commitItem(ctx, order.ID, item); err != nil {
			if f.metrics != nil {
				f.metrics.RecordCommitFailed()
			}
			f.emitTimeline(order.ID, domain.TimelineCommitFailed, err.Error())
			return domain.Order{}, err
		}
	}

	order, err = f.finalize(ctx, order.ID, func(o *domain.Order) {
		o.PaymentStatus = domain.PaymentStatusPaid
		o.InventoryState = domain.InventoryStateCommitted
	})
	if err != nil {
		return domain.Order{}, err
	}

	f.emitTimeline(order.ID, domain.TimelinePaymentApplied, "")
	f.emitOutbox(&order, "order.paid", map[string]interface{}{
		"order_number":      order.OrderNumber,
		"customer_id":       order.CustomerID,
		"status":            string(order.PaymentStatus),
		"grand_total_minor": order.GrandTotalMinor,
	})

	f.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	}).Info("order paid, reservations committed")

	return order, nil
}

// Release возвращает резервы заказа в доступный остаток и помечает платёж
// неуспешным, а заказ отменённым. Повторный вызов — no-op.
func (f *Finalizer) Release(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := f.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	if order.PaymentStatus == domain.PaymentStatusFailed && order.InventoryState == domain.InventoryStateReleased {
		return order, nil
	}
	if order.PaymentFinalized() {
		return domain.Order{}, domain.ErrOrderFinalized
	}

	for _, item := range order.Items {
		if item.InventoryFinalized {
			continue
		}
		if err := f.releaseItem(ctx, order.ID, item); err != nil {
			return domain.Order{}, err
		}
		if f.metrics != nil {
			f.metrics.RecordReserveReleased()
		}
	}

	order, err = f.finalize(ctx, order.ID, func(o *domain.Order) {
		o.PaymentStatus = domain.PaymentStatusFailed
		o.InventoryState = domain.InventoryStateReleased
		o.OrderStatus = domain.OrderStatusCancelled
	})
	if err != nil {
		return domain.Order{}, err
	}

	f.emitTimeline(order.ID, domain.TimelinePaymentFailed, "")
	f.emitTimeline(order.ID, domain.TimelineReservationReleased, "")
	f.emitOutbox(&order, "order.cancelled", map[string]interface{}{
		"order_number": order.OrderNumber,
		"customer_id":  order.CustomerID,
		"status":       string(order.PaymentStatus),
		"reason":       "payment failed",
	})

	f.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	}).Info("payment failed, reservations released")

	return order, nil
}

// commitItem списывает одну позицию с повторами при временных ошибках и
// сразу помечает её финализированной в заказе. Без маркера повторная
// доставка webhook списала бы позицию второй раз, как только на варианте
// появился бы чужой резерв.
func (f *Finalizer) commitItem(ctx context.Context, orderID string, item domain.OrderItem) error {
	err := f.withRetry(ctx, func() error {
		_, err := f.inventory.CommitAtomic(item.VariantID, item.Qty)
		return err
	})
	if err != nil {
		return err
	}
	return f.markItemFinalized(orderID, item)
}

func (f *Finalizer) releaseItem(ctx context.Context, orderID string, item domain.OrderItem) error {
	err := f.withRetry(ctx, func() error {
		_, err := f.inventory.ReleaseAtomic(item.VariantID, item.Qty)
		return err
	})
	if err != nil {
		return err
	}
	return f.markItemFinalized(orderID, item)
}

func (f *Finalizer) markItemFinalized(orderID string, item domain.OrderItem) error {
	if err := f.orders.MarkItemFinalized(orderID, item.ID); err != nil {
		f.logger.WithError(err).WithFields(log.Fields{
			"order_id":   orderID,
			"item_id":    item.ID,
			"variant_id": item.VariantID,
		}).Error("mark order item finalized failed")
		return err
	}
	return nil
}

// finalize применяет мутацию к заказу одной optimistic-записью,
// перечитывая заказ при конфликте версий.
func (f *Finalizer) finalize(ctx context.Context, orderID string, mutate func(*domain.Order)) (domain.Order, error) {
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Order{}, err
		}

		order, err := f.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}
		if order.PaymentFinalized() {
			// Параллельный обработчик успел первым.
			return order, nil
		}

		mutate(&order)
		order.UpdatedAt = time.Now().UTC()

		err = f.orders.Save(order)
		if err == nil {
			order.Version++
			return order, nil
		}
		lastErr = err
		if !domain.IsVersionConflict(err) {
			return domain.Order{}, err
		}

		f.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt + 1,
		}).Warn("version conflict while finalizing order, retrying")
	}
	return domain.Order{}, fmt.Errorf("%w: %w", domain.ErrRetryExhausted, lastErr)
}

func (f *Finalizer) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := baseRetryDelay

	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !domain.IsTransient(err) {
			return err
		}

		if attempt < maxCommitAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrRetryExhausted, lastErr)
}

func (f *Finalizer) emitTimeline(orderID, eventType, reason string) {
	if f.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	}
	if err := f.timeline.Append(event); err != nil {
		f.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("append timeline event failed")
	} else if f.metrics != nil {
		f.metrics.RecordTimelineEvent()
	}
}

func (f *Finalizer) emitOutbox(order *domain.Order, eventType string, payload map[string]interface{}) {
	if f.outbox == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = order.ID

	data, err := json.Marshal(payload)
	if err != nil {
		f.logger.WithError(err).WithField("order_id", order.ID).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := f.outbox.Enqueue(msg); err != nil {
		f.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
	} else if f.metrics != nil {
		f.metrics.RecordOutboxEvent()
	}
}
