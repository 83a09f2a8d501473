package reservation

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const defaultCurrency = "USD"

// RetryConfig конфигурация для retry логики атомарных операций склада.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   4,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Engine связывает корзину с резервами склада: каждая мутация корзины
// сначала подтверждается атомарной операцией над счётчиками склада и только
// потом отражается в корзине. Отклонённый резерв не оставляет следов.
type Engine struct {
	inventory domain.InventoryRepository
	carts     domain.CartRepository
	catalog   domain.Catalog
	logger    *log.Entry
	retry     RetryConfig
	currency  string
	metrics   *metrics.CheckoutMetrics
}

// NewEngine создаёт рабочий экземпляр движка резервирования.
func NewEngine(
	inventory domain.InventoryRepository,
	carts domain.CartRepository,
	catalog domain.Catalog,
	logger *log.Entry,
) *Engine {
	if logger == nil {
		logger = log.New().WithField("component", "reservation")
	}
	return &Engine{
		inventory: inventory,
		carts:     carts,
		catalog:   catalog,
		logger:    logger,
		retry:     DefaultRetryConfig(),
		currency:  defaultCurrency,
		metrics:   metrics.NewCheckoutMetrics(),
	}
}

// NewEngineWithoutMetrics создаёт движок без метрик (для тестов).
func NewEngineWithoutMetrics(
	inventory domain.InventoryRepository,
	carts domain.CartRepository,
	catalog domain.Catalog,
	logger *log.Entry,
) *Engine {
	engine := NewEngine(inventory, carts, catalog, logger)
	engine.metrics = nil
	return engine
}

// SetRetryConfig заменяет конфигурацию повторов.
func (e *Engine) SetRetryConfig(cfg RetryConfig) {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}
	e.retry = cfg
}

// SetCurrency задаёт код валюты, в которой работает корзина.
func (e *Engine) SetCurrency(currency string) {
	if currency != "" {
		e.currency = currency
	}
}

// Cart возвращает текущую корзину клиента.
func (e *Engine) Cart(customerID string) (domain.Cart, error) {
	cart, err := e.carts.Get(customerID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Currency = e.currency
	return cart, nil
}

// AddItem резервирует qty единиц варианта и добавляет их в корзину.
// Если позиция с этим вариантом уже существует, резерв увеличивается на qty,
// цена остаётся снапшотом момента первого добавления.
func (e *Engine) AddItem(ctx context.Context, customerID, variantID string, qty int64) (domain.Cart, error) {
	if variantID == "" {
		return domain.Cart{}, domain.ErrVariantIDRequired
	}
	if qty <= 0 {
		return domain.Cart{}, domain.ErrQtyInvalid
	}

	cart, err := e.carts.Get(customerID)
	if err != nil {
		return domain.Cart{}, err
	}

	item, exists := cart.ItemByVariant(variantID)
	if !exists {
		price, err := e.catalog.Price(variantID)
		if err != nil {
			return domain.Cart{}, err
		}
		item = domain.CartItem{
			VariantID:  variantID,
			PriceMinor: price.PriceMinor,
		}
	}

	// Сначала резерв: склад — единственный арбитр доступности.
	if err := e.reserve(ctx, variantID, qty); err != nil {
		return domain.Cart{}, err
	}

	item.Qty += qty
	if err := e.carts.UpsertItem(customerID, item); err != nil {
		// Компенсация: корзина не приняла позицию, возвращаем резерв.
		e.release(ctx, variantID, qty)
		return domain.Cart{}, err
	}

	return e.Cart(customerID)
}

// UpdateItem приводит позицию корзины к абсолютному количеству qty.
// Разница с текущим количеством резервируется или освобождается на складе.
// qty == 0 эквивалентно удалению позиции.
func (e *Engine) UpdateItem(ctx context.Context, customerID, itemID string, qty int64) (domain.Cart, error) {
	if qty < 0 {
		return domain.Cart{}, domain.ErrQtyInvalid
	}
	if qty == 0 {
		return e.RemoveItem(ctx, customerID, itemID)
	}

	item, err := e.carts.GetItem(customerID, itemID)
	if err != nil {
		return domain.Cart{}, err
	}

	delta := qty - item.Qty
	switch {
	case delta > 0:
		if err := e.reserve(ctx, item.VariantID, delta); err != nil {
			return domain.Cart{}, err
		}
	case delta < 0:
		if err := e.releaseChecked(ctx, item.VariantID, -delta); err != nil {
			return domain.Cart{}, err
		}
	default:
		// Количество не изменилось, склад не трогаем.
		return e.Cart(customerID)
	}

	item.Qty = qty
	if err := e.carts.UpsertItem(customerID, item); err != nil {
		// Откатываем складскую часть изменения.
		if delta > 0 {
			e.release(ctx, item.VariantID, delta)
		} else {
			if rerr := e.reserve(ctx, item.VariantID, -delta); rerr != nil {
				e.logger.WithError(rerr).WithFields(log.Fields{
					"customer_id": customerID,
					"variant_id":  item.VariantID,
				}).Error("failed to restore reservation after cart failure")
			}
		}
		return domain.Cart{}, err
	}

	return e.Cart(customerID)
}

// RemoveItem удаляет позицию корзины и освобождает её резерв.
func (e *Engine) RemoveItem(ctx context.Context, customerID, itemID string) (domain.Cart, error) {
	item, err := e.carts.GetItem(customerID, itemID)
	if err != nil {
		return domain.Cart{}, err
	}

	if err := e.releaseChecked(ctx, item.VariantID, item.Qty); err != nil {
		return domain.Cart{}, err
	}

	if err := e.carts.RemoveItem(customerID, itemID); err != nil {
		if rerr := e.reserve(ctx, item.VariantID, item.Qty); rerr != nil {
			e.logger.WithError(rerr).WithFields(log.Fields{
				"customer_id": customerID,
				"variant_id":  item.VariantID,
			}).Error("failed to restore reservation after cart failure")
		}
		return domain.Cart{}, err
	}

	return e.Cart(customerID)
}

// ReleaseCart освобождает все резервы корзины и очищает её.
// Используется sweeper-ом брошенных корзин и полным сбросом корзины.
func (e *Engine) ReleaseCart(ctx context.Context, customerID string) error {
	cart, err := e.carts.Get(customerID)
	if err != nil {
		return err
	}
	if cart.IsEmpty() {
		return nil
	}

	for _, item := range cart.Items {
		if err := e.releaseChecked(ctx, item.VariantID, item.Qty); err != nil {
			e.logger.WithError(err).WithFields(log.Fields{
				"customer_id": customerID,
				"variant_id":  item.VariantID,
				"qty":         item.Qty,
			}).Warn("failed to release cart reservation")
			continue
		}
		if e.metrics != nil {
			e.metrics.RecordReserveReleased()
		}
	}

	return e.carts.Clear(customerID)
}

func (e *Engine) reserve(ctx context.Context, variantID string, qty int64) error {
	err := e.withRetry(ctx, "reserve", variantID, func() error {
		_, err := e.inventory.ReserveAtomic(variantID, qty)
		return err
	})
	if e.metrics != nil {
		if err == nil {
			e.metrics.RecordReserveAccepted()
		} else if domain.IsBusinessRejection(err) {
			e.metrics.RecordReserveRejected()
		}
	}
	return err
}

// releaseChecked снимает резерв и возвращает ошибку вызывающему.
func (e *Engine) releaseChecked(ctx context.Context, variantID string, qty int64) error {
	return e.withRetry(ctx, "release", variantID, func() error {
		_, err := e.inventory.ReleaseAtomic(variantID, qty)
		return err
	})
}

// release — компенсационное снятие резерва: ошибка только логируется,
// утёкший резерв доберёт sweeper.
func (e *Engine) release(ctx context.Context, variantID string, qty int64) {
	if err := e.releaseChecked(ctx, variantID, qty); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"variant_id": variantID,
			"qty":        qty,
		}).Warn("compensating release failed")
	}
}

// withRetry повторяет операцию при временных ошибках хранилища
// с экспоненциальной задержкой. Бизнес-отказы не повторяются.
func (e *Engine) withRetry(ctx context.Context, operation, variantID string, fn func() error) error {
	var lastErr error
	delay := e.retry.InitialDelay

	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				e.logger.WithFields(log.Fields{
					"operation":  operation,
					"variant_id": variantID,
					"attempt":    attempt,
				}).Info("inventory operation succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if !domain.IsTransient(err) {
			return err
		}

		if attempt < e.retry.MaxAttempts {
			e.logger.WithFields(log.Fields{
				"operation":  operation,
				"variant_id": variantID,
				"attempt":    attempt,
				"delay":      delay,
				"error":      err,
			}).Warn("inventory operation failed, retrying")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * e.retry.BackoffFactor)
			if delay > e.retry.MaxDelay {
				delay = e.retry.MaxDelay
			}
		}
	}

	e.logger.WithFields(log.Fields{
		"operation":    operation,
		"variant_id":   variantID,
		"max_attempts": e.retry.MaxAttempts,
		"error":        lastErr,
	}).Error("inventory operation failed after all retry attempts")
	return fmt.Errorf("%w: %w", domain.ErrRetryExhausted, lastErr)
}
