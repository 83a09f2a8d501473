package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const (
	defaultCurrency = "USD"
	// Количество попыток занять свежий номер заказа при гонке за последовательность.
	orderNumberAttempts = 3
)

// Request описывает вход операции чекаута.
type Request struct {
	CustomerID        string
	ShippingAddressID string
	BillingAddressID  string
	PaymentMethod     string
}

// Orchestrator превращает корзину с живыми резервами в заказ.
// Резервы при чекауте не трогаются: они переходят от корзины к заказу
// и финализируются позже по исходу платежа.
type Orchestrator struct {
	carts     domain.CartRepository
	orders    domain.OrderRepository
	addresses domain.AddressBook
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository
	logger    *log.Entry
	metrics   *metrics.CheckoutMetrics
	currency  string
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора чекаута.
func NewOrchestrator(
	carts domain.CartRepository,
	orders domain.OrderRepository,
	addresses domain.AddressBook,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &Orchestrator{
		carts:     carts,
		orders:    orders,
		addresses: addresses,
		outbox:    outbox,
		timeline:  timeline,
		logger:    logger,
		metrics:   metrics.NewCheckoutMetrics(),
		currency:  defaultCurrency,
	}
}

// NewOrchestratorWithoutMetrics создаёт оркестратор без метрик (для тестов).
func NewOrchestratorWithoutMetrics(
	carts domain.CartRepository,
	orders domain.OrderRepository,
	addresses domain.AddressBook,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Orchestrator {
	o := NewOrchestrator(carts, orders, addresses, outbox, timeline, logger)
	o.metrics = nil
	return o
}

// SetCurrency задаёт код валюты создаваемых заказов.
func (o *Orchestrator) SetCurrency(currency string) {
	if currency != "" {
		o.currency = currency
	}
}

// Checkout создаёт заказ из текущей корзины клиента.
// Пустая корзина и чужой адрес — бизнес-отказы, корзина при них не меняется.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (domain.Order, error) {
	start := time.Now()
	if o.metrics != nil {
		o.metrics.RecordCheckoutStarted()
	}
	defer func() {
		if o.metrics != nil {
			o.metrics.RecordCheckoutDuration(time.Since(start))
			o.metrics.RecordCheckoutFinished()
		}
	}()

	order, err := o.checkout(ctx, req)
	if o.metrics != nil {
		if err == nil {
			o.metrics.RecordCheckoutCompleted()
		} else {
			o.metrics.RecordCheckoutFailed()
		}
	}
	return order, err
}

func (o *Orchestrator) checkout(ctx context.Context, req Request) (domain.Order, error) {
	if req.CustomerID == "" {
		return domain.Order{}, domain.ErrCustomerRequired
	}
	if req.ShippingAddressID == "" || req.BillingAddressID == "" {
		return domain.Order{}, domain.ErrAddressRequired
	}

	if err := o.addresses.ResolveOwned(req.CustomerID, req.ShippingAddressID); err != nil {
		return domain.Order{}, err
	}
	if err := o.addresses.ResolveOwned(req.CustomerID, req.BillingAddressID); err != nil {
		return domain.Order{}, err
	}

	cart, err := o.carts.Get(req.CustomerID)
	if err != nil {
		return domain.Order{}, err
	}
	if cart.IsEmpty() {
		return domain.Order{}, domain.ErrEmptyCart
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:                uuid.NewString(),
		CustomerID:        req.CustomerID,
		ShippingAddressID: req.ShippingAddressID,
		BillingAddressID:  req.BillingAddressID,
		PaymentMethod:     req.PaymentMethod,
		PaymentStatus:     domain.PaymentStatusPending,
		OrderStatus:       domain.OrderStatusCreated,
		InventoryState:    domain.InventoryStateHeld,
		Currency:          o.currency,
		GrandTotalMinor:   cart.TotalMinor(),
		Items:             orderItemsFromCart(cart, now),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if errs := order.ValidateInvariants(); len(errs) != 0 {
		return domain.Order{}, errs[0]
	}

	if err := o.createWithNumber(ctx, &order); err != nil {
		return domain.Order{}, err
	}

	// Корзина очищается без снятия резервов: единицы удержаны под заказ.
	if err := o.carts.Clear(req.CustomerID); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"customer_id": req.CustomerID,
			"order_id":    order.ID,
		}).Error("failed to clear cart after checkout")
	}

	o.emitEvent(&order, domain.TimelineOrderCreated, map[string]interface{}{
		"order_number":      order.OrderNumber,
		"customer_id":       order.CustomerID,
		"grand_total_minor": order.GrandTotalMinor,
		"ts":                now.Format(time.RFC3339Nano),
	})

	o.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"customer_id":  order.CustomerID,
		"items":        len(order.Items),
	}).Info("order created")

	return order, nil
}

// Order возвращает заказ по идентификатору.
func (o *Orchestrator) Order(id string) (domain.Order, error) {
	if id == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	return o.orders.Get(id)
}

// Orders возвращает заказы клиента.
func (o *Orchestrator) Orders(customerID string, limit int) ([]domain.Order, error) {
	if customerID == "" {
		return nil, domain.ErrCustomerRequired
	}
	return o.orders.ListByCustomer(customerID, limit)
}

// Timeline возвращает события жизненного цикла заказа.
func (o *Orchestrator) Timeline(orderID string) ([]domain.TimelineEvent, error) {
	if orderID == "" {
		return nil, domain.ErrOrderIDRequired
	}
	if o.timeline == nil {
		return nil, nil
	}
	return o.timeline.List(orderID)
}

// createWithNumber занимает номер из последовательности и создаёт заказ.
// Конфликт номера означает гонку двух инстансов за одно значение,
// следующая попытка берёт свежий номер.
func (o *Orchestrator) createWithNumber(ctx context.Context, order *domain.Order) error {
	var lastErr error
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		seq, err := o.orders.NextOrderNumber()
		if err != nil {
			return err
		}
		order.OrderNumber = domain.FormatOrderNumber(seq)

		err = o.orders.Create(*order)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrOrderNumberConflict) {
			return err
		}

		o.logger.WithFields(log.Fields{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
			"attempt":      attempt,
		}).Warn("order number conflict, retrying with fresh sequence value")
	}
	return lastErr
}

func orderItemsFromCart(cart domain.Cart, now time.Time) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, domain.OrderItem{
			ID:         uuid.NewString(),
			VariantID:  item.VariantID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			CreatedAt:  now,
		})
	}
	return items
}

// emitEvent кладёт событие в outbox и timeline. Обе записи best-effort:
// заказ уже создан, сбой доставки события не отменяет чекаут.
func (o *Orchestrator) emitEvent(order *domain.Order, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = order.ID

	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	if o.outbox != nil {
		msg := domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     eventType,
			Payload:       data,
		}
		if _, err := o.outbox.Enqueue(msg); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    eventType,
			}).Error("enqueue event failed")
		} else if o.metrics != nil {
			o.metrics.RecordOutboxEvent()
		}
	}

	if o.timeline != nil {
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     eventType,
			Occurred: time.Now().UTC(),
		}
		if err := o.timeline.Append(event); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    eventType,
			}).Warn("append timeline event failed")
		} else if o.metrics != nil {
			o.metrics.RecordTimelineEvent()
		}
	}
}
