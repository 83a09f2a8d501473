package domain

import (
	"fmt"
	"time"
)

// PaymentStatus описывает платёжное состояние заказа.
type PaymentStatus string

const (
	// PaymentStatusPending — заказ создан, подтверждение от провайдера не получено.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid — оплата подтверждена, резерв превращён в списание.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed — провайдер отклонил платёж, резерв снят.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded — деньги возвращены клиенту.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// OrderStatus описывает жизненный цикл исполнения заказа.
type OrderStatus string

const (
	// OrderStatusCreated — заказ зафиксирован, ждёт оплаты и исполнения.
	OrderStatusCreated OrderStatus = "created"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен клиенту.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до исполнения.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// InventoryState фиксирует судьбу резерва, удержанного под заказ.
type InventoryState string

const (
	// InventoryStateHeld — резерв закреплён за заказом и ещё не финализирован.
	InventoryStateHeld InventoryState = "held"
	// InventoryStateCommitted — резерв превращён в постоянное списание остатка.
	InventoryStateCommitted InventoryState = "committed"
	// InventoryStateReleased — резерв возвращён в доступный остаток.
	InventoryStateReleased InventoryState = "released"
)

// OrderItem представляет одну позицию заказа со снапшотом цены.
type OrderItem struct {
	ID         string
	VariantID  string
	Qty        int64
	PriceMinor int64
	// InventoryFinalized выставляется после того, как списание или возврат
	// резерва этой позиции дошло до склада. Повторная финализация заказа
	// пропускает помеченные позиции и не трогает их счётчики второй раз.
	InventoryFinalized bool
	CreatedAt          time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID string
	// OrderNumber — человекочитаемый номер вида ORD-000123, уникальный и монотонный.
	OrderNumber       string
	CustomerID        string
	ShippingAddressID string
	BillingAddressID  string
	PaymentMethod     string
	PaymentStatus     PaymentStatus
	OrderStatus       OrderStatus
	// InventoryState меняется строго вместе с PaymentStatus в одном optimistic-записи,
	// чтобы переход "оплачен + списан" был атомарным.
	InventoryState  InventoryState
	Currency        string
	GrandTotalMinor int64
	Items           []OrderItem
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FormatOrderNumber превращает значение последовательности в номер заказа.
func FormatOrderNumber(seq int64) string {
	return fmt.Sprintf("ORD-%06d", seq)
}

// PaymentFinalized сообщает, находится ли заказ в терминальном платёжном статусе.
func (o *Order) PaymentFinalized() bool {
	return o.PaymentStatus != PaymentStatusPending
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if o.ShippingAddressID == "" || o.BillingAddressID == "" {
		errs = append(errs, ErrAddressRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.GrandTotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += item.Qty * item.PriceMinor
	}
	if calc != o.GrandTotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
